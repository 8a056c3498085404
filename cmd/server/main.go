package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/medirisk-server/internal/api"
	"github.com/medirisk-server/internal/config"
	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/enhancement"
	"github.com/medirisk-server/internal/logging"
	"github.com/medirisk-server/internal/metrics"
	"github.com/medirisk-server/internal/model"
	"github.com/medirisk-server/internal/records"
	"github.com/medirisk-server/internal/schema"
	"github.com/medirisk-server/internal/service"
	"github.com/medirisk-server/pkg/external"
)

func main() {
	configFile := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	// Load configuration
	configManager, err := config.NewManager(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	schemas, err := schema.NewRegistry()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load domain schemas")
	}

	models := model.NewRegistry(schemas, logger, m)
	if err := models.LoadAll(ctx, cfg.Models.ArtifactDir, cfg.Models.Domains, cfg.Models.LoadWorkers); err != nil {
		logger.WithError(err).Fatal("Model loading interrupted")
	}
	for _, st := range models.Statuses() {
		entry := logger.WithFields(logrus.Fields{"domain": st.Domain, "available": st.Available})
		if st.LastError != "" {
			entry.WithField("error", st.LastError).Warn("Domain unavailable")
			continue
		}
		entry.Info("Domain ready")
	}

	gateway, closeCache := newGateway(configManager, m, logger)
	defer closeCache()

	sink, err := records.New(cfg.Records, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure prediction record sinks")
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.WithError(err).Warn("Failed to flush prediction records")
		}
	}()

	svc := service.NewRiskService(schemas, models, gateway, sink, m, logger)
	svc.SetBatchLimits(cfg.Server.MaxBatchSize, cfg.Server.BatchWorkers)

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting medirisk server")

	server := api.NewServer(configManager, svc, reg, logger)
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newGateway builds the report enhancement gateway. Without an API key the
// gateway has no provider and every report uses the fallback.
func newGateway(configManager domain.ConfigManager, m *metrics.Metrics, logger *logrus.Logger) (*enhancement.Gateway, func()) {
	enhCfg := configManager.GetEnhancementConfig()
	cacheCfg := configManager.GetCacheConfig()

	var provider domain.TextProvider
	if enhCfg.Enabled && enhCfg.APIKey != "" {
		provider = external.NewGeminiClient(*enhCfg)
	} else if enhCfg.Enabled {
		logger.Warn("No enhancement API key configured; reports will use the fallback template")
	}

	closeCache := func() {}
	var cache *enhancement.ReportCache
	if cacheCfg.Enabled {
		var remote enhancement.RemoteCache
		if cacheCfg.RedisURL != "" {
			client, err := external.NewCacheClient(*cacheCfg)
			if err != nil {
				logger.WithError(err).Warn("Redis report cache unavailable; using in-process cache only")
			} else {
				remote = client
				closeCache = func() {
					if err := client.Close(); err != nil {
						logger.WithError(err).Warn("Failed to close Redis report cache")
					}
				}
			}
		}
		cache = enhancement.NewReportCache(*cacheCfg, remote, logger)
	}

	return enhancement.NewGateway(provider, *enhCfg, cache, m, logger), closeCache
}
