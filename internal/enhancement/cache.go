package enhancement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/medirisk-server/internal/domain"
)

// RemoteCache is a shared second-tier report store, e.g. Redis
type RemoteCache interface {
	GetReport(ctx context.Context, key string) (*domain.EnhancementResult, bool, error)
	SetReport(ctx context.Context, key string, result *domain.EnhancementResult, ttl time.Duration) error
}

// ReportCache is a two-tier cache of provider-generated reports: an
// in-process expirable LRU in front of an optional remote cache.
// Remote failures are logged and treated as misses.
type ReportCache struct {
	local  *expirable.LRU[string, *domain.EnhancementResult]
	remote RemoteCache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewReportCache creates a report cache; remote may be nil
func NewReportCache(config domain.CacheConfig, remote RemoteCache, logger *logrus.Logger) *ReportCache {
	size := config.MaxEntries
	if size <= 0 {
		size = 512
	}
	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &ReportCache{
		local:  expirable.NewLRU[string, *domain.EnhancementResult](size, nil, ttl),
		remote: remote,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns a copy of the cached report for key
func (c *ReportCache) Get(ctx context.Context, key string) (*domain.EnhancementResult, bool) {
	if res, ok := c.local.Get(key); ok {
		return cloneResult(res), true
	}
	if c.remote == nil {
		return nil, false
	}

	res, found, err := c.remote.GetReport(ctx, key)
	if err != nil {
		c.logger.WithError(err).Warn("Remote report cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}

	c.local.Add(key, cloneResult(res))
	return cloneResult(res), true
}

// Put stores a report in both tiers
func (c *ReportCache) Put(ctx context.Context, key string, res *domain.EnhancementResult) {
	c.local.Add(key, cloneResult(res))
	if c.remote == nil {
		return
	}
	if err := c.remote.SetReport(ctx, key, res, c.ttl); err != nil {
		c.logger.WithError(err).Warn("Remote report cache write failed")
	}
}

// Len returns the number of reports held in process
func (c *ReportCache) Len() int {
	return c.local.Len()
}

// ReportKey derives the cache key for a request against a provider model.
// Map keys are sorted by encoding/json so equal requests share a key.
func ReportKey(req *domain.EnhancementRequest, model string) (string, error) {
	data, err := json.Marshal(struct {
		Model      string                 `json:"model"`
		Domain     string                 `json:"domain"`
		RawInput   domain.RawInput        `json:"raw_input"`
		Assessment *domain.RiskAssessment `json:"assessment"`
		Question   string                 `json:"question"`
	}{model, req.Domain, req.RawInput, req.Assessment, req.Question})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func cloneResult(res *domain.EnhancementResult) *domain.EnhancementResult {
	out := *res
	out.Metadata.Trace = append([]string(nil), res.Metadata.Trace...)
	return &out
}
