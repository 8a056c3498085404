package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/medirisk-server/internal/config"
	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/schema"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootOptions struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "riskctl",
		Short: "Operate medirisk schemas and model artifacts",
		Long: "riskctl inspects domain schemas, writes and checks model artifacts,\n" +
			"and runs single predictions offline against an artifact directory.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Path to the configuration file")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline events to stderr")

	cmd.AddCommand(newSchemaCmd(opts))
	cmd.AddCommand(newDemoArtifactsCmd(opts))
	cmd.AddCommand(newValidateArtifactsCmd(opts))
	cmd.AddCommand(newPredictCmd(opts))
	return cmd
}

func (o *rootOptions) loadConfig() (*domain.Config, error) {
	m, err := config.NewManager(o.configFile)
	if err != nil {
		return nil, err
	}
	return m.GetConfig(), nil
}

// logger writes to stderr in verbose mode and discards otherwise
func (o *rootOptions) logger(cmd *cobra.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if o.verbose {
		logger.SetOutput(cmd.ErrOrStderr())
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetOutput(io.Discard)
	}
	return logger
}

// artifactDir resolves the --dir flag against the configured default
func (o *rootOptions) artifactDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Models.ArtifactDir, nil
}

func loadSchemas() (*schema.Registry, error) {
	return schema.NewRegistry()
}
