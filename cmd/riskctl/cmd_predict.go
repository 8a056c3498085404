package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/enhancement"
	"github.com/medirisk-server/internal/model"
	"github.com/medirisk-server/internal/service"
	"github.com/medirisk-server/pkg/external"
)

type predictOptions struct {
	domain   string
	input    string
	set      []string
	dir      string
	enhance  bool
	question string
}

func newPredictCmd(opts *rootOptions) *cobra.Command {
	po := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run one prediction against a local artifact",
		Long: "predict validates one input record, runs the domain model from the\n" +
			"artifact directory and prints the prediction outcome as JSON.\n" +
			"Fields come from --input (a JSON object, or - for stdin) and are\n" +
			"overridden by --set name=value pairs.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, opts, po)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&po.domain, "domain", "d", "", "Domain to predict (required)")
	f.StringVarP(&po.input, "input", "i", "", "JSON input file, or - for stdin")
	f.StringArrayVar(&po.set, "set", nil, "Feature value as name=value (repeatable)")
	f.StringVar(&po.dir, "dir", "", "Artifact root directory (defaults to models.artifact_dir)")
	f.BoolVar(&po.enhance, "enhance", false, "Attach a narrative report")
	f.StringVar(&po.question, "question", "", "Question for the narrative report")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}

func runPredict(cmd *cobra.Command, opts *rootOptions, po *predictOptions) error {
	root, err := opts.artifactDir(po.dir)
	if err != nil {
		return err
	}
	schemas, err := loadSchemas()
	if err != nil {
		return err
	}

	raw, err := readInput(cmd.InOrStdin(), po.input)
	if err != nil {
		return err
	}
	values, err := parseAssignments(po.set)
	if err != nil {
		return err
	}
	overrides, err := schemas.CoerceForm(po.domain, values)
	if err != nil {
		return err
	}
	for k, v := range overrides {
		raw[k] = v
	}

	logger := opts.logger(cmd)
	models := model.NewRegistry(schemas, logger, nil)
	if _, err := models.Load(po.domain, filepath.Join(root, po.domain)); err != nil {
		return err
	}

	var enhancer domain.ReportEnhancer
	if po.enhance {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		var provider domain.TextProvider
		if cfg.Enhancement.Enabled && cfg.Enhancement.APIKey != "" {
			provider = external.NewGeminiClient(cfg.Enhancement)
		}
		enhancer = enhancement.NewGateway(provider, cfg.Enhancement, nil, nil, logger)
	}

	svc := service.NewRiskService(schemas, models, enhancer, nil, nil, logger)
	ctx := cmd.Context()
	outcome, err := svc.Predict(ctx, po.domain, raw)
	if err != nil {
		var invalid *domain.InvalidInputError
		if errors.As(err, &invalid) && invalid.Result != nil {
			_ = writeJSON(cmd.OutOrStdout(), invalid.Result)
		}
		return err
	}

	if po.enhance {
		outcome.Enhancement = svc.EnhanceReport(ctx, &domain.EnhancementRequest{
			Domain:     po.domain,
			RawInput:   raw,
			Assessment: outcome.Assessment,
			Question:   po.question,
		})
	}
	return writeJSON(cmd.OutOrStdout(), outcome)
}

func readInput(stdin io.Reader, path string) (domain.RawInput, error) {
	raw := domain.RawInput{}
	if path == "" {
		return raw, nil
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse input %s: %w", path, err)
	}
	// a JSON null decodes to a nil map
	if raw == nil {
		raw = domain.RawInput{}
	}
	return raw, nil
}

func parseAssignments(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q (want name=value)", p)
		}
		values[name] = value
	}
	return values, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
