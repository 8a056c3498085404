package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/medirisk-server/internal/model"
)

func newDemoArtifactsCmd(_ *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "demo-artifacts",
		Short: "Write deterministic demo artifacts for every domain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schemas, err := loadSchemas()
			if err != nil {
				return err
			}
			if err := model.WriteDemoArtifacts(out, schemas); err != nil {
				return fmt.Errorf("write demo artifacts: %w", err)
			}
			for _, d := range schemas.Domains() {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", filepath.Join(out, d))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Artifact root directory (required)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newValidateArtifactsCmd(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "validate-artifacts",
		Short: "Check that every domain artifact loads against its schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := opts.artifactDir(dir)
			if err != nil {
				return err
			}
			schemas, err := loadSchemas()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, d := range schemas.Domains() {
				s, _ := schemas.Get(d)
				path := filepath.Join(root, d)

				a, err := model.ReadArtifact(path)
				if err == nil {
					var h *model.Handle
					if h, err = model.NewHandle(s, path, a); err == nil {
						fmt.Fprintf(out, "OK    %-16s %s v%s (%d features)\n", d, h.Metadata.ModelType, h.Version(), len(h.FeatureOrder))
						continue
					}
				}
				failed++
				fmt.Fprintf(out, "FAIL  %-16s %v\n", d, err)
			}

			if failed > 0 {
				return errors.New(pluralize(failed, "artifact") + " failed validation")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Artifact root directory (defaults to models.artifact_dir)")
	return cmd
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
