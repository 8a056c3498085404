package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSchemaCmd(_ *rootOptions) *cobra.Command {
	var domainID, format string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print a domain schema, or list the domains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schemas, err := loadSchemas()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if domainID == "" {
				for _, d := range schemas.Domains() {
					s, _ := schemas.Get(d)
					fmt.Fprintf(out, "%-16s %s (%d features)\n", d, s.DisplayName, len(s.Features))
				}
				return nil
			}

			s, err := schemas.Get(domainID)
			if err != nil {
				return err
			}
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(s); err != nil {
					return fmt.Errorf("encode schema: %w", err)
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			default:
				return fmt.Errorf("unsupported format %q (want yaml or json)", format)
			}
		},
	}

	f := cmd.Flags()
	f.StringVarP(&domainID, "domain", "d", "", "Domain to print; lists all domains when empty")
	f.StringVar(&format, "format", "yaml", "Output format: yaml or json")
	return cmd
}
