package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docs"
)

func newExportCmd(root *rootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Re-encode a payload as canonical JSON",
		Long: `Validates every record of the payload and writes it back as
{"docs":[...]} JSON. With no --out the JSON goes to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := root.fetchRecords(cmd.Context())
			if err != nil {
				return err
			}
			if err := docs.ValidateAll(records); err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				return docs.Encode(cmd.OutOrStdout(), records)
			}

			tmp, err := os.CreateTemp(filepath.Dir(outPath), ".export-*.tmp")
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			defer os.Remove(tmp.Name())
			if err := docs.Encode(tmp, records); err != nil {
				tmp.Close()
				return err
			}
			if err := tmp.Close(); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			if err := os.Rename(tmp.Name(), outPath); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d records to %s\n", len(records), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}
