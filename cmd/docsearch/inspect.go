package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newInspectCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Summarize a payload: records, terms and categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := root.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			stats := store.Stats()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "=== %s ===\n", root.payload)
			fmt.Fprintf(out, "Records:  %d\n", stats.Records)
			fmt.Fprintf(out, "Terms:    %d\n", stats.Terms)
			fmt.Fprintf(out, "Tokens:   %d\n", stats.Tokens)

			categories := make([]string, 0, len(stats.Categories))
			for c := range stats.Categories {
				categories = append(categories, c)
			}
			sort.Strings(categories)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\nCATEGORY\tRECORDS")
			for _, c := range categories {
				fmt.Fprintf(w, "%s\t%d\n", c, stats.Categories[c])
			}
			fmt.Fprintln(w, "\nTERM\tRECORDS")
			for _, t := range stats.TopTerms {
				fmt.Fprintf(w, "%s\t%d\n", t.Term, t.DocFreq)
			}
			return w.Flush()
		},
	}
}
