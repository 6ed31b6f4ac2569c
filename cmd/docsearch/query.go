package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
)

func newQueryCmd(root *rootOptions) *cobra.Command {
	var (
		limit    int
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "query <term...>",
		Short: "Find records containing every term",
		Long: `Runs a term query against the payload. Matching is
case-insensitive and every term must appear in the record's title or text.

Example:
  docsearch query -p docs/search_index.js brgc
  docsearch query -p https://example.org/search_index.js eikonal --category method`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			res, err := executor.New(store, nil).Execute(cmd.Context(), executor.Request{
				Query:    strings.Join(args, " "),
				Limit:    limit,
				Category: category,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			if len(res.Results) == 0 {
				fmt.Fprintf(out, "no results for %q\n", res.Query)
				return nil
			}
			fmt.Fprintf(out, "%d of %d results for %q\n\n", len(res.Results), res.TotalHits, res.Query)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCORE\tCATEGORY\tTITLE\tLOCATION")
			for _, r := range res.Results {
				loc := r.Page
				if r.Location != "" {
					loc = r.Location
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Score, r.Category, r.Title, loc)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results to show")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only return records of this category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
