package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/nicepick/catalog"
	"github.com/grovetools/nicepick/cli"
	"github.com/grovetools/nicepick/logging"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect compiled emoji catalogs",
	}
	cmd.AddCommand(newCatalogInspectCmd())
	return cmd
}

// catalogReport is the --json form of `catalog inspect`.
type catalogReport struct {
	Path       string         `json:"path"`
	Version    uint16         `json:"version"`
	Entries    int            `json:"entries"`
	Tokens     int            `json:"tokens"`
	Categories map[string]int `json:"categories"`
	Matches    []matchReport  `json:"matches,omitempty"`
}

type matchReport struct {
	ID    uint32 `json:"id"`
	Glyph string `json:"glyph"`
	Name  string `json:"name"`
	Tier  string `json:"tier"`
}

func newCatalogInspectCmd() *cobra.Command {
	var query string
	var limit int
	cmd := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Verify a catalog file and print its statistics",
		Long: `Loads the catalog the way the daemon does, verifying its header,
checksum and index tables, then prints entry and category counts.
With --query, prints the ranked results for that query.

Examples:
  nicepick catalog inspect
  nicepick catalog inspect ./catalog.bin --query heart`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, _, err := cli.LoadConfig(cmd)
				if err != nil {
					return err
				}
				path = cfg.CatalogPath()
			}

			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}

			stats := cat.Stats()
			report := catalogReport{
				Path:       path,
				Version:    stats.Version,
				Entries:    stats.Entries,
				Tokens:     stats.Tokens,
				Categories: make(map[string]int, len(stats.Categories)),
			}
			for c, n := range stats.Categories {
				report.Categories[c.String()] = n
			}
			if query != "" {
				for _, m := range cat.Search(query).Take(limit) {
					report.Matches = append(report.Matches, matchReport{
						ID:    m.Entry.ID,
						Glyph: m.Entry.Glyph,
						Name:  m.Entry.Name,
						Tier:  m.Tier.String(),
					})
				}
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			console := logging.NewConsole().WithWriter(cmd.OutOrStdout())
			console.Success("Catalog is valid")
			console.Path("path", report.Path)
			console.Field("version", report.Version)
			console.Field("entries", report.Entries)
			console.Field("tokens", report.Tokens)
			for _, c := range catalog.Categories() {
				if n, ok := stats.Categories[c]; ok {
					console.Field("  "+c.String(), n)
				}
			}
			if query != "" {
				console.Divider()
				for _, m := range report.Matches {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-32s %s\n", m.Glyph, m.Name, m.Tier)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Show ranked results for a query")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of results to show with --query")
	return cmd
}
