package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/zipfetch/internal/discover"
	"github.com/brensch/zipfetch/internal/fetch"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List archive links found on the configured listing pages",
	Long: `Fetches every --index-url page and prints the absolute URL of each .zip
link it contains, deduplicated and sorted. Nothing is downloaded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		if len(cfg.IndexURLs) == 0 {
			return fmt.Errorf("no listing pages configured (use --index-url or index_urls)")
		}

		fetcher := fetch.NewHTTPFetcher(fetch.Options{Timeout: cfg.HTTPTimeout, UserAgent: cfg.UserAgent})
		links, err := discover.Discover(cmd.Context(), fetcher, cfg.IndexURLs, logger)
		for _, link := range links {
			fmt.Fprintln(cmd.OutOrStdout(), link)
		}
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		return nil
	},
}
