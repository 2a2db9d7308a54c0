package main

import (
	"github.com/spf13/cobra"

	"github.com/qepting91/social-scraper/internal/dashboard"
	"github.com/qepting91/social-scraper/internal/ingest"
)

var (
	dashboardData     string
	dashboardKeywords string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve charts over a collected JSON or NDJSON file",
	Long: `Dashboard serves score, engagement, community and keyword charts on /,
the raw rows on /items and the collection counters on /metrics. The data
file is re-read on every request. The port comes from PORT (default 8080).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var keywords []string
		if dashboardKeywords != "" {
			kws, err := ingest.LoadKeywords(dashboardKeywords)
			if err != nil {
				state.logger.Warn("keywords_unavailable", "path", dashboardKeywords, "err", err)
			}
			keywords = kws
		}

		srv := dashboard.New(dashboardData, keywords, state.registry, state.logger)
		return srv.ListenAndServe(cmd.Context(), state.cfg.Server.Addr())
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardData, "data", "data/current.json", "document written by collect")
	dashboardCmd.Flags().StringVar(&dashboardKeywords, "keywords", "input/keywords.csv", "CSV of keywords to count, empty to skip")
}
