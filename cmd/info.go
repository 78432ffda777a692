package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/eivind-moen/comicdl/internal/config"
	"github.com/eivind-moen/comicdl/internal/scrape"
	"github.com/eivind-moen/comicdl/internal/ui"
	"github.com/eivind-moen/comicdl/internal/util"

	"github.com/spf13/cobra"
)

var flagInfoURL string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show series metadata and the chapter listing without downloading",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := config.LoadMerged(config.Options{
			IgnoreConfig: flagIgnoreConfig,
			Debug:        flagDebug,
			DefaultURL:   flagInfoURL,
		})
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.DefaultURL == "" {
			return fmt.Errorf("missing --url and no default_url in config")
		}

		logSvc := ui.NewLogger(cfg.Debug)

		client, err := util.NewHTTPClient(util.HTTPClientOptions{
			Timeout:          time.Duration(cfg.TimeoutSeconds) * time.Second,
			UserAgent:        util.PickUserAgent(cfg.UserAgent),
			Cookie:           cfg.Cookie,
			CookieFile:       cfg.CookieFile,
			CloudflareBypass: cfg.CloudflareBypass,
			DebugLogger:      logSvc,
		})
		if err != nil {
			return err
		}

		scr := scrape.NewScraper(client, logSvc)

		series, chapters, err := scr.GetSeries(context.Background(), cfg.DefaultURL)
		if err != nil {
			return err
		}

		fmt.Printf("Title:   %s\n", series.Title)
		if series.Writer != "" {
			fmt.Printf("Author:  %s\n", series.Writer)
		}
		if series.Genre != "" {
			fmt.Printf("Genre:   %s\n", series.Genre)
		}
		if series.Summary != "" {
			fmt.Printf("Summary: %s\n", series.Summary)
		}
		fmt.Printf("\n%d chapters:\n", len(chapters))
		for i, ch := range chapters {
			fmt.Printf("%4d) %s\n      %s\n", i+1, ch.Name, ch.URL)
		}

		return nil
	},
}

func init() {
	infoCmd.Flags().StringVar(&flagInfoURL, "url", "", "series page URL")
	rootCmd.AddCommand(infoCmd)
}
