package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eivind-moen/comicdl/internal/chapters"
	"github.com/eivind-moen/comicdl/internal/config"
	"github.com/eivind-moen/comicdl/internal/downloader"
	"github.com/eivind-moen/comicdl/internal/metadata"
	"github.com/eivind-moen/comicdl/internal/scrape"
	"github.com/eivind-moen/comicdl/internal/ui"
	"github.com/eivind-moen/comicdl/internal/util"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	// selection
	flagURL         string
	flagChapter     string
	flagRange       string
	flagList        string
	flagInteractive bool

	// runtime
	flagOutput         string
	flagImageWorkers   int
	flagChapterWorkers int
	flagRetries        int
	flagTimeout        int
	flagCBZ            bool
	flagKeepFolders    bool
	flagDryRun         bool

	// headers/auth
	flagCookie     string
	flagCookieFile string
	flagUserAgent  string
	flagNoCFBypass bool
)

func init() {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download comic chapters and write ComicInfo.xml. Uses the defaults from the config, overwritten by CLI flags",
		RunE:  runDownload,
	}

	// selection
	downloadCmd.Flags().StringVar(&flagURL, "url", "", "series page URL")
	downloadCmd.Flags().StringVar(&flagChapter, "chapter", "", "download single chapter by index or number (e.g. 5 or 28.5)")
	downloadCmd.Flags().StringVar(&flagRange, "range", "", "download range of chapters by index (e.g. 5-12)")
	downloadCmd.Flags().StringVar(&flagList, "list", "", "download specific chapter indices (e.g. 1,3,5)")
	downloadCmd.Flags().BoolVar(&flagInteractive, "interactive", false, "pick a chapter interactively")

	// runtime
	downloadCmd.Flags().StringVar(&flagOutput, "output", "", "output folder for the series")
	downloadCmd.Flags().IntVar(&flagImageWorkers, "image-workers", 5, "parallel image downloads per chapter")
	downloadCmd.Flags().IntVar(&flagChapterWorkers, "chapter-workers", 2, "parallel chapter downloads")
	downloadCmd.Flags().IntVar(&flagRetries, "retries", 3, "download attempts per image")
	downloadCmd.Flags().IntVar(&flagTimeout, "timeout", 30, "per-request timeout in seconds")
	downloadCmd.Flags().BoolVar(&flagCBZ, "cbz", false, "package each chapter into a CBZ archive")
	downloadCmd.Flags().BoolVar(&flagKeepFolders, "keep-folders", false, "keep chapter folders after CBZ packaging")
	downloadCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "show what would be downloaded, don’t download")

	// headers/auth
	downloadCmd.Flags().StringVar(&flagCookie, "cookie", "", "cookie string, e.g. \"key=value; other=123\"")
	downloadCmd.Flags().StringVar(&flagCookieFile, "cookie-file", "", "path to a text file with cookies (one header line)")
	downloadCmd.Flags().StringVar(&flagUserAgent, "user-agent", "", "override User-Agent")
	downloadCmd.Flags().BoolVar(&flagNoCFBypass, "no-cf-bypass", false, "disable the Cloudflare bypass transport")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, _ []string) error {
	cfg, usedPath, err := config.LoadMerged(config.Options{
		IgnoreConfig: flagIgnoreConfig,
		Debug:        flagDebug,
		Output:       flagOutput,
		CBZ:          flagCBZ,
		KeepFolders:  flagKeepFolders,
		DefaultURL:   flagURL,
		DefaultRange: flagRange,
		DefaultList:  flagList,
		Cookie:       flagCookie,
		CookieFile:   flagCookieFile,
		UserAgent:    flagUserAgent,
	})
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("image-workers") {
		cfg.ImageWorkers = flagImageWorkers
	}
	if cmd.Flags().Changed("chapter-workers") {
		cfg.ChapterWorkers = flagChapterWorkers
	}
	if cmd.Flags().Changed("retries") {
		cfg.Retries = flagRetries
	}
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutSeconds = flagTimeout
	}
	if flagNoCFBypass {
		cfg.CloudflareBypass = false
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logSvc := ui.NewLogger(cfg.Debug)
	if usedPath != "" {
		fmt.Printf("Config file: %s\n", usedPath)
	}

	if err := os.MkdirAll(cfg.Output, 0755); err != nil {
		return fmt.Errorf("cannot create output folder: %w", err)
	}

	fmt.Println("Full config:")
	cfg.Print()
	fmt.Println()

	if cfg.DefaultURL == "" {
		return fmt.Errorf("missing --url and no default_url in config")
	}

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

	ctx := context.Background()

	scr := scrape.NewScraper(client, logSvc)

	series, allRaw, err := scr.GetSeries(ctx, cfg.DefaultURL)
	if err != nil {
		return err
	}
	if len(allRaw) == 0 {
		return fmt.Errorf("no chapters found for %q", series.Title)
	}

	all := chapters.Wrap(allRaw)

	if flagChapter == "" && flagRange == "" && flagList == "" &&
		cfg.DefaultRange == "" && cfg.DefaultList == "" && !flagInteractive {
		fmt.Printf("Found %d chapters of %s on the site.\n\n", len(all), series.Title)
	}

	selected, err := selectChapters(all, cfg)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return fmt.Errorf("no chapters selected")
	}

	seriesDir := filepath.Join(cfg.Output, util.Sanitize(series.Title))

	if flagDryRun {
		fmt.Printf("Dry-run: %d chapters selected for %s.\n\n", len(selected), seriesDir)
		for i, ch := range selected {
			fmt.Printf("%3d) %s\n    %s\n", i+1, ch.Name, ch.URL)
		}
		return nil
	}

	if err := os.MkdirAll(seriesDir, 0755); err != nil {
		return fmt.Errorf("cannot create series folder: %w", err)
	}

	util.SetupInterruptHandler(seriesDir)

	infoPath := filepath.Join(seriesDir, "ComicInfo.xml")
	if err := metadata.Write(infoPath, comicInfoFor(series)); err != nil {
		logSvc.Errorf("Could not write %s: %v\n", infoPath, err)
	} else {
		logSvc.Infof("Wrote %s\n", infoPath)
	}

	pm := ui.NewProgressManager()
	stats := &ui.Stats{}
	dl := downloader.New(client, logSvc, cfg.Retries, time.Duration(cfg.TimeoutSeconds)*time.Second)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(cfg.ChapterWorkers)

	for _, ch := range selected {
		ch := ch
		g.Go(func() error {
			downloadChapter(ctx, scr, dl, pm, logSvc, stats, cfg, seriesDir, ch)
			return nil
		})
	}

	_ = g.Wait()
	pm.Close()

	elapsed := time.Since(start).Round(time.Second)
	fmt.Printf("\nDownloaded %d chapters, %d pages (%s) in %s.\n",
		stats.TotalChapters.Load(), stats.TotalPages.Load(),
		util.Human(stats.TotalBytes.Load()), elapsed)
	if failed := stats.FailedPages.Load(); failed > 0 {
		fmt.Printf("%d pages failed; re-run to retry them.\n", failed)
	}
	fmt.Println("\nAll done.")

	return nil
}

// downloadChapter fetches one chapter end to end. Failures are
// reported and absorbed; they never stop the sibling chapters.
func downloadChapter(
	ctx context.Context,
	scr *scrape.Scraper,
	dl *downloader.Downloader,
	pm *ui.ProgressManager,
	logSvc *ui.Logger,
	stats *ui.Stats,
	cfg *config.Config,
	seriesDir string,
	ch chapters.Chapter,
) {
	images, err := scr.GetImages(ctx, ch.URL)
	if err != nil {
		logSvc.Errorf("Skipping %s: could not list images: %v\n", ch.Name, err)
		return
	}
	if len(images) == 0 {
		logSvc.Errorf("No images found for %s. Skipping download.\n", ch.Name)
		return
	}

	handle := pm.Register(ch.Name)
	handle.SetTotal(len(images))

	folder := filepath.Join(seriesDir, ch.DirName())
	if cfg.CBZ {
		folder = filepath.Join(seriesDir, ch.TempDirName())
	}

	res, err := dl.DownloadBatch(ctx, images, folder, ch.URL, cfg.ImageWorkers, handle)
	if err != nil {
		logSvc.Errorf("Chapter %s failed: %v\n", ch.Name, err)
		return
	}

	failed := len(res.Outcomes) - len(res.Files)

	if cfg.CBZ {
		if len(res.Files) > 0 {
			cbzPath := ch.CBZPath(seriesDir)
			if err := util.CreateCBZ(res.Files, cbzPath); err != nil {
				logSvc.Errorf("Could not package %s: %v\n", cbzPath, err)
			} else if !cfg.KeepFolders {
				util.CleanupFolder(folder)
			}
		} else {
			// nothing to package, don't leave the empty _tmp dir behind
			util.CleanupFolder(folder)
		}
	}

	stats.TotalChapters.Add(1)
	stats.TotalPages.Add(int64(len(res.Files)))
	stats.FailedPages.Add(int64(failed))
	stats.TotalBytes.Add(res.Bytes)

	if failed > 0 {
		logSvc.Errorf("Chapter %s finished with %d/%d pages missing.\n", ch.Name, failed, len(res.Outcomes))
	}
}

func selectChapters(all []chapters.Chapter, cfg *config.Config) ([]chapters.Chapter, error) {
	if flagInteractive {
		items := make([]string, len(all))
		for i, ch := range all {
			items[i] = ch.Name
		}

		prompt := promptui.Select{
			Label: "Select chapter",
			Items: items,
			Size:  15,
		}

		idx, _, err := prompt.Run()
		if err != nil {
			return nil, err
		}

		return []chapters.Chapter{all[idx]}, nil
	}

	finalRange := flagRange
	if finalRange == "" {
		finalRange = cfg.DefaultRange
	}

	finalList := flagList
	if finalList == "" {
		finalList = cfg.DefaultList
	}

	if flagChapter != "" {
		selected := chapters.Filter(all, flagChapter, "", "")
		if len(selected) == 0 {
			return nil, fmt.Errorf("chapter '%s' not found", flagChapter)
		}
		return selected, nil
	}

	return chapters.Filter(all, "", finalRange, finalList), nil
}

func comicInfoFor(s scrape.Series) metadata.ComicInfo {
	return metadata.ComicInfo{
		Title:   s.Title,
		Series:  s.Title,
		Summary: s.Summary,
		Writer:  s.Writer,
		Genre:   s.Genre,
		Web:     s.Web,
		Manga:   "Yes",
	}
}
