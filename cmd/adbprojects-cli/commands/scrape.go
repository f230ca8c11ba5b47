package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"adbprojects/lib/configutil"
	"adbprojects/lib/restyutil"
	"adbprojects/lib/scrapers/adb"
	"adbprojects/lib/serviceutil"
	"adbprojects/lib/telemetry"
	"adbprojects/services/projects/checkpoint"
	"adbprojects/services/projects/output"
	"adbprojects/services/projects/scraper"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type Config struct {
	BaseUrl     string `json:"base_url"`
	MaxAttempts int    `json:"max_attempts"`
}

var scrapeFlags struct {
	mode           *string
	outputDir      *string
	format         *string
	startPage      *int
	endPage        *int
	urlsFile       *string
	checkpointPath *string
	resume         *bool
	force          *bool
	resetCkpt      *bool
}

func init() {
	f := scrapeCmd.Flags()
	scrapeFlags.mode = f.String("mode", "listing", "Scraping mode: listing, detail, or both.")
	scrapeFlags.outputDir = f.String("output-dir", "output", "Directory scraped data is written to.")
	scrapeFlags.format = f.String("format", "both", "Output format: json, csv, or both.")
	scrapeFlags.startPage = f.Int("start-page", 0, "First listing page to scrape (zero-indexed).")
	scrapeFlags.endPage = f.Int("end-page", -1, "Last listing page to scrape, inclusive. -1 scrapes the whole catalog.")
	scrapeFlags.urlsFile = f.String("urls", "", "File of project URLs to scrape, one per line (detail mode).")
	scrapeFlags.checkpointPath = f.String("checkpoint", "scraper_checkpoint.json", "Checkpoint file path.")
	scrapeFlags.resume = f.Bool("resume", false, "Resume the listing crawl from the checkpoint.")
	scrapeFlags.force = f.Bool("force", false, "Re-scrape projects the checkpoint already holds.")
	scrapeFlags.resetCkpt = f.Bool("reset-checkpoint", false, "Discard the checkpoint before scraping.")
	rootCmd.AddCommand(scrapeCmd)
}

func readScrapeConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no config.json5 found, using defaults")
	} else if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = adb.DefaultBaseUrl
	}
	return cfg
}

func newSession(ctx context.Context, cfg Config) *adb.Session {
	if *verbose {
		adb.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/adbprojects"))
		telemetry.InstrumentPerfStats(ctx)
	}
	session, err := adb.NewSession(ctx, adb.SessionOptions{
		BaseUrl:     cfg.BaseUrl,
		MaxAttempts: cfg.MaxAttempts,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize scraping session", err)
	}
	return session
}

// targetFor builds the output file pair for one record stream,
// honoring the --format selection. Filenames carry the run timestamp
// so successive runs never clobber each other.
func targetFor(stream, timestamp string) output.Target {
	var target output.Target
	if *scrapeFlags.format == "json" || *scrapeFlags.format == "both" {
		target.JsonPath = filepath.Join(*scrapeFlags.outputDir, fmt.Sprintf("projects_%s_%s.json", stream, timestamp))
	}
	if *scrapeFlags.format == "csv" || *scrapeFlags.format == "both" {
		target.CsvPath = filepath.Join(*scrapeFlags.outputDir, fmt.Sprintf("projects_%s_%s.csv", stream, timestamp))
	}
	return target
}

func readUrlsFile(path string) []string {
	file, err := os.Open(path)
	if err != nil {
		serviceutil.Fatal("failed to open urls file", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		serviceutil.Fatal("failed to read urls file", err)
	}
	return urls
}

func printSummary(cp *checkpoint.Store, duration time.Duration) {
	stats := cp.Stats()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Scraping Complete")
	t.AppendRows([]table.Row{
		{"Total Projects Scraped", cp.TotalScraped()},
		{"Listing Pages Scraped", stats.ListingPagesScraped},
		{"Detail Pages Scraped", stats.DetailPagesScraped},
		{"Errors Encountered", stats.ErrorsEncountered},
		{"Failed URLs", len(cp.FailedUrls())},
		{"Duration", duration.Round(time.Second)},
	})
	t.Render()
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--mode listing|detail|both]",
	Short: "Scrapes the project catalog and writes JSON/CSV output incrementally.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		start := time.Now()

		switch *scrapeFlags.mode {
		case "listing", "detail", "both":
		default:
			serviceutil.Fatal("invalid --mode", fmt.Errorf("want listing, detail, or both, got %q", *scrapeFlags.mode))
		}
		switch *scrapeFlags.format {
		case "json", "csv", "both":
		default:
			serviceutil.Fatal("invalid --format", fmt.Errorf("want json, csv, or both, got %q", *scrapeFlags.format))
		}
		if *scrapeFlags.mode == "detail" && *scrapeFlags.urlsFile == "" {
			serviceutil.Fatal("missing flag", errors.New("--urls is required for detail mode"))
		}

		cfg := readScrapeConfig()

		cp := checkpoint.Load(*scrapeFlags.checkpointPath)
		if *scrapeFlags.resetCkpt {
			cp.Reset()
		}

		session := newSession(ctx, cfg)
		defer session.Close()

		s := scraper.New(session, cp, scraper.Options{
			StartPage: *scrapeFlags.startPage,
			EndPage:   *scrapeFlags.endPage,
			Resume:    *scrapeFlags.resume,
			Force:     *scrapeFlags.force,
		})

		timestamp := start.Format("20060102_150405")

		switch *scrapeFlags.mode {
		case "listing", "both":
			listings, err := s.ScrapeListings(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				serviceutil.Fatal("listing crawl failed", err)
			}
			if len(listings) > 0 {
				if flushErr := output.Flush(targetFor("listing", timestamp), listings); flushErr != nil {
					slog.Error("could not write listings", "err", flushErr)
				}
				slog.Info("scraped project listings", "count", len(listings))
			}

			if *scrapeFlags.mode == "both" && err == nil {
				urls := make([]string, len(listings))
				for i, listing := range listings {
					urls[i] = listing.Url
				}
				details, err := s.ScrapeDetails(ctx, urls, targetFor("detail", timestamp))
				if err != nil && !errors.Is(err, context.Canceled) {
					serviceutil.Fatal("detail crawl failed", err)
				}
				slog.Info("scraped project details", "count", len(details))
			}

		case "detail":
			urls := readUrlsFile(*scrapeFlags.urlsFile)
			details, err := s.ScrapeDetails(ctx, urls, targetFor("detail", timestamp))
			if err != nil && !errors.Is(err, context.Canceled) {
				serviceutil.Fatal("detail crawl failed", err)
			}
			slog.Info("scraped project details", "count", len(details))
		}

		printSummary(cp, time.Since(start))
	},
}
