package commands

import (
	"os"

	"adbprojects/services/projects/checkpoint"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var checkpointPath *string

func init() {
	checkpointPath = checkpointCmd.PersistentFlags().String("checkpoint", "scraper_checkpoint.json", "Checkpoint file path.")
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointResetCmd)
	rootCmd.AddCommand(checkpointCmd)
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or reset crawl progress.",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the recorded crawl progress.",
	Run: func(cmd *cobra.Command, args []string) {
		cp := checkpoint.Load(*checkpointPath)
		stats := cp.Stats()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"Checkpoint", cp.Path()},
			{"Next Listing Page", cp.ResumePage()},
			{"Total Projects Scraped", cp.TotalScraped()},
			{"Listing Pages Scraped", stats.ListingPagesScraped},
			{"Detail Pages Scraped", stats.DetailPagesScraped},
			{"Errors Encountered", stats.ErrorsEncountered},
		})
		t.Render()

		if failed := cp.FailedUrls(); len(failed) > 0 {
			ft := table.NewWriter()
			ft.SetOutputMirror(os.Stdout)
			ft.SetTitle("Failed URLs")
			ft.AppendHeader(table.Row{"URL", "Error", "Timestamp"})
			for _, f := range failed {
				ft.AppendRow(table.Row{f.Url, f.Error, f.Timestamp})
			}
			ft.Render()
		}
	},
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discards all recorded crawl progress.",
	Run: func(cmd *cobra.Command, args []string) {
		checkpoint.Load(*checkpointPath).Reset()
	},
}
