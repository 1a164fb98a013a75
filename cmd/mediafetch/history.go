package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/app"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"github.com/yourusername/media-fetch-go/internal/infrastructure"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent fetches",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		config, err := app.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if !config.History.Enabled {
			return fmt.Errorf("history is disabled in the configuration")
		}

		repo, err := infrastructure.NewSQLiteHistoryRepository(config.History.DatabasePath, zap.NewNop())
		if err != nil {
			return err
		}
		defer repo.Close()

		records, err := repo.Recent(limit)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		stats, err := repo.Stats()
		if err != nil {
			return err
		}

		fmt.Println(renderHistory(records))
		fmt.Printf("Total: %d  Succeeded: %d  Failed: %d\n", stats.Total, stats.Succeeded, stats.Failed)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of records to show")
}

func renderHistory(records []*domain.HistoryRecord) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"When", "Status", "Format", "Attempts", "Size", "URL"})

	colour := isTerminal(os.Stdout)
	for _, r := range records {
		status := "ok"
		if !r.Success {
			status = string(r.ErrorKind)
		}
		if colour {
			if r.Success {
				status = text.FgGreen.Sprint(status)
			} else {
				status = text.FgRed.Sprint(status)
			}
		}

		size := ""
		if r.SizeBytes > 0 {
			size = humanBytes(r.SizeBytes)
		}
		tw.AppendRow(table.Row{
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			status,
			r.Format,
			r.Attempts,
			size,
			truncate(r.URL, 50),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
