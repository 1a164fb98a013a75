package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

var progressCmd = &cobra.Command{
	Use:   "progress [id]",
	Short: "Show the progress of a running fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		watch, _ := cmd.Flags().GetBool("watch")
		if watch {
			return watchProgress(id)
		}

		resp, err := http.Get(serverURL + "/api/v1/progress/" + id)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("no running fetch with id %s", id)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}

		var event domain.ProgressEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return fmt.Errorf("invalid response: %w", err)
		}
		fmt.Println(formatEvent(event))
		return nil
	},
}

// watchProgress follows the websocket feed until the fetch's entry is cleared
func watchProgress(id string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/api/v1/progress/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	events := make(chan domain.ProgressEvent)
	go func() {
		defer close(events)
		for {
			var event domain.ProgressEvent
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			events <- event
		}
	}()

	newProgressReporter(os.Stderr).run(events)
	return nil
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a running fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		resp, err := http.Post(serverURL+"/api/v1/fetch/"+id+"/cancel", "application/json", nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusAccepted:
			fmt.Println("Fetch cancelled")
			return nil
		case http.StatusNotFound:
			return fmt.Errorf("no running fetch with id %s", id)
		default:
			return fmt.Errorf("server answered %s", resp.Status)
		}
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [id]",
	Short: "Show the raw tool transcript of a fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := serverURL + "/api/v1/logs/transcripts/" + args[0]
		if date, _ := cmd.Flags().GetString("date"); date != "" {
			url += "?date=" + date
		}

		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		fmt.Print(string(body))
		return nil
	},
}

func init() {
	progressCmd.Flags().BoolP("watch", "w", false, "Follow progress until the fetch ends")
	logsCmd.Flags().String("date", "", "Transcript date (YYYY-MM-DD, default today)")
}
