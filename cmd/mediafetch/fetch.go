package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/yourusername/media-fetch-go/api/handlers"
	"github.com/yourusername/media-fetch-go/api/middleware"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Fetch a media URL into a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quality, _ := cmd.Flags().GetString("quality")
		ext, _ := cmd.Flags().GetString("ext")
		formatID, _ := cmd.Flags().GetString("format")
		title, _ := cmd.Flags().GetString("title")
		output, _ := cmd.Flags().GetString("output")
		remote, _ := cmd.Flags().GetBool("remote")

		req := domain.DownloadRequest{
			URL:       args[0],
			Quality:   quality,
			Extension: ext,
			FormatID:  formatID,
			Title:     title,
		}.WithDefaults()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if remote {
			return fetchRemote(ctx, req, output)
		}
		return fetchLocal(ctx, req, output)
	},
}

func init() {
	fetchCmd.Flags().StringP("quality", "q", "", "Quality: best, audio, or a height such as 720")
	fetchCmd.Flags().StringP("ext", "e", "", "Target container (mp4, webm, mkv, mp3, m4a, ...)")
	fetchCmd.Flags().StringP("format", "f", "", "Explicit tool format id")
	fetchCmd.Flags().StringP("title", "t", "", "Title used for the output file name")
	fetchCmd.Flags().StringP("output", "o", "", "Output file or directory (default: current directory)")
	fetchCmd.Flags().Bool("remote", false, "Fetch through the server instead of running the engine here")
}

// fetchLocal runs the engine in this process
func fetchLocal(ctx context.Context, req domain.DownloadRequest, output string) error {
	rt, err := buildRuntime(configPath, true)
	if err != nil {
		return err
	}
	defer rt.close()

	events, unsubscribe := rt.service.Registry().Subscribe(req.CorrelationID)
	defer unsubscribe()
	reporter := newProgressReporter(os.Stderr)
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		reporter.run(events)
	}()

	delivery, err := rt.service.Fetch(ctx, req)
	if err != nil {
		unsubscribe()
		<-reported
		return describeFailure(err)
	}

	path := outputPath(output, delivery.Stream.Filename())
	written, err := writeFile(path, func(w io.Writer) (int64, error) {
		return delivery.Stream.WriteTo(w)
	})
	unsubscribe()
	<-reported
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("Saved %s (%s, %d bytes, %d attempt(s))\n",
		path, delivery.Artifact.Plan.Label, written, delivery.Artifact.Attempts)
	if delivery.Artifact.Warning != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", delivery.Artifact.Warning)
	}
	return nil
}

// fetchRemote asks the server to fetch and streams the response body to disk
func fetchRemote(ctx context.Context, req domain.DownloadRequest, output string) error {
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	body, err := json.Marshal(handlers.FetchRequest{
		URL:           req.URL,
		Quality:       req.Quality,
		Extension:     req.Extension,
		FormatID:      req.FormatID,
		Title:         req.Title,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/v1/fetch", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	fmt.Fprintf(os.Stderr, "Correlation ID: %s\n", req.CorrelationID)
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure handlers.ErrorResponse
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &failure) != nil || failure.Error == "" {
			return fmt.Errorf("server answered %s", resp.Status)
		}
		if failure.Kind == "" {
			return errors.New(failure.Error)
		}
		return describeFailure(&domain.FetchError{
			Kind:       failure.Kind,
			Message:    failure.Error,
			Suggestion: failure.Suggestion,
			Attempts:   failure.Attempts,
		})
	}

	filename := "download"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = filepath.Base(params["filename"])
	}
	path := outputPath(output, filename)

	bar := progressbar.DefaultBytes(resp.ContentLength, "receiving")
	written, err := writeFile(path, func(w io.Writer) (int64, error) {
		return io.Copy(io.MultiWriter(w, bar), resp.Body)
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("Saved %s (%d bytes, id %s)\n", path, written, resp.Header.Get(middleware.CorrelationHeader))
	return nil
}

// writeFile writes through a .part file so an interrupted transfer leaves nothing behind
func writeFile(path string, copyTo func(io.Writer) (int64, error)) (int64, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, err
		}
	}
	part := path + ".part"
	file, err := os.Create(part)
	if err != nil {
		return 0, err
	}

	written, err := copyTo(file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(part)
		return written, err
	}
	return written, os.Rename(part, path)
}

func outputPath(output, filename string) string {
	if output == "" {
		return filename
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, filename)
	}
	return output
}

// describeFailure turns a fetch error into the message shown to the user
func describeFailure(err error) error {
	if domain.IsCancelled(err) {
		return errors.New("cancelled")
	}
	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		return err
	}
	msg := fmt.Sprintf("fetch failed (%s): %s", fetchErr.Kind, fetchErr.Message)
	if fetchErr.Suggestion != "" {
		msg += fmt.Sprintf("\nSuggestion: %s", fetchErr.Suggestion)
	}
	return errors.New(msg)
}
