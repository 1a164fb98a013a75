package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/api"
	"github.com/yourusername/media-fetch-go/api/handlers"
	"github.com/yourusername/media-fetch-go/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		detach, _ := cmd.Flags().GetBool("detach")
		if detach {
			return startDetached()
		}
		return runServer()
	},
}

func init() {
	serveCmd.Flags().BoolP("detach", "d", false, "Run the server in the background")
}

// startDetached re-executes the binary as a background server in its own session
func startDetached() error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(execPath, args...)
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	fmt.Printf("Server started in background (PID: %d)\n", cmd.Process.Pid)
	return cmd.Process.Release()
}

func runServer() error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()
	log := rt.log

	log.Info("Starting mediafetch server",
		zap.String("version", handlers.Version),
		zap.String("host", rt.config.Server.Host),
		zap.Int("port", rt.config.Server.Port),
		zap.String("tool", rt.config.Tool.Binary))

	if err := app.Preflight(rt.config); err != nil {
		log.Warn("Preflight check failed, fetches will fail until fixed", zap.Error(err))
	}

	router := api.SetupRouter(api.RouterConfig{
		Fetches:     rt.service,
		History:     rt.history,
		RateGate:    rt.rateGate,
		Ready:       func() error { return app.Preflight(rt.config) },
		LogsDir:     rt.multiLog.GetLogsDir(),
		Logger:      log,
		MultiLogger: rt.multiLog,
	})

	addr := fmt.Sprintf("%s:%d", rt.config.Server.Host, rt.config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		// Closing the connections cancels the fetches still running
		log.Error("Server forced to shutdown", zap.Error(err))
		_ = server.Close()
	}

	log.Info("Server exited")
	return nil
}
