package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixeljobs/pixeljobs/internal/devserver"
	"github.com/pixeljobs/pixeljobs/pkg/shutdown"
)

var (
	devserverPort int
	devserverTick time.Duration
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local stand-in for the job API",
	Long: `Runs an in-memory job API for local development. Uploaded jobs advance
through queued, processing and completed on a fixed tick; filenames starting
with "fail" fail instead.

Example:
  pixeljobs devserver --port 8000 --tick 1s`,
	RunE: runDevServer,
}

func init() {
	rootCmd.AddCommand(devserverCmd)

	devserverCmd.Flags().IntVar(&devserverPort, "port", 8000, "Port to listen on")
	devserverCmd.Flags().DurationVar(&devserverTick, "tick", time.Second, "Lifecycle advancement interval")
}

func runDevServer(cmd *cobra.Command, args []string) error {
	handler := devserver.NewHandler()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", devserverPort),
		Handler: handler.Router(),
	}

	stop := make(chan struct{})
	go handler.Run(devserverTick, stop)

	mgr := shutdown.New(10 * time.Second)
	mgr.Register(func(ctx context.Context) error {
		close(stop)
		return nil
	})
	mgr.Register(shutdown.StopHTTPServer(server))

	errChan := make(chan error, 1)
	go func() {
		fmt.Printf("Dev server listening on :%d (tick %s)\n", devserverPort, devserverTick)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("dev server failed: %w", err)
	case <-done:
		return nil
	}
}
