package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pixeljobs/pixeljobs/internal/metrics"
	"github.com/pixeljobs/pixeljobs/pkg/jobcache"
	"github.com/pixeljobs/pixeljobs/pkg/logging"
	"github.com/pixeljobs/pixeljobs/pkg/models"
	"github.com/pixeljobs/pixeljobs/pkg/poller"
	"github.com/pixeljobs/pixeljobs/pkg/retry"
	"github.com/pixeljobs/pixeljobs/pkg/shutdown"
	"github.com/pixeljobs/pixeljobs/pkg/tracker"
)

var (
	watchInterval time.Duration
	watchLimit    int
	metricsPort   int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously watch recent jobs",
	Long: `Watch mode polls the recent job list and re-renders it on every update,
announcing jobs that finish while watching.

The poll loop can be paused and resumed without restarting:
SIGUSR1 pauses fetching, SIGUSR2 resumes it with an immediate refresh.

Example:
  pixeljobs watch
  pixeljobs watch --interval 5s --limit 20
  pixeljobs watch --metrics-port 9105`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", poller.DefaultInterval, "How often to poll for updates")
	watchCmd.Flags().IntVar(&watchLimit, "limit", 20, "How many recent jobs to track")
	watchCmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port (0=disabled)")
}

// logNotifier announces completions through the watch logger and stderr.
type logNotifier struct {
	logger *logging.Logger
}

func (n *logNotifier) JobCompleted(job models.Job) {
	fmt.Fprintf(os.Stderr, "\n✓ %s finished upscaling\n", job.OriginalFilename)
	n.logger.Info("job completed", map[string]interface{}{
		"job_id": job.ID,
		"file":   job.OriginalFilename,
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := logging.NewFileLogger("watch", logging.INFO, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	client := NewClient()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wait for the API before starting the poll loop. The poll loop itself
	// never retries; this only covers startup.
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		OnRetry: func(attempt int, err error) {
			logger.Warn("API not ready", map[string]interface{}{"attempt": attempt})
		},
	}, func() error {
		if !client.CheckHealth(ctx) {
			return errors.New("API health check failed")
		}
		return nil
	})
	if err != nil {
		logger.Close()
		return fmt.Errorf("API at %s is not reachable: %w", client.BaseURL(), err)
	}

	exporter := metrics.NewExporter()

	mgr := shutdown.New(10 * time.Second)
	mgr.Register(shutdown.CloseResource(logger))

	if metricsPort > 0 {
		router := mux.NewRouter()
		router.Handle("/metrics", exporter).Methods("GET")
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", metricsPort),
			Handler: router,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", map[string]interface{}{"error": err.Error()})
			}
		}()
		mgr.Register(shutdown.StopHTTPServer(metricsServer))
		logger.Info("metrics server started", map[string]interface{}{"port": metricsPort})
	}

	track := tracker.New(client, tracker.Config{Notifier: &logNotifier{logger: logger}})

	p := poller.NewRecent(client, poller.RecentConfig{
		Limit:    watchLimit,
		Interval: watchInterval,
		Cache:    jobcache.Shared,
		OnJobs: func(jobs []models.Job) {
			exporter.RecordPoll(jobs)
			track.Apply(jobs)
			renderWatchTable(jobs)
		},
		OnError: func(msg string) {
			exporter.RecordPollError()
			logger.Warn("poll failed", map[string]interface{}{"error": msg})
		},
	})
	p.Start(ctx)
	mgr.Register(func(context.Context) error {
		p.Stop()
		return nil
	})

	// SIGUSR1 pauses polling, SIGUSR2 resumes it.
	visChan := make(chan os.Signal, 1)
	signal.Notify(visChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range visChan {
			switch sig {
			case syscall.SIGUSR1:
				p.SetVisible(false)
				logger.Info("polling paused")
			case syscall.SIGUSR2:
				p.SetVisible(true)
				logger.Info("polling resumed")
			}
		}
	}()

	logger.Info("watch started", map[string]interface{}{
		"interval": watchInterval.String(),
		"limit":    watchLimit,
	})
	fmt.Println("Watching recent jobs. Press Ctrl+C to stop.")

	mgr.Wait()
	return nil
}

func renderWatchTable(jobs []models.Job) {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Printf("Recent jobs (%s)\n\n", time.Now().Format("15:04:05"))

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job ID", "File", "Status", "Progress", "Created", "Expires")
	for _, job := range jobs {
		table.Append(
			shortID(job.ID),
			job.OriginalFilename,
			string(job.Status),
			fmt.Sprintf("%d%%", job.Progress),
			job.CreatedAt,
			expiryText(job),
		)
	}
	table.Render()

	if ids := completedIDs(jobs); len(ids) > 1 {
		fmt.Printf("\n%d jobs completed and ready for batch download\n", len(ids))
	}
}
