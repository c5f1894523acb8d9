package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pixeljobs/pixeljobs/pkg/poller"
)

var (
	configEnvironment string
	configOutput      string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management and recommendations",
	Long:  `Commands for generating client configuration tuned to the local machine.`,
}

var configRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Generate recommended client configuration",
	Long: `Analyzes local hardware (CPU, RAM) and suggests client settings: how many
files to upload in parallel and how aggressively to poll. Slower machines and
development environments get gentler defaults.`,
	RunE: runConfigRecommend,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configRecommendCmd)

	configRecommendCmd.Flags().StringVarP(&configEnvironment, "environment", "e", "development",
		"Deployment environment: development, staging, production")
	configRecommendCmd.Flags().StringVarP(&configOutput, "output", "o", "text",
		"Output format: text, json, yaml, bash")
}

type ConfigRecommendation struct {
	Hardware        HardwareInfo `json:"hardware" yaml:"hardware"`
	Recommendations ClientConfig `json:"recommendations" yaml:"recommendations"`
	Rationale       string       `json:"rationale" yaml:"rationale"`
}

type HardwareInfo struct {
	CPUModel     string `json:"cpu_model" yaml:"cpu_model"`
	CPUThreads   int    `json:"cpu_threads" yaml:"cpu_threads"`
	RAMBytes     uint64 `json:"ram_bytes" yaml:"ram_bytes"`
	RAMGB        string `json:"ram_gb" yaml:"ram_gb"`
	OS           string `json:"os" yaml:"os"`
	Architecture string `json:"architecture" yaml:"architecture"`
}

type ClientConfig struct {
	MaxParallelUploads int    `json:"max_parallel_uploads" yaml:"max_parallel_uploads"`
	PollInterval       string `json:"poll_interval" yaml:"poll_interval"`
	RecentLimit        int    `json:"recent_limit" yaml:"recent_limit"`
}

func runConfigRecommend(cmd *cobra.Command, args []string) error {
	hardware, err := detectHardware()
	if err != nil {
		return fmt.Errorf("failed to detect hardware: %w", err)
	}

	config := calculateRecommendations(hardware, configEnvironment)
	rationale := generateRationale(hardware, config, configEnvironment)

	recommendation := ConfigRecommendation{
		Hardware:        hardware,
		Recommendations: config,
		Rationale:       rationale,
	}

	return outputRecommendation(recommendation, configOutput)
}

func detectHardware() (HardwareInfo, error) {
	hw := HardwareInfo{
		CPUModel:     "Unknown",
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}

	threads, err := cpu.Counts(true)
	if err != nil || threads < 1 {
		threads = runtime.NumCPU()
	}
	hw.CPUThreads = threads

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		hw.CPUModel = infos[0].ModelName
	}

	vmem, err := mem.VirtualMemory()
	if err != nil {
		return hw, err
	}
	hw.RAMBytes = vmem.Total
	hw.RAMGB = fmt.Sprintf("%.1f GB", float64(vmem.Total)/(1024*1024*1024))

	return hw, nil
}

func calculateRecommendations(hw HardwareInfo, environment string) ClientConfig {
	// Uploads are I/O bound; a quarter of the threads is plenty.
	parallel := hw.CPUThreads / 4
	if environment == "development" {
		parallel /= 2
	}
	if parallel < 1 {
		parallel = 1
	}
	if parallel > 8 {
		parallel = 8
	}

	pollInterval := poller.DefaultInterval
	if environment == "production" {
		pollInterval = 5 * time.Second
	}

	recentLimit := 20
	if hw.RAMBytes >= 16*1024*1024*1024 {
		recentLimit = 50
	}

	return ClientConfig{
		MaxParallelUploads: parallel,
		PollInterval:       pollInterval.String(),
		RecentLimit:        recentLimit,
	}
}

func generateRationale(hw HardwareInfo, config ClientConfig, env string) string {
	return fmt.Sprintf(
		"Based on %d CPU threads and %s in a %s environment: %d parallel uploads, polling every %s",
		hw.CPUThreads,
		hw.RAMGB,
		env,
		config.MaxParallelUploads,
		config.PollInterval,
	)
}

func outputRecommendation(rec ConfigRecommendation, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rec)

	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(rec)

	case "bash":
		fmt.Println("# Client configuration recommendations")
		fmt.Printf("export PIXELJOBS_MAX_PARALLEL_UPLOADS=%d\n", rec.Recommendations.MaxParallelUploads)
		fmt.Printf("export PIXELJOBS_POLL_INTERVAL=%s\n", rec.Recommendations.PollInterval)
		fmt.Printf("export PIXELJOBS_RECENT_LIMIT=%d\n", rec.Recommendations.RecentLimit)
		fmt.Println()
		fmt.Printf("# %s\n", rec.Rationale)
		return nil

	default: // text
		fmt.Println("Hardware Configuration:")
		fmt.Printf("  CPU: %s (%d threads)\n", rec.Hardware.CPUModel, rec.Hardware.CPUThreads)
		fmt.Printf("  RAM: %s\n", rec.Hardware.RAMGB)
		fmt.Printf("  OS: %s/%s\n", rec.Hardware.OS, rec.Hardware.Architecture)
		fmt.Println()

		fmt.Println("Recommended Client Configuration:")
		fmt.Printf("  --max-parallel-uploads %d\n", rec.Recommendations.MaxParallelUploads)
		fmt.Printf("  --interval %s\n", rec.Recommendations.PollInterval)
		fmt.Printf("  --limit %d\n", rec.Recommendations.RecentLimit)
		fmt.Println()

		fmt.Println("Rationale:")
		fmt.Printf("  %s\n", rec.Rationale)
		return nil
	}
}
