package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goreliks/pdf-hunter-sub000/internal/config"
	"github.com/goreliks/pdf-hunter-sub000/internal/forensics"
	"github.com/goreliks/pdf-hunter-sub000/internal/gateway"
	"github.com/goreliks/pdf-hunter-sub000/internal/orchestrator"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pdfhunter",
	Short: "pdf-hunter - static forensic investigation of hostile PDFs",
	Long: `pdf-hunter orchestrates a static forensic examination of a potentially
hostile PDF: a one-time triage classifies the artifact into investigation
missions, concurrent investigators pursue them with forensic tools, and
their evidence is merged, reviewed, and finalized into a verdict.

The artifact is never opened or executed; all examination is static.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// analyzeCmd runs a full investigation session against one artifact.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Run a full investigation session against a PDF artifact",
	Long: `Runs the complete pipeline against one PDF:
  1. Triage: structural scan and mission classification
  2. Rounds: concurrent investigations, evidence merge, review
  3. Finalize: verdict, attack chain, and indicators of compromise

The final report is printed as JSON; with --output the report and the
session audit trail are also written to the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

// toolsCmd lists the registered forensic tools.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the available forensic tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := forensics.NewRegistry(logger)
		forensics.RegisterDefaults(registry)
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

var (
	outputDir string
	directive string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	analyzeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for the report and session audit trail")
	analyzeCmd.Flags().StringVarP(&directive, "directive", "d", "", "Operator focus for a dedicated investigation mission")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	artifact, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve artifact path: %w", err)
	}
	if _, err := os.Stat(artifact); err != nil {
		return fmt.Errorf("artifact not readable: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown: in-flight investigations finish their step and
	// the session finalizes with partial evidence.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, finalizing with partial evidence")
		cancel()
	}()

	gw, err := gateway.NewGeminiGateway(ctx, gateway.GeminiConfig{
		APIKey: cfg.Gateway.APIKey,
		Model:  cfg.Gateway.Model,
	}, logger)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	tools := forensics.NewRegistry(logger)
	forensics.RegisterDefaults(tools)

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	loop := orchestrator.NewLoop(gw, tools, cfg, logger)
	report, session, runErr := loop.Run(ctx, orchestrator.Input{
		ArtifactPath: artifact,
		OutputDir:    outputDir,
		Directive:    directive,
	})

	// The session audit trail is written even when finalization failed.
	if outputDir != "" && session != nil {
		if err := writeJSON(filepath.Join(outputDir, "session.json"), session); err != nil {
			logger.Warn("failed to write session audit trail", zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}

	if outputDir != "" {
		if err := writeJSON(filepath.Join(outputDir, "report.json"), report); err != nil {
			logger.Warn("failed to write report", zap.Error(err))
		}
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
