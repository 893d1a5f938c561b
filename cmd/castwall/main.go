package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amoylab/castwall/internal/app"
	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/pkg/helper"
	"github.com/amoylab/castwall/pkg/logger"
	"github.com/amoylab/castwall/pkg/utils"
	"github.com/amoylab/castwall/pkg/version"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of castwall",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("castwall version %s\n", version.Get())
		},
	}

	testCmd = &cobra.Command{
		Use:   "test",
		Short: "Test the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, path, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("configuration test failed: %w", err)
			}
			fmt.Printf("configuration file %s test is successful\n", path)
			return nil
		},
	}

	rootCmd = &cobra.Command{
		Use:   "castwall",
		Short: "Window broadcast hub",
		Long:  `castwall captures application windows and streams them to every connected browser as MJPEG feeds`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", "castwall.yaml", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(testCmd)
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("Loaded configuration",
		zap.String("path", cfgPath),
		zap.String("version", version.Get()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub, err := app.New(ctx, lg, cfg)
	if err != nil {
		lg.Fatal("Failed to initialize castwall", zap.Error(err))
	}

	pid := utils.NewPIDManager(helper.GetPIDPath(cfg.PID))
	if err := pid.WritePID(); err != nil {
		lg.Warn("Failed to write PID file", zap.String("path", pid.GetPIDFile()), zap.Error(err))
	} else {
		defer func() {
			if err := pid.RemovePID(); err != nil {
				lg.Warn("Failed to remove PID file", zap.Error(err))
			}
		}()
	}

	hub.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	lg.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := hub.Shutdown(shutdownCtx); err != nil {
		lg.Error("Failed to shut down cleanly", zap.Error(err))
	}
	cancel()
	lg.Info("Bye")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
