package main

import (
	"context"
	"fmt"
	"os"

	"github.com/acme/enrollment/internal/config"
	"github.com/acme/enrollment/internal/database"
	"github.com/acme/enrollment/internal/logger"
	"github.com/acme/enrollment/internal/server"

	charmlog "github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "enrollment",
		Short:        "Course enrollment manager",
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Seed missing demo data and start the HTTP server",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Create the schema and seed missing demo data, then exit",
			RunE:  runSeed,
		},
	)
	return root
}

// bootstrap loads config, opens the database and seeds it.
func bootstrap(ctx context.Context) (*config.Config, *charmlog.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	db, err := database.Open(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := database.Seed(ctx, db, log); err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	_, _, _, err := bootstrap(cmd.Context())
	return err
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, db, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r, err := server.NewRouter(server.Deps{Config: cfg, DB: db, Log: log})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Info("starting server", "addr", addr, "driver", cfg.DBDriver)
	if err := r.Run(addr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
