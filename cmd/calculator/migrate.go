package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Skotchmaster/calculator/internal/mykafka"
	"github.com/Skotchmaster/calculator/internal/repo"
	"github.com/Skotchmaster/calculator/pkg/config"
	pkgdb "github.com/Skotchmaster/calculator/pkg/db"
	"github.com/Skotchmaster/calculator/pkg/logging"
)

func newMigrateCmd() *cobra.Command {
	var partitions int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and event topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
			logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName, "cmd", "migrate")

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := pkgdb.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pkgdb.Close(db)

			if err := repo.Migrate(ctx, db); err != nil {
				return err
			}
			logger.Info("tables_migrated")

			if len(cfg.KafkaBrokers) == 0 {
				logger.Info("topics_skipped", "reason", "KAFKA_BROKERS not set")
				return nil
			}
			if err := mykafka.EnsureTopics(ctx, cfg.KafkaBrokers[0], partitions,
				mykafka.TopicUserEvents, mykafka.TopicCalculationEvents); err != nil {
				return fmt.Errorf("create topics: %w", err)
			}
			logger.Info("topics_ready", "partitions", partitions)
			return nil
		},
	}
	cmd.Flags().IntVar(&partitions, "partitions", 1, "partitions per event topic")
	return cmd
}
