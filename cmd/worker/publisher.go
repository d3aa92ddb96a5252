package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/outboxlab/eventgate/internal/config"
	"github.com/outboxlab/eventgate/internal/db"
	"github.com/outboxlab/eventgate/internal/integration"
	"github.com/outboxlab/eventgate/internal/logger"
	"github.com/spf13/cobra"
)

var publisherCmd = &cobra.Command{
	Use:   "publisher",
	Short: "Run Kafka integration event publisher",
	RunE:  runPublisher,
}

func runPublisher(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		return fmt.Errorf("kafka brokers and topic are required")
	}

	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	pub := integration.NewPublisher(dbx, integration.PublisherConfig{
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		PollEvery: cfg.Kafka.PollEvery,
		BatchSize: cfg.Kafka.BatchSize,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> publisher started topic=%s pollEvery=%s batchSize=%d",
		cfg.Kafka.Topic, cfg.Kafka.PollEvery, cfg.Kafka.BatchSize)

	if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
