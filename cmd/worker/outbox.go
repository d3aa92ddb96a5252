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
	"github.com/outboxlab/eventgate/internal/logger"
	"github.com/outboxlab/eventgate/internal/mailer"
	"github.com/outboxlab/eventgate/internal/metrics"
	"github.com/outboxlab/eventgate/internal/outbox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Run outbox email processor",
	RunE:  runOutbox,
}

func runOutbox(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

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

	transport, err := buildTransport(cfg.Mailer)
	if err != nil {
		return err
	}

	p := outbox.NewProcessor(outbox.NewMySQLStore(dbx), transport, cfg.Mailer.FromAddress, cfg.Mailer.FromName)

	// tune knobs
	if cfg.Outbox.Interval > 0 {
		p.Interval = cfg.Outbox.Interval
	}
	if cfg.Outbox.BatchSize > 0 {
		p.BatchSize = cfg.Outbox.BatchSize
	}
	if cfg.Outbox.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Outbox.MaxAttempts
	}
	if cfg.Outbox.SendTimeout > 0 {
		p.SendTimeout = cfg.Outbox.SendTimeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> outbox processor started transport=%s interval=%s batchSize=%d maxAttempts=%d",
		transport.Name(), p.Interval, p.BatchSize, p.MaxAttempts)

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildTransport(cfg config.MailerConfig) (mailer.Transport, error) {
	switch cfg.Transport {
	case "", "smtp":
		return mailer.NewSMTPTransport(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password), nil
	case "http":
		if cfg.HTTP.URL == "" {
			return nil, fmt.Errorf("http mail transport selected but no url configured")
		}
		return mailer.NewHTTPTransport(
			cfg.HTTP.Name,
			cfg.HTTP.URL,
			cfg.HTTP.APIKey,
			cfg.HTTP.Timeout,
			cfg.HTTP.Breaker.FailThreshold,
			cfg.HTTP.Breaker.OpenFor,
		), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}
