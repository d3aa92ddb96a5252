package outbox

import (
	"context"
	"time"

	"github.com/outboxlab/eventgate/internal/logger"
	"github.com/outboxlab/eventgate/internal/mailer"
	"github.com/outboxlab/eventgate/internal/metrics"
	"go.uber.org/zap"
)

// Processor drains pending entries on a fixed cadence, independent of request
// traffic. Each cycle claims a bounded FIFO batch, sends every entry with a
// bounded timeout, and records the outcome:
//
//	pending -> sent                       send succeeded
//	pending -> pending (attempts+1)       transient failure, retried next cycle
//	pending -> failed  (attempts == cap)  terminal, needs operator attention
//
// Multiple instances may run concurrently; the store's claim guarantees at
// most one of them holds a given entry.
type Processor struct {
	store     Store
	transport mailer.Transport

	// From identity stamped on every outbound mail.
	FromAddress string
	FromName    string

	// Behavior knobs, defaulted by NewProcessor.
	Interval    time.Duration // cycle cadence
	BatchSize   int           // max entries claimed per cycle
	MaxAttempts int           // attempts before an entry is parked as failed
	SendTimeout time.Duration // per-entry send budget; overrun counts as a transient failure
}

func NewProcessor(store Store, transport mailer.Transport, fromAddress, fromName string) *Processor {
	return &Processor{
		store:       store,
		transport:   transport,
		FromAddress: fromAddress,
		FromName:    fromName,
		Interval:    30 * time.Second,
		BatchSize:   50,
		MaxAttempts: 5,
		SendTimeout: 10 * time.Second,
	}
}

// Run ticks until ctx is cancelled. Cycles never overlap within one instance;
// across instances the claim semantics make overlap harmless.
func (p *Processor) Run(ctx context.Context) error {
	tick := time.NewTicker(p.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := p.RunOnce(ctx); err != nil {
				logger.Log.Error("outbox cycle failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes a single cycle. Exposed so an external scheduler can
// invoke processing directly.
func (p *Processor) RunOnce(ctx context.Context) error {
	if err := p.store.ClaimPending(ctx, p.BatchSize, p.processOne); err != nil {
		return err
	}

	oldest, err := p.store.OldestPending(ctx)
	if err != nil {
		return err
	}
	if oldest == nil {
		metrics.OutboxOldestPendingAge.Set(0)
	} else {
		metrics.OutboxOldestPendingAge.Set(time.Since(oldest.CreatedAt).Seconds())
	}
	return nil
}

func (p *Processor) processOne(ctx context.Context, e Entry) Entry {
	textBody := ""
	if e.TextBody != nil {
		textBody = *e.TextBody
	} else {
		textBody = mailer.HTMLToText(e.HTMLBody)
	}

	toName := ""
	if e.RecipientName != nil {
		toName = *e.RecipientName
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.SendTimeout)
	defer cancel()

	err := p.transport.Send(sendCtx, mailer.Message{
		FromAddress: p.FromAddress,
		FromName:    p.FromName,
		To:          e.RecipientEmail,
		ToName:      toName,
		Subject:     e.Subject,
		HTMLBody:    e.HTMLBody,
		TextBody:    textBody,
	})

	if err == nil {
		now := time.Now().UTC()
		e.Status = StatusSent
		e.SentAt = &now
		e.LastError = nil
		metrics.OutboxProcessedTotal.WithLabelValues("sent").Inc()
		logger.Log.Debug("outbox entry sent",
			zap.String("entry_id", e.ID), zap.String("email_type", e.EmailType))
		return e
	}

	e.Attempts++
	msg := err.Error()
	e.LastError = &msg

	if e.Attempts >= p.MaxAttempts {
		e.Status = StatusFailed
		metrics.OutboxProcessedTotal.WithLabelValues("failed").Inc()
		logger.Log.Error("outbox entry exhausted attempts",
			zap.String("entry_id", e.ID),
			zap.String("email_type", e.EmailType),
			zap.Int("attempts", e.Attempts),
			zap.Error(err),
		)
		return e
	}

	metrics.OutboxProcessedTotal.WithLabelValues("retried").Inc()
	logger.Log.Warn("outbox entry send failed, will retry",
		zap.String("entry_id", e.ID),
		zap.Int("attempts", e.Attempts),
		zap.Error(err),
	)
	return e
}
