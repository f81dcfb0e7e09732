package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buildsmart/backend/internal/domain"
	"buildsmart/backend/internal/invoice"
	"buildsmart/backend/internal/notify"
	"buildsmart/backend/internal/store"
)

// Dispatcher drains pending sale side effects and delivers them at least
// once. Receipt generation and customer notification both run here, off the
// checkout path, so a slow printer or gateway can never block a sale.
type Dispatcher struct {
	repo        store.Repository
	invoices    invoice.Generator
	notifier    notify.Notifier
	log         *zap.Logger
	interval    time.Duration
	maxAttempts int
}

func New(repo store.Repository, invoices invoice.Generator, notifier notify.Notifier, logger *zap.Logger, interval time.Duration, maxAttempts int) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval < time.Second {
		interval = 5 * time.Second
	}
	if maxAttempts < 1 {
		maxAttempts = 5
	}

	return &Dispatcher{
		repo:        repo,
		invoices:    invoices,
		notifier:    notifier,
		log:         logger,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.ProcessOnce(ctx); err != nil {
				d.log.Warn("dispatch pass failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce handles one batch of pending effects and reports how many were
// completed.
func (d *Dispatcher) ProcessOnce(ctx context.Context) (int, error) {
	effects, err := d.repo.PendingSideEffects(ctx, 50)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, eff := range effects {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := d.process(ctx, eff); err != nil {
			terminal := eff.Attempts+1 >= d.maxAttempts
			d.log.Warn("side effect failed",
				zap.String("effect_id", eff.ID),
				zap.String("kind", eff.Kind),
				zap.String("transaction_id", eff.TransactionID),
				zap.Int("attempt", eff.Attempts+1),
				zap.Bool("terminal", terminal),
				zap.Error(err))
			if markErr := d.repo.MarkSideEffectFailed(ctx, eff.ID, err.Error(), terminal); markErr != nil {
				d.log.Error("failed to record side effect failure", zap.String("effect_id", eff.ID), zap.Error(markErr))
			}
			continue
		}
		done++
	}
	return done, nil
}

func (d *Dispatcher) process(ctx context.Context, eff domain.SideEffect) error {
	tx, err := d.repo.GetTransactionByID(ctx, eff.TransactionID)
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	settings, err := d.repo.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	switch eff.Kind {
	case domain.SideEffectInvoice:
		path, err := d.invoices.Generate(ctx, *tx, settings)
		if err != nil {
			return err
		}
		return d.repo.MarkSideEffectDone(ctx, eff.ID, path)

	case domain.SideEffectNotify:
		if tx.CustomerPhone == "" {
			return d.repo.MarkSideEffectDone(ctx, eff.ID, "skipped: no phone")
		}
		msg := notify.Message{
			Phone: tx.CustomerPhone,
			Text: fmt.Sprintf("%s: thank you for your purchase of %s %s (receipt %s).",
				settings.BusinessName, settings.Currency, tx.Total.StringFixed(2), tx.ID),
			Attachment: d.invoiceArtifact(ctx, tx.ID),
		}
		if err := d.notifier.Notify(ctx, msg); err != nil {
			return err
		}
		return d.repo.MarkSideEffectDone(ctx, eff.ID, "sent")

	default:
		// Reported as a failure by ProcessOnce so it never counts as done.
		return fmt.Errorf("unknown side effect kind %q", eff.Kind)
	}
}

// invoiceArtifact returns the receipt path when the invoice effect for the
// same transaction already completed. Message delivery does not wait for it.
func (d *Dispatcher) invoiceArtifact(ctx context.Context, transactionID string) string {
	effects, err := d.repo.ListSideEffectsByTransaction(ctx, transactionID)
	if err != nil {
		return ""
	}
	for _, eff := range effects {
		if eff.Kind == domain.SideEffectInvoice && eff.Status == domain.SideEffectDone {
			return eff.Result
		}
	}
	return ""
}
