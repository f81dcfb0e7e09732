package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"buildsmart/backend/internal/cache"
	"buildsmart/backend/internal/domain"
	"buildsmart/backend/internal/notify"
	"buildsmart/backend/internal/service"
	"buildsmart/backend/internal/store/memory"
)

type stubGenerator struct {
	calls int
	fail  bool
}

func (g *stubGenerator) Generate(_ context.Context, tx domain.Transaction, _ domain.Settings) (string, error) {
	g.calls++
	if g.fail {
		return "", errors.New("printer jam")
	}
	return fmt.Sprintf("invoices/%s.txt", tx.ID), nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	fail     bool
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("gateway unreachable")
	}
	n.messages = append(n.messages, msg)
	return nil
}

func commitSale(t *testing.T, repo *memory.Store, phone string) domain.SaleResponse {
	t.Helper()
	svc := service.New(repo, cache.NoopReportCache{}, nil, time.Second)
	resp, err := svc.CommitSale(context.Background(), domain.SaleRequest{
		Lines:         []domain.CartLine{{ProductID: "prod-001", Qty: decimal.NewFromInt(1)}},
		CustomerPhone: phone,
	})
	require.NoError(t, err)
	return resp
}

func TestProcessOnceDeliversInvoiceAndNotification(t *testing.T) {
	repo := memory.NewSeeded(domain.DefaultSettings())
	sale := commitSale(t, repo, "0771234567")

	gen := &stubGenerator{}
	notifier := &recordingNotifier{}
	d := New(repo, gen, notifier, nil, time.Second, 3)

	done, err := d.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, done)
	require.Equal(t, 1, gen.calls)

	require.Len(t, notifier.messages, 1)
	msg := notifier.messages[0]
	require.Equal(t, "0771234567", msg.Phone)
	require.Contains(t, msg.Text, sale.TransactionID)
	require.Equal(t, fmt.Sprintf("invoices/%s.txt", sale.TransactionID), msg.Attachment,
		"notification should carry the receipt generated earlier in the same pass")

	effects, err := repo.ListSideEffectsByTransaction(context.Background(), sale.TransactionID)
	require.NoError(t, err)
	for _, eff := range effects {
		require.Equal(t, domain.SideEffectDone, eff.Status, "effect %s", eff.Kind)
	}

	pending, err := repo.PendingSideEffects(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestProcessOnceSkipsNotifyWithoutPhone(t *testing.T) {
	repo := memory.NewSeeded(domain.DefaultSettings())
	sale := commitSale(t, repo, "")

	notifier := &recordingNotifier{}
	d := New(repo, &stubGenerator{}, notifier, nil, time.Second, 3)

	done, err := d.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, done, "walk-in sale queues only the invoice effect")
	require.Empty(t, notifier.messages)

	effects, err := repo.ListSideEffectsByTransaction(context.Background(), sale.TransactionID)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.Equal(t, domain.SideEffectInvoice, effects[0].Kind)
}

func TestFailedEffectRetriesThenGoesTerminal(t *testing.T) {
	repo := memory.NewSeeded(domain.DefaultSettings())
	sale := commitSale(t, repo, "0770001111")

	gen := &stubGenerator{}
	notifier := &recordingNotifier{fail: true}
	d := New(repo, gen, notifier, nil, time.Second, 2)

	ctx := context.Background()

	// First pass: invoice succeeds, notify fails (attempt 1 of 2).
	done, err := d.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, done)

	pending, err := repo.PendingSideEffects(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, domain.SideEffectNotify, pending[0].Kind)
	require.Equal(t, 1, pending[0].Attempts)

	// Second pass exhausts the attempts; the effect must stop being retried.
	done, err = d.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, done)

	pending, err = repo.PendingSideEffects(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	effects, err := repo.ListSideEffectsByTransaction(ctx, sale.TransactionID)
	require.NoError(t, err)
	for _, eff := range effects {
		if eff.Kind == domain.SideEffectNotify {
			require.Equal(t, domain.SideEffectFailed, eff.Status)
			require.Contains(t, eff.LastError, "gateway unreachable")
		}
	}
}

func TestUnknownEffectKindNeverCountsAsDone(t *testing.T) {
	repo := memory.NewSeeded(domain.DefaultSettings())
	ctx := context.Background()

	tx, err := repo.CommitSale(ctx, domain.Transaction{
		Items: []domain.LineItem{{ProductID: "prod-001", Qty: decimal.NewFromInt(1)}},
	}, []domain.SideEffect{{Kind: "telegram"}})
	require.NoError(t, err)

	d := New(repo, &stubGenerator{}, &recordingNotifier{}, nil, time.Second, 2)

	done, err := d.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, done)

	effects, err := repo.ListSideEffectsByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.Equal(t, domain.SideEffectPending, effects[0].Status)
	require.Equal(t, 1, effects[0].Attempts)
	require.Contains(t, effects[0].LastError, "unknown side effect kind")

	// The second attempt exhausts the budget and parks the effect.
	done, err = d.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, done)

	effects, err = repo.ListSideEffectsByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SideEffectFailed, effects[0].Status)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := memory.NewSeeded(domain.DefaultSettings())
	d := New(repo, &stubGenerator{}, &recordingNotifier{}, nil, time.Second, 3)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}
