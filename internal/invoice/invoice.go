package invoice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"buildsmart/backend/internal/domain"
)

// Generator renders a receipt artifact for a committed sale and returns the
// path of the written file.
type Generator interface {
	Generate(ctx context.Context, tx domain.Transaction, settings domain.Settings) (string, error)
}

// FileGenerator writes plain-text receipts into a local directory, one file
// per transaction. Files are written to a temp name first and renamed so a
// crash never leaves a half-written receipt behind.
type FileGenerator struct {
	dir string
}

func NewFileGenerator(dir string) (*FileGenerator, error) {
	if dir == "" {
		dir = "invoices"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("invoice dir: %w", err)
	}
	return &FileGenerator{dir: dir}, nil
}

func (g *FileGenerator) Generate(_ context.Context, tx domain.Transaction, settings domain.Settings) (string, error) {
	if tx.ID == "" {
		return "", fmt.Errorf("transaction id required")
	}

	content := Render(tx, settings)
	path := filepath.Join(g.dir, tx.ID+".txt")
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}

const receiptWidth = 42

// Render builds the receipt body. Kept separate from file IO so handlers and
// tests can render without touching disk.
func Render(tx domain.Transaction, settings domain.Settings) string {
	var b strings.Builder

	center := func(s string) {
		pad := (receiptWidth - len(s)) / 2
		if pad < 0 {
			pad = 0
		}
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(s)
		b.WriteByte('\n')
	}
	rule := func() {
		b.WriteString(strings.Repeat("-", receiptWidth))
		b.WriteByte('\n')
	}
	amountLine := func(label string, amount string) {
		gap := receiptWidth - len(label) - len(amount)
		if gap < 1 {
			gap = 1
		}
		b.WriteString(label)
		b.WriteString(strings.Repeat(" ", gap))
		b.WriteString(amount)
		b.WriteByte('\n')
	}

	center(settings.BusinessName)
	center("SALES RECEIPT")
	rule()
	b.WriteString(fmt.Sprintf("Receipt: %s\n", tx.ID))
	b.WriteString(fmt.Sprintf("Date:    %s\n", tx.CreatedAt.Format(time.DateTime)))
	if tx.CustomerPhone != "" {
		b.WriteString(fmt.Sprintf("Customer: %s\n", tx.CustomerPhone))
	}
	rule()

	for _, item := range tx.Items {
		b.WriteString(item.ProductName)
		b.WriteByte('\n')
		qtyLine := fmt.Sprintf("  %s x %s", item.Qty.String(), item.UnitPrice.StringFixed(2))
		amountLine(qtyLine, item.Subtotal.StringFixed(2))
	}

	rule()
	amountLine("Subtotal", tx.Subtotal.StringFixed(2))
	if tx.Discount.IsPositive() {
		amountLine("Discount", "-"+tx.Discount.StringFixed(2))
	}
	amountLine(fmt.Sprintf("TOTAL (%s)", settings.Currency), tx.Total.StringFixed(2))
	amountLine("Payment", tx.PaymentMethod)
	rule()
	center("Thank you for your business!")

	return b.String()
}
