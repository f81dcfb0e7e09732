package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"buildsmart/backend/internal/domain"
	"buildsmart/backend/internal/store"
	"buildsmart/backend/internal/xid"
)

type Store struct {
	db       *sql.DB
	defaults domain.Settings
}

func New(ctx context.Context, databaseURL string, defaults domain.Settings) (*Store, error) {
	if defaults.Loyalty.RewardThreshold < 1 {
		defaults = domain.DefaultSettings()
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, defaults: defaults}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	query := `
		SELECT id, name, category, unit, price, cost_price, stock, reorder_level, COALESCE(barcode, ''), active, created_at
		FROM products
		WHERE active = true
		ORDER BY category, name
	`
	if includeInactive {
		query = `
			SELECT id, name, category, unit, price, cost_price, stock, reorder_level, COALESCE(barcode, ''), active, created_at
			FROM products
			ORDER BY category, name
		`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Price, &p.CostPrice, &p.Stock, &p.ReorderLevel, &p.Barcode, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || !product.Price.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit, price, cost_price, stock, reorder_level, barcode, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
	`, product.ID, product.Name, product.Category, product.Unit, product.Price, product.CostPrice,
		product.Stock, product.ReorderLevel, nullIfEmpty(product.Barcode), product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, unit, price, cost_price, stock, reorder_level, COALESCE(barcode, ''), active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Price, &p.CostPrice, &p.Stock, &p.ReorderLevel, &p.Barcode, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit, price, cost_price, stock, reorder_level, COALESCE(barcode, ''), active, created_at
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Price, &p.CostPrice, &p.Stock, &p.ReorderLevel, &p.Barcode, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, unit = $4, price = $5, cost_price = $6,
			reorder_level = $7, barcode = $8, active = $9, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Unit, product.Price,
		product.CostPrice, product.ReorderLevel, nullIfEmpty(product.Barcode), product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) AddStock(ctx context.Context, productID string, qty decimal.Decimal) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
	`, productID, qty)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetProductByID(ctx, productID); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrInsufficientStock
	}
	return s.GetProductByID(ctx, productID)
}

func (s *Store) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit, price, cost_price, stock, reorder_level, COALESCE(barcode, ''), active, created_at
		FROM products
		WHERE active = true AND stock <= reorder_level
		ORDER BY stock ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Price, &p.CostPrice, &p.Stock, &p.ReorderLevel, &p.Barcode, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CountSalesForProduct(ctx context.Context, productID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT transaction_id)
		FROM sales_items
		WHERE product_id = $1
	`, productID).Scan(&count)
	return count, err
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Phone = strings.TrimSpace(customer.Phone)
	if customer.Phone == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, phone, name, loyalty_points, total_purchases, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.Phone, customer.Name, customer.LoyaltyPoints, customer.TotalPurchases, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: phone %s", store.ErrDuplicate, customer.Phone)
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	return s.findCustomer(ctx, "id", id)
}

func (s *Store) GetCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return s.findCustomer(ctx, "phone", phone)
}

func (s *Store) findCustomer(ctx context.Context, column string, value string) (*domain.Customer, error) {
	var c domain.Customer
	query := fmt.Sprintf(`
		SELECT id, phone, COALESCE(name, ''), loyalty_points, total_purchases, created_at
		FROM customers
		WHERE %s = $1
	`, column)
	err := s.db.QueryRowContext(ctx, query, value).Scan(&c.ID, &c.Phone, &c.Name, &c.LoyaltyPoints, &c.TotalPurchases, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT id, phone, COALESCE(name, ''), loyalty_points, total_purchases, created_at
		FROM customers
		ORDER BY created_at DESC
		LIMIT $1
	`, normalizeLimit(limit, 200))
}

func (s *Store) TopCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT id, phone, COALESCE(name, ''), loyalty_points, total_purchases, created_at
		FROM customers
		ORDER BY total_purchases DESC
		LIMIT $1
	`, normalizeLimit(limit, 10))
}

func (s *Store) queryCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Phone, &c.Name, &c.LoyaltyPoints, &c.TotalPurchases, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// CommitSale runs the whole sale as one serializable transaction. Product
// rows are locked with FOR UPDATE, stock and price are re-read under the
// lock, line totals are recomputed from the stored price, and the header,
// line items, stock decrements, customer total and outbox rows all commit
// together or not at all.
func (s *Store) CommitSale(ctx context.Context, tx domain.Transaction, effects []domain.SideEffect) (*domain.Transaction, error) {
	if len(tx.Items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", store.ErrInvalidTransaction)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	ids := uniqueProductIDs(tx.Items)
	if len(ids) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, price, stock
		FROM products
		WHERE active = true AND id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]domain.Product, len(ids))
	for productRows.Next() {
		var p domain.Product
		if err := productRows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[p.ID] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	subtotal := decimal.Zero
	recomputed := make([]domain.LineItem, 0, len(tx.Items))
	for _, item := range tx.Items {
		if !item.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: qty for %s", store.ErrInvalidTransaction, item.ProductID)
		}
		product, exists := productMap[item.ProductID]
		if !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if product.Stock.LessThan(item.Qty) {
			return nil, fmt.Errorf("%w: %s (available %s)", store.ErrInsufficientStock, product.Name, product.Stock)
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2
		`, item.Qty, item.ProductID)
		if err != nil {
			return nil, err
		}

		lineSubtotal := product.Price.Mul(item.Qty)
		recomputed = append(recomputed, domain.LineItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Qty:         item.Qty,
			UnitPrice:   product.Price,
			Subtotal:    lineSubtotal,
		})
		subtotal = subtotal.Add(lineSubtotal)
	}

	if tx.Discount.IsNegative() || tx.Discount.GreaterThan(subtotal) {
		return nil, fmt.Errorf("%w: discount", store.ErrInvalidTransaction)
	}

	tx.Items = recomputed
	tx.Subtotal = subtotal
	tx.Total = subtotal.Sub(tx.Discount)
	tx.Status = domain.TransactionCommitted
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (id, customer_id, customer_phone, cashier_id, subtotal, discount, total, payment_method, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, tx.ID, nullIfEmpty(tx.CustomerID), nullIfEmpty(tx.CustomerPhone), nullIfEmpty(tx.CashierID),
		tx.Subtotal, tx.Discount, tx.Total, tx.PaymentMethod, tx.Status, tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	for _, item := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sales_items (transaction_id, product_id, product_name, qty, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, tx.ID, item.ProductID, item.ProductName, item.Qty, item.UnitPrice, item.Subtotal)
		if err != nil {
			return nil, err
		}
	}

	if tx.CustomerID != "" {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE customers
			SET total_purchases = total_purchases + $2
			WHERE id = $1
		`, tx.CustomerID, tx.Total)
		if err != nil {
			return nil, err
		}
	}

	for _, eff := range effects {
		if eff.ID == "" {
			eff.ID = xid.New("eff")
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_side_effects (id, transaction_id, kind, status, attempts, created_at, updated_at)
			VALUES ($1,$2,$3,$4,0,$5,$5)
		`, eff.ID, tx.ID, eff.Kind, domain.SideEffectPending, tx.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &tx, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(customer_id, ''), COALESCE(customer_phone, ''), COALESCE(cashier_id, ''),
			subtotal, discount, total, payment_method, status, created_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&tx.ID, &tx.CustomerID, &tx.CustomerPhone, &tx.CashierID,
		&tx.Subtotal, &tx.Discount, &tx.Total, &tx.PaymentMethod, &tx.Status, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, qty, unit_price, subtotal
		FROM sales_items
		WHERE transaction_id = $1
		ORDER BY product_name
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Qty, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		tx.Items = append(tx.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(customer_id, ''), COALESCE(customer_phone, ''), COALESCE(cashier_id, ''),
			subtotal, discount, total, payment_method, status, created_at
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, normalizeLimit(limit, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.CustomerID, &tx.CustomerPhone, &tx.CashierID,
			&tx.Subtotal, &tx.Discount, &tx.Total, &tx.PaymentMethod, &tx.Status, &tx.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// AppendLoyaltyEvent inserts the event row and moves the customer balance in
// the same transaction, so the balance always equals the sum of events.
func (s *Store) AppendLoyaltyEvent(ctx context.Context, event domain.LoyaltyEvent) (int64, error) {
	if event.ID == "" {
		event.ID = xid.New("loy")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var balance int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT loyalty_points
		FROM customers
		WHERE id = $1
		FOR UPDATE
	`, event.CustomerID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}

	next := balance + event.Points
	if next < 0 {
		return 0, store.ErrInsufficientPoints
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO loyalty_transactions (id, customer_id, transaction_id, points, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, event.ID, event.CustomerID, nullIfEmpty(event.TransactionID), event.Points, event.Description, event.CreatedAt)
	if err != nil {
		return 0, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE customers
		SET loyalty_points = $2
		WHERE id = $1
	`, event.CustomerID, next)
	if err != nil {
		return 0, err
	}

	if err := pgTx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) ListLoyaltyEvents(ctx context.Context, customerID string, limit int) ([]domain.LoyaltyEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, COALESCE(transaction_id, ''), points, description, created_at
		FROM loyalty_transactions
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, customerID, normalizeLimit(limit, 100))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.LoyaltyEvent, 0, 32)
	for rows.Next() {
		var e domain.LoyaltyEvent
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.TransactionID, &e.Points, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) ListLoyaltyEventsByTransaction(ctx context.Context, transactionID string) ([]domain.LoyaltyEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, COALESCE(transaction_id, ''), points, description, created_at
		FROM loyalty_transactions
		WHERE transaction_id = $1
		ORDER BY created_at
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.LoyaltyEvent, 0, 2)
	for rows.Next() {
		var e domain.LoyaltyEvent
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.TransactionID, &e.Points, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) CreateRefund(ctx context.Context, refund domain.Refund, restoreStock bool) (*domain.Refund, error) {
	if refund.ID == "" {
		refund.ID = xid.New("rf")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	refund.StockRestored = restoreStock

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var total decimal.Decimal
	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT total, status
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, refund.TransactionID).Scan(&total, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.TransactionRefunded {
		return nil, store.ErrAlreadyRefunded
	}
	if !refund.Amount.IsPositive() || refund.Amount.GreaterThan(total) {
		return nil, fmt.Errorf("%w: refund amount", store.ErrInvalidTransaction)
	}

	if restoreStock {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE products p
			SET stock = p.stock + si.qty, updated_at = now()
			FROM sales_items si
			WHERE si.transaction_id = $1 AND si.product_id = p.id
		`, refund.TransactionID)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO refunds (id, transaction_id, amount, reason, stock_restored, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, refund.ID, refund.TransactionID, refund.Amount, refund.Reason, refund.StockRestored, refund.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyRefunded
		}
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2
		WHERE id = $1
	`, refund.TransactionID, domain.TransactionRefunded)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &refund, nil
}

func (s *Store) GetRefundByTransaction(ctx context.Context, transactionID string) (*domain.Refund, error) {
	var r domain.Refund
	err := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, amount, COALESCE(reason, ''), stock_restored, created_at
		FROM refunds
		WHERE transaction_id = $1
	`, transactionID).Scan(&r.ID, &r.TransactionID, &r.Amount, &r.Reason, &r.StockRestored, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) PendingSideEffects(ctx context.Context, limit int) ([]domain.SideEffect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, kind, status, attempts, COALESCE(result, ''), COALESCE(last_error, ''), created_at, updated_at
		FROM sale_side_effects
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, domain.SideEffectPending, normalizeLimit(limit, 50))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSideEffects(rows)
}

func (s *Store) ListSideEffectsByTransaction(ctx context.Context, transactionID string) ([]domain.SideEffect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, kind, status, attempts, COALESCE(result, ''), COALESCE(last_error, ''), created_at, updated_at
		FROM sale_side_effects
		WHERE transaction_id = $1
		ORDER BY created_at ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSideEffects(rows)
}

func scanSideEffects(rows *sql.Rows) ([]domain.SideEffect, error) {
	effects := make([]domain.SideEffect, 0, 16)
	for rows.Next() {
		var eff domain.SideEffect
		if err := rows.Scan(&eff.ID, &eff.TransactionID, &eff.Kind, &eff.Status, &eff.Attempts,
			&eff.Result, &eff.LastError, &eff.CreatedAt, &eff.UpdatedAt); err != nil {
			return nil, err
		}
		effects = append(effects, eff)
	}
	return effects, rows.Err()
}

func (s *Store) MarkSideEffectDone(ctx context.Context, id string, result string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sale_side_effects
		SET status = $2, result = $3, last_error = NULL, attempts = attempts + 1, updated_at = now()
		WHERE id = $1
	`, id, domain.SideEffectDone, nullIfEmpty(result))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) MarkSideEffectFailed(ctx context.Context, id string, reason string, terminal bool) error {
	status := domain.SideEffectPending
	if terminal {
		status = domain.SideEffectFailed
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sale_side_effects
		SET status = $2, last_error = $3, attempts = attempts + 1, updated_at = now()
		WHERE id = $1
	`, id, status, reason)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// GetSettings starts from the environment-seeded defaults and lets every
// stored row override its key.
func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	settings := s.defaults

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return settings, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, err
		}
		applySetting(&settings, key, value)
	}
	return settings, rows.Err()
}

func applySetting(settings *domain.Settings, key string, value string) {
	switch key {
	case "business_name":
		settings.BusinessName = value
	case "currency":
		settings.Currency = value
	case "loyalty_points_per_100":
		if v, err := parseInt64(value); err == nil && v >= 0 {
			settings.Loyalty.PointsPer100 = v
		}
	case "loyalty_reward_threshold":
		if v, err := parseInt64(value); err == nil && v > 0 {
			settings.Loyalty.RewardThreshold = v
		}
	case "loyalty_reward_value":
		if v, err := decimal.NewFromString(value); err == nil && v.IsPositive() {
			settings.Loyalty.RewardValue = v
		}
	}
}

func (s *Store) UpdateSettings(ctx context.Context, settings domain.Settings) error {
	pairs := map[string]string{
		"business_name":            settings.BusinessName,
		"currency":                 settings.Currency,
		"loyalty_points_per_100":   fmt.Sprintf("%d", settings.Loyalty.PointsPer100),
		"loyalty_reward_threshold": fmt.Sprintf("%d", settings.Loyalty.RewardThreshold),
		"loyalty_reward_value":     settings.Loyalty.RewardValue.String(),
	}
	for key, value := range pairs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO settings (key, value)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, key, value)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		From:          from,
		To:            to,
		GrossSales:    decimal.Zero,
		DiscountTotal: decimal.Zero,
		RefundTotal:   decimal.Zero,
		NetSales:      decimal.Zero,
		ItemsSold:     decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total), 0), COALESCE(SUM(discount), 0)
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.Transactions, &report.GrossSales, &report.DiscountTotal)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(si.qty), 0)
		FROM sales_items si
		JOIN transactions t ON t.id = si.transaction_id
		WHERE t.created_at >= $1 AND t.created_at < $2
	`, from, to).Scan(&report.ItemsSold)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.RefundTotal)
	if err != nil {
		return report, err
	}
	report.NetSales = report.GrossSales.Sub(report.RefundTotal)

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total), 0)
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY payment_method
		ORDER BY payment_method
	`, from, to)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var pb domain.PaymentBreakdown
		if err := rows.Scan(&pb.PaymentMethod, &pb.Count, &pb.Amount); err != nil {
			return report, err
		}
		report.ByPayment = append(report.ByPayment, pb)
	}
	return report, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password_hash, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now())
	`, user.Username, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password_hash = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueProductIDs(items []domain.LineItem) []string {
	if len(items) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		set[item.ProductID] = struct{}{}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func parseInt64(val string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func normalizeLimit(limit, fallback int) int {
	if limit < 1 {
		return fallback
	}
	return limit
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
