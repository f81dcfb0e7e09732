package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"buildsmart/backend/internal/domain"
	"buildsmart/backend/internal/store"
	"buildsmart/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	customersByID    map[string]domain.Customer
	customersByPhone map[string]string
	transactionsByID map[string]*domain.Transaction
	refundsByTx      map[string]domain.Refund
	loyaltyEvents    []domain.LoyaltyEvent
	sideEffectsByID  map[string]domain.SideEffect
	sideEffectOrder  []string
	settings         domain.Settings
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:     u.username,
			PasswordHash: string(hash),
			Role:         u.role,
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New(defaults domain.Settings) *Store {
	// A zero-value profile would break loyalty math; fall back to the
	// built-in one.
	if defaults.Loyalty.RewardThreshold < 1 {
		defaults = domain.DefaultSettings()
	}
	return &Store{
		products:         map[string]domain.Product{},
		customersByID:    map[string]domain.Customer{},
		customersByPhone: map[string]string{},
		transactionsByID: map[string]*domain.Transaction{},
		refundsByTx:      map[string]domain.Refund{},
		sideEffectsByID:  map[string]domain.SideEffect{},
		settings:         defaults,
		usersByUsername:  seedUsers(),
	}
}

func NewSeeded(defaults domain.Settings) *Store {
	s := New(defaults)
	now := time.Now().UTC()
	products := []domain.Product{
		{Name: "Cement 50kg", Category: "cement", Unit: "bag", Price: dec("1850.00"), CostPrice: dec("1620.00"), Stock: dec("10"), ReorderLevel: dec("20")},
		{Name: "Paint 4L", Category: "paint", Unit: "can", Price: dec("4500.00"), CostPrice: dec("3750.00"), Stock: dec("2"), ReorderLevel: dec("5")},
		{Name: "Sand (cube)", Category: "aggregate", Unit: "cube", Price: dec("14500.00"), CostPrice: dec("12000.00"), Stock: dec("3.5"), ReorderLevel: dec("1")},
		{Name: "Steel Rod 12mm", Category: "steel", Unit: "piece", Price: dec("1320.00"), CostPrice: dec("1140.00"), Stock: dec("80"), ReorderLevel: dec("30")},
		{Name: "PVC Pipe 3/4in", Category: "plumbing", Unit: "length", Price: dec("540.00"), CostPrice: dec("410.00"), Stock: dec("45"), ReorderLevel: dec("15")},
		{Name: "Wire Nails 2in 1kg", Category: "fasteners", Unit: "kg", Price: dec("380.00"), CostPrice: dec("290.00"), Stock: dec("26"), ReorderLevel: dec("10")},
		{Name: "Binding Wire 1kg", Category: "fasteners", Unit: "kg", Price: dec("420.00"), CostPrice: dec("330.00"), Stock: dec("18"), ReorderLevel: dec("8")},
		{Name: "Hacksaw Blade", Category: "tools", Unit: "piece", Price: dec("160.00"), CostPrice: dec("95.00"), Stock: dec("60"), ReorderLevel: dec("20")},
	}
	for i, p := range products {
		p.ID = fmt.Sprintf("prod-%03d", i+1)
		p.Active = true
		p.CreatedAt = now
		s.products[p.ID] = p
	}
	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if product.Barcode != "" {
		for _, p := range s.products {
			if p.Barcode == product.Barcode {
				return nil, fmt.Errorf("%w: barcode %s", store.ErrDuplicate, product.Barcode)
			}
		}
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true
	s.products[product.ID] = product
	copied := product
	return &copied, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.Stock = existing.Stock
	s.products[product.ID] = product
	copied := product
	return &copied, nil
}

func (s *Store) AddStock(_ context.Context, productID string, qty decimal.Decimal) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Stock = p.Stock.Add(qty)
	if p.Stock.IsNegative() {
		return nil, store.ErrInsufficientStock
	}
	s.products[productID] = p
	copied := p
	return &copied, nil
}

func (s *Store) ListLowStock(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Product
	for _, p := range s.products {
		if p.Active && p.Stock.LessThanOrEqual(p.ReorderLevel) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return a.Stock.Cmp(b.Stock)
	})
	return out, nil
}

func (s *Store) CountSalesForProduct(_ context.Context, productID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, tx := range s.transactionsByID {
		for _, item := range tx.Items {
			if item.ProductID == productID {
				count++
				break
			}
		}
	}
	return count, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Phone == "" {
		return nil, fmt.Errorf("%w: phone required", store.ErrInvalidTransaction)
	}
	if _, exists := s.customersByPhone[customer.Phone]; exists {
		return nil, fmt.Errorf("%w: phone %s", store.ErrDuplicate, customer.Phone)
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	s.customersByPhone[customer.Phone] = customer.ID
	copied := customer
	return &copied, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := c
	return &copied, nil
}

func (s *Store) GetCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.customersByPhone[phone]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := s.customersByID[id]
	copied := c
	return &copied, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Customer) int {
		return strings.Compare(a.Phone, b.Phone)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TopCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Customer) int {
		return b.TotalPurchases.Cmp(a.TotalPurchases)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CommitSale applies the whole sale atomically under one lock: every line is
// validated against current price and stock before any stock is decremented,
// so a failing line leaves products, customers and transactions untouched.
func (s *Store) CommitSale(_ context.Context, tx domain.Transaction, effects []domain.SideEffect) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tx.Items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", store.ErrInvalidTransaction)
	}

	subtotal := decimal.Zero
	recomputed := make([]domain.LineItem, 0, len(tx.Items))
	for _, item := range tx.Items {
		if !item.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: qty for %s", store.ErrInvalidTransaction, item.ProductID)
		}
		product, exists := s.products[item.ProductID]
		if !exists || !product.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if product.Stock.LessThan(item.Qty) {
			return nil, fmt.Errorf("%w: %s (available %s)", store.ErrInsufficientStock, product.Name, product.Stock)
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

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Items = recomputed
	tx.Subtotal = subtotal
	tx.Total = subtotal.Sub(tx.Discount)
	tx.Status = domain.TransactionCommitted

	for _, item := range tx.Items {
		p := s.products[item.ProductID]
		p.Stock = p.Stock.Sub(item.Qty)
		s.products[item.ProductID] = p
	}

	if tx.CustomerID != "" {
		if c, ok := s.customersByID[tx.CustomerID]; ok {
			c.TotalPurchases = c.TotalPurchases.Add(tx.Total)
			s.customersByID[tx.CustomerID] = c
		}
	}

	for _, eff := range effects {
		if eff.ID == "" {
			eff.ID = xid.New("eff")
		}
		eff.TransactionID = tx.ID
		eff.Status = domain.SideEffectPending
		eff.CreatedAt = tx.CreatedAt
		eff.UpdatedAt = tx.CreatedAt
		s.sideEffectsByID[eff.ID] = eff
		s.sideEffectOrder = append(s.sideEffectOrder, eff.ID)
	}

	txCopy := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = txCopy
	return cloneTransaction(txCopy), nil
}

func (s *Store) GetTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Transaction
	for _, tx := range s.transactionsByID {
		if !from.IsZero() && tx.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !tx.CreatedAt.Before(to) {
			continue
		}
		out = append(out, *cloneTransaction(tx))
	}
	slices.SortFunc(out, func(a, b domain.Transaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AppendLoyaltyEvent records the event and adjusts the customer balance in
// one step. The balance can never go below zero.
func (s *Store) AppendLoyaltyEvent(_ context.Context, event domain.LoyaltyEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customersByID[event.CustomerID]
	if !ok {
		return 0, store.ErrNotFound
	}
	next := c.LoyaltyPoints + event.Points
	if next < 0 {
		return 0, store.ErrInsufficientPoints
	}
	if event.ID == "" {
		event.ID = xid.New("loy")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	c.LoyaltyPoints = next
	s.customersByID[event.CustomerID] = c
	s.loyaltyEvents = append(s.loyaltyEvents, event)
	return next, nil
}

func (s *Store) ListLoyaltyEvents(_ context.Context, customerID string, limit int) ([]domain.LoyaltyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LoyaltyEvent
	for i := len(s.loyaltyEvents) - 1; i >= 0; i-- {
		if s.loyaltyEvents[i].CustomerID != customerID {
			continue
		}
		out = append(out, s.loyaltyEvents[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListLoyaltyEventsByTransaction(_ context.Context, transactionID string) ([]domain.LoyaltyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LoyaltyEvent
	for _, event := range s.loyaltyEvents {
		if event.TransactionID == transactionID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *Store) CreateRefund(_ context.Context, refund domain.Refund, restoreStock bool) (*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[refund.TransactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status == domain.TransactionRefunded {
		return nil, store.ErrAlreadyRefunded
	}
	if _, exists := s.refundsByTx[refund.TransactionID]; exists {
		return nil, store.ErrAlreadyRefunded
	}
	if !refund.Amount.IsPositive() || refund.Amount.GreaterThan(tx.Total) {
		return nil, fmt.Errorf("%w: refund amount", store.ErrInvalidTransaction)
	}

	if refund.ID == "" {
		refund.ID = xid.New("rf")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	refund.StockRestored = restoreStock

	if restoreStock {
		for _, item := range tx.Items {
			if p, ok := s.products[item.ProductID]; ok {
				p.Stock = p.Stock.Add(item.Qty)
				s.products[item.ProductID] = p
			}
		}
	}

	tx.Status = domain.TransactionRefunded
	s.refundsByTx[refund.TransactionID] = refund
	copied := refund
	return &copied, nil
}

func (s *Store) GetRefundByTransaction(_ context.Context, transactionID string) (*domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.refundsByTx[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := r
	return &copied, nil
}

func (s *Store) PendingSideEffects(_ context.Context, limit int) ([]domain.SideEffect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SideEffect
	for _, id := range s.sideEffectOrder {
		eff := s.sideEffectsByID[id]
		if eff.Status != domain.SideEffectPending {
			continue
		}
		out = append(out, eff)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListSideEffectsByTransaction(_ context.Context, transactionID string) ([]domain.SideEffect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SideEffect
	for _, id := range s.sideEffectOrder {
		eff := s.sideEffectsByID[id]
		if eff.TransactionID == transactionID {
			out = append(out, eff)
		}
	}
	return out, nil
}

func (s *Store) MarkSideEffectDone(_ context.Context, id string, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eff, ok := s.sideEffectsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	eff.Status = domain.SideEffectDone
	eff.Result = result
	eff.LastError = ""
	eff.Attempts++
	eff.UpdatedAt = time.Now().UTC()
	s.sideEffectsByID[id] = eff
	return nil
}

func (s *Store) MarkSideEffectFailed(_ context.Context, id string, reason string, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eff, ok := s.sideEffectsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	eff.LastError = reason
	eff.Attempts++
	eff.UpdatedAt = time.Now().UTC()
	if terminal {
		eff.Status = domain.SideEffectFailed
	}
	s.sideEffectsByID[id] = eff
	return nil
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) UpdateSettings(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *Store) GetDailyReport(_ context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{
		From:          from,
		To:            to,
		GrossSales:    decimal.Zero,
		DiscountTotal: decimal.Zero,
		RefundTotal:   decimal.Zero,
		NetSales:      decimal.Zero,
		ItemsSold:     decimal.Zero,
	}
	byPayment := map[string]*domain.PaymentBreakdown{}

	for _, tx := range s.transactionsByID {
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		report.Transactions++
		report.GrossSales = report.GrossSales.Add(tx.Total)
		report.DiscountTotal = report.DiscountTotal.Add(tx.Discount)
		for _, item := range tx.Items {
			report.ItemsSold = report.ItemsSold.Add(item.Qty)
		}
		pb, ok := byPayment[tx.PaymentMethod]
		if !ok {
			pb = &domain.PaymentBreakdown{PaymentMethod: tx.PaymentMethod, Amount: decimal.Zero}
			byPayment[tx.PaymentMethod] = pb
		}
		pb.Count++
		pb.Amount = pb.Amount.Add(tx.Total)
	}
	for _, r := range s.refundsByTx {
		if r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		report.RefundTotal = report.RefundTotal.Add(r.Amount)
	}
	report.NetSales = report.GrossSales.Sub(report.RefundTotal)

	for _, pb := range byPayment {
		report.ByPayment = append(report.ByPayment, *pb)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.PaymentBreakdown) int {
		return strings.Compare(a.PaymentMethod, b.PaymentMethod)
	})
	return report, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicate
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	s.usersByUsername[username] = u
	return nil
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	copied := *tx
	copied.Items = make([]domain.LineItem, len(tx.Items))
	copy(copied.Items, tx.Items)
	return &copied
}
