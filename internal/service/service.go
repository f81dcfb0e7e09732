package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"buildsmart/backend/internal/cache"
	"buildsmart/backend/internal/domain"
	"buildsmart/backend/internal/store"
	"buildsmart/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	log       *zap.Logger
	reportTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, logger *zap.Logger, reportTTL time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reportTTL < time.Second {
		reportTTL = 30 * time.Second
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		log:       logger,
		reportTTL: reportTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.Unit == "" {
		req.Unit = "piece"
	}

	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if !req.Price.IsPositive() || req.CostPrice.IsNegative() {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if req.InitialStock.IsNegative() || req.ReorderLevel.IsNegative() {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	product := domain.Product{
		Name:         req.Name,
		Category:     req.Category,
		Unit:         req.Unit,
		Price:        req.Price,
		CostPrice:    req.CostPrice,
		Stock:        req.InitialStock,
		ReorderLevel: req.ReorderLevel,
		Barcode:      strings.TrimSpace(req.Barcode),
		Active:       true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.log.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("name", created.Name),
		zap.String("actor", actor.Username))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		existing.Name = name
	}
	if req.Category != nil {
		existing.Category = strings.TrimSpace(*req.Category)
	}
	if req.Unit != nil {
		existing.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		existing.Price = *req.Price
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		existing.CostPrice = *req.CostPrice
	}
	if req.ReorderLevel != nil {
		if req.ReorderLevel.IsNegative() {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		existing.ReorderLevel = *req.ReorderLevel
	}
	if req.Barcode != nil {
		existing.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info("product updated", zap.String("product_id", updated.ID), zap.String("actor", actor.Username))
	return *updated, nil
}

// DeactivateProduct is a soft delete. Products that already appear on sales
// are never removed, only hidden from the catalog, so historical line items
// keep their reference.
func (s *Service) DeactivateProduct(ctx context.Context, id string) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	existing.Active = false

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}

	sales, err := s.repo.CountSalesForProduct(ctx, id)
	if err == nil && sales > 0 {
		s.log.Info("deactivated product with sales history",
			zap.String("product_id", id), zap.Int64("sales", sales))
	}
	return *updated, nil
}

func (s *Service) Restock(ctx context.Context, id string, req domain.RestockRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	if !req.Qty.IsPositive() {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	updated, err := s.repo.AddStock(ctx, id, req.Qty)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info("stock added",
		zap.String("product_id", id),
		zap.String("qty", req.Qty.String()),
		zap.String("actor", actor.Username))
	return *updated, nil
}

func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStock(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	phone := normalizePhone(req.Phone)
	if phone == "" {
		return domain.Customer{}, store.ErrInvalidTransaction
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Phone:          phone,
		Name:           strings.TrimSpace(req.Name),
		TotalPurchases: decimal.Zero,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) GetCustomerByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	c, err := s.repo.GetCustomerByPhone(ctx, normalizePhone(phone))
	if err != nil {
		return domain.Customer{}, err
	}
	return *c, nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) TopCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 10
	}
	return s.repo.TopCustomers(ctx, limit)
}

// CommitSale validates the cart, resolves the customer, and commits the sale
// through the repository as one atomic unit together with the outbox rows
// for the receipt and WhatsApp side effects. Loyalty accrual runs after the
// commit and is reported as a warning when it fails; the sale itself never
// rolls back for loyalty.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	if len(req.Lines) == 0 {
		return domain.SaleResponse{}, fmt.Errorf("%w: empty cart", store.ErrInvalidTransaction)
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.SaleResponse{}, fmt.Errorf("%w: payment method %s", store.ErrInvalidTransaction, req.PaymentMethod)
	}
	if req.Discount.IsNegative() {
		return domain.SaleResponse{}, fmt.Errorf("%w: discount", store.ErrInvalidTransaction)
	}

	lines := normalizeLines(req.Lines)
	if len(lines) == 0 {
		return domain.SaleResponse{}, fmt.Errorf("%w: empty cart", store.ErrInvalidTransaction)
	}
	for _, line := range lines {
		if !line.Qty.IsPositive() {
			return domain.SaleResponse{}, fmt.Errorf("%w: qty for %s", store.ErrInvalidTransaction, line.ProductID)
		}
	}

	customer, err := s.resolveCustomer(ctx, req.CustomerPhone, req.CustomerName)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	items := make([]domain.LineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.LineItem{ProductID: line.ProductID, Qty: line.Qty})
	}

	tx := domain.Transaction{
		ID:            xid.New("tx"),
		PaymentMethod: req.PaymentMethod,
		Discount:      req.Discount,
		CashierID:     req.CashierID,
		CreatedAt:     time.Now().UTC(),
		Items:         items,
	}
	if customer != nil {
		tx.CustomerID = customer.ID
		tx.CustomerPhone = customer.Phone
	}

	effects := []domain.SideEffect{{Kind: domain.SideEffectInvoice}}
	if customer != nil {
		effects = append(effects, domain.SideEffect{Kind: domain.SideEffectNotify})
	}

	created, err := s.repo.CommitSale(ctx, tx, effects)
	if err != nil {
		return domain.SaleResponse{}, commitError(err)
	}

	resp := toSaleResponse(created)

	if customer != nil {
		points, balance, err := s.accrue(ctx, customer.ID, created)
		if err != nil {
			s.log.Warn("loyalty accrual failed",
				zap.String("transaction_id", created.ID),
				zap.String("customer_id", customer.ID),
				zap.Error(err))
			resp.Warnings = append(resp.Warnings, "loyalty points could not be recorded")
		} else {
			settings, sErr := s.repo.GetSettings(ctx)
			resp.PointsEarned = points
			resp.LoyaltyBalance = balance
			if sErr == nil {
				resp.CanRedeem = balance >= settings.Loyalty.RewardThreshold
			}
		}
	}

	s.log.Info("sale committed",
		zap.String("transaction_id", created.ID),
		zap.String("total", created.Total.String()),
		zap.String("payment", created.PaymentMethod),
		zap.Int("lines", len(created.Items)))
	return resp, nil
}

// commitError passes validation sentinels through untouched and folds every
// other storage fault (driver errors, serialization failures) into
// ErrCommitFailed so raw error text never reaches a client.
func commitError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInsufficientPoints),
		errors.Is(err, store.ErrAlreadyRefunded),
		errors.Is(err, store.ErrInvalidTransaction),
		errors.Is(err, store.ErrDuplicate):
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrCommitFailed, err)
}

// resolveCustomer looks the customer up by phone and creates the record on
// first contact. A blank phone means a walk-in sale with no customer.
func (s *Service) resolveCustomer(ctx context.Context, phone string, name string) (*domain.Customer, error) {
	phone = normalizePhone(phone)
	if phone == "" {
		return nil, nil
	}

	customer, err := s.repo.GetCustomerByPhone(ctx, phone)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Phone:          phone,
		Name:           strings.TrimSpace(name),
		TotalPurchases: decimal.Zero,
	})
	if err != nil {
		// Lost a race with a concurrent sale for the same phone.
		if errors.Is(err, store.ErrDuplicate) {
			return s.repo.GetCustomerByPhone(ctx, phone)
		}
		return nil, err
	}
	return created, nil
}

func (s *Service) accrue(ctx context.Context, customerID string, tx *domain.Transaction) (int64, int64, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return 0, 0, err
	}

	points := pointsForAmount(tx.Total, settings.Loyalty)
	if points == 0 {
		customer, err := s.repo.GetCustomerByID(ctx, customerID)
		if err != nil {
			return 0, 0, err
		}
		return 0, customer.LoyaltyPoints, nil
	}

	balance, err := s.repo.AppendLoyaltyEvent(ctx, domain.LoyaltyEvent{
		CustomerID:    customerID,
		TransactionID: tx.ID,
		Points:        points,
		Description:   fmt.Sprintf("Earned on sale %s", tx.ID),
	})
	if err != nil {
		return 0, 0, err
	}
	return points, balance, nil
}

// pointsForAmount implements the accrual rule floor(amount/100 × rate). The
// rate multiplies before flooring, so fractional hundreds still count at
// rates above one.
func pointsForAmount(amount decimal.Decimal, cfg domain.LoyaltyConfig) int64 {
	if !amount.IsPositive() || cfg.PointsPer100 < 1 {
		return 0
	}
	return amount.Mul(decimal.NewFromInt(cfg.PointsPer100)).Div(decimal.NewFromInt(100)).Floor().IntPart()
}

func (s *Service) LoyaltyStatus(ctx context.Context, phone string) (domain.LoyaltyStatus, error) {
	customer, err := s.repo.GetCustomerByPhone(ctx, normalizePhone(phone))
	if err != nil {
		return domain.LoyaltyStatus{}, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.LoyaltyStatus{}, err
	}

	cfg := settings.Loyalty
	rewards := customer.LoyaltyPoints / cfg.RewardThreshold
	status := domain.LoyaltyStatus{
		CustomerID:  customer.ID,
		Phone:       customer.Phone,
		Balance:     customer.LoyaltyPoints,
		CanRedeem:   rewards > 0,
		RedeemValue: cfg.RewardValue.Mul(decimal.NewFromInt(rewards)),
	}
	if rewards == 0 {
		status.PointsToReward = cfg.RewardThreshold - customer.LoyaltyPoints
	}
	return status, nil
}

func (s *Service) LoyaltyHistory(ctx context.Context, phone string, limit int) ([]domain.LoyaltyEvent, error) {
	customer, err := s.repo.GetCustomerByPhone(ctx, normalizePhone(phone))
	if err != nil {
		return nil, err
	}
	return s.repo.ListLoyaltyEvents(ctx, customer.ID, limit)
}

// Redeem spends loyalty points for a discount. Exactly the requested number
// of points is consumed and the discount scales proportionally against the
// reward threshold. With no count given, one reward threshold's worth is
// redeemed.
func (s *Service) Redeem(ctx context.Context, req domain.RedeemRequest) (domain.RedeemResponse, error) {
	customer, err := s.repo.GetCustomerByPhone(ctx, normalizePhone(req.Phone))
	if err != nil {
		return domain.RedeemResponse{}, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.RedeemResponse{}, err
	}
	cfg := settings.Loyalty

	points := req.Points
	if points < 1 {
		points = cfg.RewardThreshold
	}
	if points > customer.LoyaltyPoints {
		return domain.RedeemResponse{}, fmt.Errorf("%w: available %d", store.ErrInsufficientPoints, customer.LoyaltyPoints)
	}
	if points < cfg.RewardThreshold {
		return domain.RedeemResponse{}, fmt.Errorf("%w: need at least %d points", store.ErrInsufficientPoints, cfg.RewardThreshold)
	}

	discount := cfg.RewardValue.Mul(decimal.NewFromInt(points)).Div(decimal.NewFromInt(cfg.RewardThreshold))

	balance, err := s.repo.AppendLoyaltyEvent(ctx, domain.LoyaltyEvent{
		CustomerID:  customer.ID,
		Points:      -points,
		Description: fmt.Sprintf("Redeemed %d points for %s %s discount", points, settings.Currency, discount.StringFixed(2)),
	})
	if err != nil {
		return domain.RedeemResponse{}, err
	}

	s.log.Info("points redeemed",
		zap.String("customer_id", customer.ID),
		zap.Int64("points", points),
		zap.String("discount", discount.String()))

	return domain.RedeemResponse{
		CustomerID: customer.ID,
		Redeemed:   points,
		Discount:   discount,
		Balance:    balance,
	}, nil
}

// ReverseLoyalty takes back the points a sale earned. Refunds never do this
// automatically; an admin runs it when the business wants the points gone too.
func (s *Service) ReverseLoyalty(ctx context.Context, req domain.ReverseLoyaltyRequest) (domain.ReverseLoyaltyResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ReverseLoyaltyResponse{}, fmt.Errorf("admin role required")
	}
	if req.TransactionID == "" {
		return domain.ReverseLoyaltyResponse{}, store.ErrInvalidTransaction
	}

	tx, err := s.repo.GetTransactionByID(ctx, req.TransactionID)
	if err != nil {
		return domain.ReverseLoyaltyResponse{}, err
	}
	if tx.CustomerID == "" {
		return domain.ReverseLoyaltyResponse{}, fmt.Errorf("%w: walk-in sale earned no points", store.ErrInvalidTransaction)
	}

	events, err := s.repo.ListLoyaltyEventsByTransaction(ctx, tx.ID)
	if err != nil {
		return domain.ReverseLoyaltyResponse{}, err
	}
	var earned int64
	for _, event := range events {
		if event.Points < 0 {
			return domain.ReverseLoyaltyResponse{}, fmt.Errorf("%w: already reversed", store.ErrInvalidTransaction)
		}
		earned = event.Points
	}
	if earned == 0 {
		return domain.ReverseLoyaltyResponse{}, fmt.Errorf("%w: no points accrued for sale", store.ErrNotFound)
	}

	balance, err := s.repo.AppendLoyaltyEvent(ctx, domain.LoyaltyEvent{
		CustomerID:    tx.CustomerID,
		TransactionID: tx.ID,
		Points:        -earned,
		Description:   fmt.Sprintf("Reversed accrual for sale %s", tx.ID),
	})
	if err != nil {
		return domain.ReverseLoyaltyResponse{}, err
	}

	s.log.Info("loyalty accrual reversed",
		zap.String("transaction_id", tx.ID),
		zap.String("customer_id", tx.CustomerID),
		zap.Int64("points", earned),
		zap.String("actor", actor.Username))
	return domain.ReverseLoyaltyResponse{
		CustomerID: tx.CustomerID,
		Reversed:   earned,
		Balance:    balance,
	}, nil
}

// Refund refunds a committed transaction. At most one refund per transaction;
// loyalty points already earned are never clawed back automatically.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.Refund, error) {
	if req.TransactionID == "" {
		return domain.Refund{}, store.ErrInvalidTransaction
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.Refund{}, fmt.Errorf("%w: reason required", store.ErrInvalidTransaction)
	}

	tx, err := s.repo.GetTransactionByID(ctx, req.TransactionID)
	if err != nil {
		return domain.Refund{}, err
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = tx.Total
	}
	if !amount.IsPositive() || amount.GreaterThan(tx.Total) {
		return domain.Refund{}, fmt.Errorf("%w: refund amount", store.ErrInvalidTransaction)
	}

	refund, err := s.repo.CreateRefund(ctx, domain.Refund{
		TransactionID: req.TransactionID,
		Amount:        amount,
		Reason:        strings.TrimSpace(req.Reason),
	}, req.RestoreStock)
	if err != nil {
		return domain.Refund{}, commitError(err)
	}

	s.log.Info("refund processed",
		zap.String("transaction_id", req.TransactionID),
		zap.String("amount", amount.String()),
		zap.Bool("stock_restored", req.RestoreStock))
	return *refund, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, date string, limit int) ([]domain.Transaction, error) {
	from, to, err := dayRange(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, from, to, limit)
}

func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	from, to, err := dayRange(date)
	if err != nil {
		return domain.DailyReport{}, err
	}

	key := "report:daily:" + from.Format("2006-01-02")
	if cached, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		return *cached, nil
	}

	report, err := s.repo.GetDailyReport(ctx, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
		s.log.Warn("report cache write failed", zap.Error(err))
	}
	return report, nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Settings{}, fmt.Errorf("admin role required")
	}

	if strings.TrimSpace(settings.BusinessName) == "" || strings.TrimSpace(settings.Currency) == "" {
		return domain.Settings{}, store.ErrInvalidTransaction
	}
	if settings.Loyalty.PointsPer100 < 0 || settings.Loyalty.RewardThreshold < 1 || !settings.Loyalty.RewardValue.IsPositive() {
		return domain.Settings{}, store.ErrInvalidTransaction
	}

	if err := s.repo.UpdateSettings(ctx, settings); err != nil {
		return domain.Settings{}, err
	}
	s.log.Info("settings updated", zap.String("actor", actor.Username))
	return s.repo.GetSettings(ctx)
}

func toSaleResponse(tx *domain.Transaction) domain.SaleResponse {
	return domain.SaleResponse{
		TransactionID: tx.ID,
		Status:        tx.Status,
		Subtotal:      tx.Subtotal,
		Discount:      tx.Discount,
		Total:         tx.Total,
		Items:         tx.Items,
		CreatedAt:     tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// normalizeLines merges duplicate product lines and drops blank ids so the
// store sees one line per product.
func normalizeLines(lines []domain.CartLine) []domain.CartLine {
	merged := make(map[string]decimal.Decimal, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			continue
		}
		if _, seen := merged[id]; !seen {
			order = append(order, id)
		}
		merged[id] = merged[id].Add(line.Qty)
	}

	out := make([]domain.CartLine, 0, len(order))
	for _, id := range order {
		out = append(out, domain.CartLine{ProductID: id, Qty: merged[id]})
	}
	return out
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func dayRange(date string) (time.Time, time.Time, error) {
	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: date", store.ErrInvalidTransaction)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1), nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "credit", "bank_transfer":
		return true
	}
	return false
}
