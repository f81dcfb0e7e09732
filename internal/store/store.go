package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"buildsmart/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrAlreadyRefunded    = errors.New("transaction already refunded")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicate          = errors.New("already exists")

	// ErrCommitFailed wraps storage faults from the atomic write paths so
	// driver error text never reaches a client. The cause stays attached
	// for logging.
	ErrCommitFailed = errors.New("commit failed")
)

type Repository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AddStock(ctx context.Context, productID string, qty decimal.Decimal) (*domain.Product, error)
	ListLowStock(ctx context.Context) ([]domain.Product, error)
	CountSalesForProduct(ctx context.Context, productID string) (int64, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)
	TopCustomers(ctx context.Context, limit int) ([]domain.Customer, error)

	CommitSale(ctx context.Context, tx domain.Transaction, effects []domain.SideEffect) (*domain.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error)

	AppendLoyaltyEvent(ctx context.Context, event domain.LoyaltyEvent) (int64, error)
	ListLoyaltyEvents(ctx context.Context, customerID string, limit int) ([]domain.LoyaltyEvent, error)
	ListLoyaltyEventsByTransaction(ctx context.Context, transactionID string) ([]domain.LoyaltyEvent, error)

	CreateRefund(ctx context.Context, refund domain.Refund, restoreStock bool) (*domain.Refund, error)
	GetRefundByTransaction(ctx context.Context, transactionID string) (*domain.Refund, error)

	PendingSideEffects(ctx context.Context, limit int) ([]domain.SideEffect, error)
	ListSideEffectsByTransaction(ctx context.Context, transactionID string) ([]domain.SideEffect, error)
	MarkSideEffectDone(ctx context.Context, id string, result string) error
	MarkSideEffectFailed(ctx context.Context, id string, reason string, terminal bool) error

	GetSettings(ctx context.Context) (domain.Settings, error)
	UpdateSettings(ctx context.Context, settings domain.Settings) error

	GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
