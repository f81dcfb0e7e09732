package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionCommitted = "committed"
	TransactionRefunded  = "refunded"
)

const (
	SideEffectInvoice = "invoice"
	SideEffectNotify  = "notify"
)

const (
	SideEffectPending = "pending"
	SideEffectDone    = "done"
	SideEffectFailed  = "failed"
)

type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit"`
	Price        decimal.Decimal `json:"price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	Stock        decimal.Decimal `json:"stock"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
	Barcode      string          `json:"barcode,omitempty"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ProductCreateRequest struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit"`
	Price        decimal.Decimal `json:"price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	InitialStock decimal.Decimal `json:"initial_stock"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
	Barcode      string          `json:"barcode,omitempty"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Category     *string          `json:"category,omitempty"`
	Unit         *string          `json:"unit,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	ReorderLevel *decimal.Decimal `json:"reorder_level,omitempty"`
	Barcode      *string          `json:"barcode,omitempty"`
	Active       *bool            `json:"active,omitempty"`
}

type RestockRequest struct {
	Qty decimal.Decimal `json:"qty"`
}

type Customer struct {
	ID             string          `json:"id"`
	Phone          string          `json:"phone"`
	Name           string          `json:"name"`
	LoyaltyPoints  int64           `json:"loyalty_points"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	CreatedAt      time.Time       `json:"created_at"`
}

type CustomerCreateRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

type CartLine struct {
	ProductID string          `json:"product_id"`
	Qty       decimal.Decimal `json:"qty"`
}

type SaleRequest struct {
	Lines         []CartLine      `json:"lines"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Discount      decimal.Decimal `json:"discount"`
	CashierID     string          `json:"cashier_id,omitempty"`
}

type LineItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Qty         decimal.Decimal `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Transaction struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customer_id,omitempty"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	CashierID     string          `json:"cashier_id,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	Items         []LineItem      `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SaleResponse struct {
	TransactionID  string          `json:"transaction_id"`
	Status         string          `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	Items          []LineItem      `json:"items"`
	PointsEarned   int64           `json:"points_earned"`
	LoyaltyBalance int64           `json:"loyalty_balance"`
	CanRedeem      bool            `json:"can_redeem"`
	Warnings       []string        `json:"warnings,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

type LoyaltyEvent struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customer_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Points        int64     `json:"points"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoyaltyStatus struct {
	CustomerID     string          `json:"customer_id"`
	Phone          string          `json:"phone"`
	Balance        int64           `json:"balance"`
	CanRedeem      bool            `json:"can_redeem"`
	RedeemValue    decimal.Decimal `json:"redeem_value"`
	PointsToReward int64           `json:"points_to_reward"`
}

type RedeemRequest struct {
	Phone  string `json:"phone"`
	Points int64  `json:"points"`
}

type RedeemResponse struct {
	CustomerID string          `json:"customer_id"`
	Redeemed   int64           `json:"redeemed"`
	Discount   decimal.Decimal `json:"discount"`
	Balance    int64           `json:"balance"`
}

type ReverseLoyaltyRequest struct {
	TransactionID string `json:"transaction_id"`
}

type ReverseLoyaltyResponse struct {
	CustomerID string `json:"customer_id"`
	Reversed   int64  `json:"reversed"`
	Balance    int64  `json:"balance"`
}

type RefundRequest struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	RestoreStock  bool            `json:"restore_stock"`
	ManagerPIN    string          `json:"manager_pin"`
}

type Refund struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	StockRestored bool            `json:"stock_restored"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SideEffect struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	Result        string    `json:"result,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type LoyaltyConfig struct {
	PointsPer100    int64           `json:"points_per_100"`
	RewardThreshold int64           `json:"reward_threshold"`
	RewardValue     decimal.Decimal `json:"reward_value"`
}

type Settings struct {
	BusinessName string        `json:"business_name"`
	Currency     string        `json:"currency"`
	Loyalty      LoyaltyConfig `json:"loyalty"`
}

// DefaultSettings is the built-in business profile used when neither the
// environment nor the settings store provides one.
func DefaultSettings() Settings {
	return Settings{
		BusinessName: "BuildSmart Hardware",
		Currency:     "LKR",
		Loyalty: LoyaltyConfig{
			PointsPer100:    1,
			RewardThreshold: 500,
			RewardValue:     decimal.NewFromInt(100),
		},
	}
}

type PaymentBreakdown struct {
	PaymentMethod string          `json:"payment_method"`
	Count         int64           `json:"count"`
	Amount        decimal.Decimal `json:"amount"`
}

type DailyReport struct {
	From          time.Time          `json:"from"`
	To            time.Time          `json:"to"`
	Transactions  int64              `json:"transactions"`
	GrossSales    decimal.Decimal    `json:"gross_sales"`
	DiscountTotal decimal.Decimal    `json:"discount_total"`
	RefundTotal   decimal.Decimal    `json:"refund_total"`
	NetSales      decimal.Decimal    `json:"net_sales"`
	ItemsSold     decimal.Decimal    `json:"items_sold"`
	ByPayment     []PaymentBreakdown `json:"by_payment"`
}

type LicenseStatus struct {
	Activated     bool   `json:"activated"`
	LicenseType   string `json:"license_type"`
	DaysRemaining int    `json:"days_remaining"`
	Expired       bool   `json:"expired"`
	MachineID     string `json:"machine_id"`
}

type ActivateRequest struct {
	Code string `json:"code"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
