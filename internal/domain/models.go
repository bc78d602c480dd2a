package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID               string          `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Price            decimal.Decimal `json:"price"`
	Cost             decimal.Decimal `json:"cost"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	BaseQuantity     int             `json:"base_quantity"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	DefaultUnit      string          `json:"default_unit"`
	BaseUnit         string          `json:"base_unit"`
	CategoryID       string          `json:"category_id,omitempty"`
	Active           bool            `json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type ProductSaveRequest struct {
	ID               string          `json:"id,omitempty"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Price            decimal.Decimal `json:"price"`
	Cost             decimal.Decimal `json:"cost"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	DefaultUnit      string          `json:"default_unit"`
	BaseUnit         string          `json:"base_unit"`
	CategoryID       string          `json:"category_id,omitempty"`
	OpeningQuantity  int             `json:"opening_quantity,omitempty"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CategorySaveRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
}

type Supplier struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactInfo string    `json:"contact_info,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SupplierSaveRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	ContactInfo string `json:"contact_info,omitempty"`
}

type Purchase struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	SupplierID  string          `json:"supplier_id"`
	Qty         int             `json:"qty"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	Total       decimal.Decimal `json:"total"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type PurchaseCreateRequest struct {
	ProductID   string          `json:"product_id"`
	SupplierID  string          `json:"supplier_id"`
	Qty         int             `json:"qty"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
}

// InventoryTransaction is one append-only ledger entry. NewQuantity must
// equal PreviousQuantity + ChangeQuantity and match the product's
// BaseQuantity at commit time.
type InventoryTransaction struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	ChangeQuantity   int       `json:"change_quantity"`
	PreviousQuantity int       `json:"previous_quantity"`
	NewQuantity      int       `json:"new_quantity"`
	ReferenceID      string    `json:"reference_id"`
	ChangeDate       time.Time `json:"change_date"`
}

type Sale struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	SubTotal      decimal.Decimal `json:"sub_total"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	Discount      decimal.Decimal `json:"discount"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	IsCredit      bool            `json:"is_credit"`
	CustomerName  string          `json:"customer_name,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
	CashierID     string          `json:"cashier_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []SaleItem      `json:"items,omitempty"`
}

type SaleItem struct {
	ID          string          `json:"id"`
	SaleID      string          `json:"sale_id"`
	ProductID   string          `json:"product_id"`
	Price       decimal.Decimal `json:"price"`
	Qty         int             `json:"qty"`
	UnitType    string          `json:"unit_type,omitempty"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CheckoutLine struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	UnitType  string          `json:"unit_type,omitempty"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
}

type CheckoutRequest struct {
	Lines         []CheckoutLine  `json:"lines"`
	Discount      decimal.Decimal `json:"discount"`
	IsCredit      bool            `json:"is_credit"`
	CustomerName  string          `json:"customer_name,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
}

type StockAdjustRequest struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Reference string `json:"reference,omitempty"`
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserAccount is the internal persistence model carrying credential
// hashes. Never serialized to API responses.
type UserAccount struct {
	User
	PasswordHash string
	PINHash      string
}

type UserSaveRequest struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role"`
	PIN      string `json:"pin,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type PINLoginRequest struct {
	PIN string `json:"pin"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	ID       string
	Username string
	Role     string
}

type SalesReport struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	SaleCount  int             `json:"sale_count"`
	SubTotal   decimal.Decimal `json:"sub_total"`
	TotalTax   decimal.Decimal `json:"total_tax"`
	Discount   decimal.Decimal `json:"discount"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

const (
	PaymentMethodCash  = "cash"
	PaymentMethodMpesa = "mpesa"
)

func ValidPaymentMethod(m string) bool {
	return m == PaymentMethodCash || m == PaymentMethodMpesa
}
