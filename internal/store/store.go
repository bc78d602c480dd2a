package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dukapos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
)

// InsufficientStockError names the offending product and how much stock
// was actually available when the adjustment was rejected.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// SalePayload carries everything a sale commit writes in one atomic
// unit: the header, its line items, and the per-line stock decrements
// the store must apply together with matching ledger entries.
type SalePayload struct {
	Sale  domain.Sale
	Items []domain.SaleItem
}

// Repository is the persistence boundary. Every method that touches
// more than one record commits or rolls back as a single atomic unit;
// callers never compose partial writes.
type Repository interface {
	// Products and the stock ledger.
	SaveProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByCode(ctx context.Context, code string) (*domain.Product, error)
	ListProducts(ctx context.Context, categoryID string, limit int) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, productID string, delta int, reference string, at time.Time) (*domain.InventoryTransaction, error)
	ListInventoryTransactions(ctx context.Context, productID string, limit int) ([]domain.InventoryTransaction, error)

	// Purchases. Create increases stock, delete reverses it, both in the
	// same unit as the purchase row write.
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error)
	DeletePurchase(ctx context.Context, id string, at time.Time) (*domain.Purchase, error)

	// Sales. CreateSale persists header, items, stock decrements and
	// ledger entries together. UpdateSale first reverses every prior
	// line's stock effect, then reapplies for the new line set.
	CreateSale(ctx context.Context, payload SalePayload) (*domain.Sale, error)
	UpdateSale(ctx context.Context, payload SalePayload) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	RemoveSaleItem(ctx context.Context, saleID string, itemID string, at time.Time) (*domain.Sale, error)
	SalesReport(ctx context.Context, from time.Time, to time.Time) (*domain.SalesReport, error)

	// Reference registries, soft-deleted.
	SaveCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	SaveSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error

	// Users and credentials.
	SaveUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUser(ctx context.Context, id string) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	ListUsersByRole(ctx context.Context, role string) ([]domain.UserAccount, error)
	DeleteUser(ctx context.Context, id string) error
}
