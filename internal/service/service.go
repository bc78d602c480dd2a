package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dukapos/backend/internal/cache"
	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/observe"
	"dukapos/backend/internal/store"
	"dukapos/backend/internal/xid"
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
	hub       *observe.Hub
	reports   cache.ReportCache
	reportTTL time.Duration
}

func New(repo store.Repository, hub *observe.Hub, reports cache.ReportCache, reportTTL time.Duration) *Service {
	if hub == nil {
		hub = observe.NewHub()
	}
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 2 * time.Minute
	}
	return &Service{repo: repo, hub: hub, reports: reports, reportTTL: reportTTL}
}

func (s *Service) Hub() *observe.Hub { return s.hub }

func (s *Service) requirePermission(ctx context.Context, permission string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !domain.HasPermission(actor.Role, permission) {
		return domain.Actor{}, ErrPermissionDenied
	}
	return actor, nil
}

// publish runs only after a commit has fully succeeded and never feeds
// back into the write path.
func (s *Service) publish(topic, action, entityID string) {
	s.hub.Publish(topic, action, entityID)
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: report cache invalidation failed: %v", err)
	}
}

// wrapStore keeps the typed taxonomy intact: known domain errors pass
// through untouched, everything else surfaces as a persistence failure.
func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrInsufficientStock) ||
		errors.Is(err, store.ErrInvalidTransaction) ||
		errors.Is(err, store.ErrConflict) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Products

func (s *Service) ListProducts(ctx context.Context, categoryID string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListProducts(ctx, categoryID, limit)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, invalid("id", "required")
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) SaveProduct(ctx context.Context, req domain.ProductSaveRequest) (*domain.Product, error) {
	if _, err := s.requirePermission(ctx, domain.PermManageInventory); err != nil {
		return nil, err
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" {
		return nil, invalid("code", "required")
	}
	if req.Name == "" {
		return nil, invalid("name", "required")
	}
	if !req.Price.IsPositive() {
		return nil, invalid("price", "must be positive")
	}
	if !req.Cost.IsPositive() {
		return nil, invalid("cost", "must be positive")
	}
	if req.TaxRate.IsNegative() {
		return nil, invalid("tax_rate", "must not be negative")
	}
	if req.ConversionFactor.IsZero() {
		req.ConversionFactor = decimal.NewFromInt(1)
	}
	if !req.ConversionFactor.IsPositive() {
		return nil, invalid("conversion_factor", "must be positive")
	}
	if req.DefaultUnit == "" {
		req.DefaultUnit = "unit"
	}
	if req.BaseUnit == "" {
		req.BaseUnit = req.DefaultUnit
	}
	if req.OpeningQuantity < 0 {
		return nil, invalid("opening_quantity", "must not be negative")
	}
	if req.CategoryID != "" {
		if _, err := s.repo.GetCategory(ctx, req.CategoryID); err != nil {
			return nil, wrapStore("lookup category", err)
		}
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:               req.ID,
		Code:             req.Code,
		Name:             req.Name,
		Description:      req.Description,
		Price:            req.Price,
		Cost:             req.Cost,
		TaxRate:          req.TaxRate,
		ConversionFactor: req.ConversionFactor,
		DefaultUnit:      req.DefaultUnit,
		BaseUnit:         req.BaseUnit,
		CategoryID:       req.CategoryID,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.ID != "" {
		existing, err := s.repo.GetProduct(ctx, req.ID)
		if err != nil {
			return nil, wrapStore("lookup product", err)
		}
		product.BaseQuantity = existing.BaseQuantity
		product.CreatedAt = existing.CreatedAt
	}

	saved, err := s.repo.SaveProduct(ctx, product)
	if err != nil {
		return nil, wrapStore("save product", err)
	}

	if req.ID == "" && req.OpeningQuantity > 0 {
		if _, err := s.repo.AdjustStock(ctx, saved.ID, req.OpeningQuantity, "OPENING-"+saved.ID, now); err != nil {
			return nil, wrapStore("record opening stock", err)
		}
		saved, err = s.repo.GetProduct(ctx, saved.ID)
		if err != nil {
			return nil, wrapStore("reload product", err)
		}
	}

	s.publish(observe.TopicProducts, "saved", saved.ID)
	return saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.requirePermission(ctx, domain.PermManageInventory); err != nil {
		return err
	}
	if id == "" {
		return invalid("id", "required")
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return wrapStore("delete product", err)
	}
	s.publish(observe.TopicProducts, "deleted", id)
	return nil
}

// AdjustStock is the manual correction entry point. Purchases and sales
// write their own ledger entries inside their own atomic units.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (*domain.InventoryTransaction, error) {
	if _, err := s.requirePermission(ctx, domain.PermManageInventory); err != nil {
		return nil, err
	}
	if req.ProductID == "" {
		return nil, invalid("product_id", "required")
	}
	if req.Delta == 0 {
		return nil, invalid("delta", "must be nonzero")
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = "ADJUST-" + xid.New("adj")
	}
	entry, err := s.repo.AdjustStock(ctx, req.ProductID, req.Delta, reference, time.Now().UTC())
	if err != nil {
		return nil, wrapStore("adjust stock", err)
	}
	s.publish(observe.TopicProducts, "stock-adjusted", req.ProductID)
	return entry, nil
}

func (s *Service) ListInventoryTransactions(ctx context.Context, productID string, limit int) ([]domain.InventoryTransaction, error) {
	if productID == "" {
		return nil, invalid("product_id", "required")
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListInventoryTransactions(ctx, productID, limit)
}

// Purchases

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (*domain.Purchase, error) {
	if _, err := s.requirePermission(ctx, domain.PermManageInventory); err != nil {
		return nil, err
	}
	if req.ProductID == "" {
		return nil, invalid("product_id", "required")
	}
	if req.SupplierID == "" {
		return nil, invalid("supplier_id", "required")
	}
	if req.Qty < 1 {
		return nil, invalid("qty", "must be positive")
	}
	if !req.CostPerUnit.IsPositive() {
		return nil, invalid("cost_per_unit", "must be positive")
	}
	if _, err := s.repo.GetProduct(ctx, req.ProductID); err != nil {
		return nil, wrapStore("lookup product", err)
	}
	if _, err := s.repo.GetSupplier(ctx, req.SupplierID); err != nil {
		return nil, wrapStore("lookup supplier", err)
	}

	now := time.Now().UTC()
	purchase := domain.Purchase{
		ID:          xid.New("pur"),
		ProductID:   req.ProductID,
		SupplierID:  req.SupplierID,
		Qty:         req.Qty,
		CostPerUnit: req.CostPerUnit,
		Total:       req.CostPerUnit.Mul(decimal.NewFromInt(int64(req.Qty))),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.repo.CreatePurchase(ctx, purchase)
	if err != nil {
		return nil, wrapStore("create purchase", err)
	}

	s.publish(observe.TopicPurchases, "created", created.ID)
	s.publish(observe.TopicProducts, "stock-adjusted", created.ProductID)
	return created, nil
}

func (s *Service) DeletePurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	if _, err := s.requirePermission(ctx, domain.PermManageInventory); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, invalid("id", "required")
	}
	deleted, err := s.repo.DeletePurchase(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, wrapStore("delete purchase", err)
	}
	s.publish(observe.TopicPurchases, "deleted", deleted.ID)
	s.publish(observe.TopicProducts, "stock-adjusted", deleted.ProductID)
	return deleted, nil
}

func (s *Service) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	if id == "" {
		return nil, invalid("id", "required")
	}
	return s.repo.GetPurchase(ctx, id)
}

func (s *Service) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPurchases(ctx, limit)
}
