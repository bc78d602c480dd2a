package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/store"
	"dukapos/backend/internal/xid"
)

// Store is the embedded in-memory repository. One mutex serializes every
// write, so each multi-record method is naturally a single atomic unit.
type Store struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	categories  map[string]domain.Category
	suppliers   map[string]domain.Supplier
	purchases   map[string]domain.Purchase
	sales       map[string]domain.Sale
	saleItems   map[string][]domain.SaleItem
	ledger      map[string][]domain.InventoryTransaction
	users       map[string]domain.UserAccount
	usersByName map[string]string
}

func New() *Store {
	return &Store{
		products:    make(map[string]domain.Product),
		categories:  make(map[string]domain.Category),
		suppliers:   make(map[string]domain.Supplier),
		purchases:   make(map[string]domain.Purchase),
		sales:       make(map[string]domain.Sale),
		saleItems:   make(map[string][]domain.SaleItem),
		ledger:      make(map[string][]domain.InventoryTransaction),
		users:       make(map[string]domain.UserAccount),
		usersByName: make(map[string]string),
	}
}

// NewSeeded returns a store preloaded with dev/demo users. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PIN; hardcoded dev
// defaults are used with a warning when unset. Production runs against
// PostgreSQL and never calls this.
func NewSeeded() *Store {
	s := New()

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPIN := envOr("SEED_CASHIER_PIN", "1234")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PIN") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PIN to override.")
	}

	now := time.Now().UTC()
	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	pinSum := sha256.Sum256([]byte(cashierPIN))

	for _, u := range []domain.UserAccount{
		{
			User: domain.User{
				ID: xid.New("usr"), Username: "admin", Role: domain.RoleAdmin,
				Active: true, CreatedAt: now, UpdatedAt: now,
			},
			PasswordHash: string(adminHash),
		},
		{
			User: domain.User{
				ID: xid.New("usr"), Username: "cashier", Role: domain.RoleCashier,
				Active: true, CreatedAt: now, UpdatedAt: now,
			},
			PINHash: hex.EncodeToString(pinSum[:]),
		},
	} {
		s.users[u.ID] = u
		s.usersByName[u.Username] = u.ID
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// stockTx stages stock movements against scratch quantities so a failed
// step leaves the real maps untouched. commit applies product updates
// and ledger appends together under the held write lock.
type stockTx struct {
	s       *Store
	qty     map[string]int
	entries []domain.InventoryTransaction
}

func (s *Store) newStockTx() *stockTx {
	return &stockTx{s: s, qty: make(map[string]int)}
}

func (tx *stockTx) adjust(productID string, delta int, reference string, at time.Time) (*domain.InventoryTransaction, error) {
	if delta == 0 {
		return nil, store.ErrInvalidTransaction
	}
	product, ok := tx.s.products[productID]
	if !ok || !product.Active {
		return nil, store.ErrNotFound
	}
	previous, staged := tx.qty[productID]
	if !staged {
		previous = product.BaseQuantity
	}
	next := previous + delta
	if next < 0 {
		return nil, &store.InsufficientStockError{
			ProductID:   productID,
			ProductName: product.Name,
			Requested:   -delta,
			Available:   previous,
		}
	}
	entry := domain.InventoryTransaction{
		ID:               xid.New("itx"),
		ProductID:        productID,
		ChangeQuantity:   delta,
		PreviousQuantity: previous,
		NewQuantity:      next,
		ReferenceID:      reference,
		ChangeDate:       at,
	}
	tx.qty[productID] = next
	tx.entries = append(tx.entries, entry)
	return &entry, nil
}

func (tx *stockTx) commit(at time.Time) {
	for productID, qty := range tx.qty {
		p := tx.s.products[productID]
		p.BaseQuantity = qty
		p.UpdatedAt = at
		tx.s.products[productID] = p
	}
	for _, e := range tx.entries {
		tx.s.ledger[e.ProductID] = append(tx.s.ledger[e.ProductID], e)
	}
}

// Products

func (s *Store) SaveProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if other, ok := s.findProductByCode(product.Code); ok && other.ID != product.ID {
		return nil, store.ErrConflict
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	} else if existing, ok := s.products[product.ID]; !ok {
		return nil, store.ErrNotFound
	} else {
		// Quantity only moves through the ledger. An edit carrying a stale
		// snapshot must not undo stock movements committed in between.
		product.BaseQuantity = existing.BaseQuantity
	}
	s.products[product.ID] = product
	cloned := product
	return &cloned, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok || !p.Active {
		return nil, store.ErrNotFound
	}
	cloned := p
	return &cloned, nil
}

func (s *Store) GetProductByCode(_ context.Context, code string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.findProductByCode(code)
	if !ok || !p.Active {
		return nil, store.ErrNotFound
	}
	cloned := p
	return &cloned, nil
}

func (s *Store) findProductByCode(code string) (domain.Product, bool) {
	for _, p := range s.products {
		if p.Code == code {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (s *Store) ListProducts(_ context.Context, categoryID string, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return truncate(products, limit), nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || !p.Active {
		return store.ErrNotFound
	}
	p.Active = false
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int, reference string, at time.Time) (*domain.InventoryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.newStockTx()
	entry, err := tx.adjust(productID, delta, reference, at)
	if err != nil {
		return nil, err
	}
	tx.commit(at)
	return entry, nil
}

func (s *Store) ListInventoryTransactions(_ context.Context, productID string, limit int) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := slices.Clone(s.ledger[productID])
	slices.Reverse(entries)
	return truncate(entries, limit), nil
}

// Purchases

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.Qty < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	tx := s.newStockTx()
	if _, err := tx.adjust(purchase.ProductID, purchase.Qty, "PURCHASE-"+purchase.ID, purchase.CreatedAt); err != nil {
		return nil, err
	}
	tx.commit(purchase.CreatedAt)
	purchase.Active = true
	s.purchases[purchase.ID] = purchase
	cloned := purchase
	return &cloned, nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.purchases[id]
	if !ok || !p.Active {
		return nil, store.ErrNotFound
	}
	cloned := p
	return &cloned, nil
}

func (s *Store) ListPurchases(_ context.Context, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchases := make([]domain.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		if !p.Active {
			continue
		}
		purchases = append(purchases, p)
	}
	slices.SortFunc(purchases, func(a, b domain.Purchase) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return truncate(purchases, limit), nil
}

func (s *Store) DeletePurchase(_ context.Context, id string, at time.Time) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok || !p.Active {
		return nil, store.ErrNotFound
	}
	tx := s.newStockTx()
	if _, err := tx.adjust(p.ProductID, -p.Qty, "DELETE-PURCHASE-"+p.ID, at); err != nil {
		return nil, err
	}
	tx.commit(at)
	p.Active = false
	p.UpdatedAt = at
	s.purchases[id] = p
	cloned := p
	return &cloned, nil
}

// Sales

func (s *Store) CreateSale(_ context.Context, payload store.SalePayload) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := payload.Sale
	if sale.ID == "" || sale.Code == "" || len(payload.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	tx := s.newStockTx()
	items := make([]domain.SaleItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if _, err := tx.adjust(item.ProductID, -item.Qty, sale.ID, sale.CreatedAt); err != nil {
			return nil, err
		}
		if item.ID == "" {
			item.ID = xid.New("sli")
		}
		item.SaleID = sale.ID
		items = append(items, item)
	}
	tx.commit(sale.CreatedAt)
	s.sales[sale.ID] = sale
	s.saleItems[sale.ID] = items
	return s.saleWithItems(sale.ID)
}

func (s *Store) UpdateSale(_ context.Context, payload store.SalePayload) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := payload.Sale
	prior, ok := s.sales[sale.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if len(payload.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	tx := s.newStockTx()
	// Return every prior line's units before the new set decrements, so
	// qty-only edits never trip the stock check.
	for _, item := range s.saleItems[sale.ID] {
		if _, err := tx.adjust(item.ProductID, item.Qty, "EDIT-"+sale.ID, sale.UpdatedAt); err != nil {
			return nil, err
		}
	}
	items := make([]domain.SaleItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if _, err := tx.adjust(item.ProductID, -item.Qty, sale.ID, sale.UpdatedAt); err != nil {
			return nil, err
		}
		if item.ID == "" {
			item.ID = xid.New("sli")
		}
		item.SaleID = sale.ID
		items = append(items, item)
	}
	tx.commit(sale.UpdatedAt)

	sale.Code = prior.Code
	sale.CreatedAt = prior.CreatedAt
	s.sales[sale.ID] = sale
	s.saleItems[sale.ID] = items
	return s.saleWithItems(sale.ID)
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sales[id]; !ok {
		return nil, store.ErrNotFound
	}
	return s.saleWithItems(id)
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for id := range s.sales {
		sale, err := s.saleWithItems(id)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return truncate(sales, limit), nil
}

func (s *Store) RemoveSaleItem(_ context.Context, saleID string, itemID string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	items := s.saleItems[saleID]
	idx := slices.IndexFunc(items, func(it domain.SaleItem) bool { return it.ID == itemID })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	item := items[idx]

	tx := s.newStockTx()
	if _, err := tx.adjust(item.ProductID, item.Qty, sale.Code+"-item-removed", at); err != nil {
		return nil, err
	}
	tx.commit(at)

	sale.SubTotal = sale.SubTotal.Sub(item.TotalAmount)
	sale.TotalTax = sale.TotalTax.Sub(item.TaxAmount)
	sale.GrandTotal = sale.GrandTotal.Sub(item.TotalAmount.Add(item.TaxAmount))
	if sale.GrandTotal.IsNegative() {
		sale.GrandTotal = decimal.Zero
	}
	if sale.IsCredit {
		sale.BalanceDue = sale.GrandTotal.Sub(sale.TotalPaid)
	}
	sale.UpdatedAt = at
	s.sales[saleID] = sale
	s.saleItems[saleID] = slices.Delete(items, idx, idx+1)
	return s.saleWithItems(saleID)
}

func (s *Store) SalesReport(_ context.Context, from time.Time, to time.Time) (*domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.SalesReport{
		From:       from,
		To:         to,
		SubTotal:   decimal.Zero,
		TotalTax:   decimal.Zero,
		Discount:   decimal.Zero,
		GrandTotal: decimal.Zero,
	}
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		report.SaleCount++
		report.SubTotal = report.SubTotal.Add(sale.SubTotal)
		report.TotalTax = report.TotalTax.Add(sale.TotalTax)
		report.Discount = report.Discount.Add(sale.Discount)
		report.GrandTotal = report.GrandTotal.Add(sale.GrandTotal)
	}
	return &report, nil
}

// saleWithItems assumes the lock is held.
func (s *Store) saleWithItems(id string) (*domain.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Items = slices.Clone(s.saleItems[id])
	return &sale, nil
}

// Categories

func (s *Store) SaveCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == "" {
		category.ID = xid.New("cat")
	} else if _, ok := s.categories[category.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.categories[category.ID] = category
	cloned := category
	return &cloned, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok || !c.Active {
		return nil, store.ErrNotFound
	}
	cloned := c
	return &cloned, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if !c.Active {
			continue
		}
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok || !c.Active {
		return store.ErrNotFound
	}
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
	s.categories[id] = c
	return nil
}

// Suppliers

func (s *Store) SaveSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	} else if _, ok := s.suppliers[supplier.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.suppliers[supplier.ID] = supplier
	cloned := supplier
	return &cloned, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sup, ok := s.suppliers[id]
	if !ok || !sup.Active {
		return nil, store.ErrNotFound
	}
	cloned := sup
	return &cloned, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		if !sup.Active {
			continue
		}
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) DeleteSupplier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, ok := s.suppliers[id]
	if !ok || !sup.Active {
		return store.ErrNotFound
	}
	sup.Active = false
	sup.UpdatedAt = time.Now().UTC()
	s.suppliers[id] = sup
	return nil
}

// Users

func (s *Store) SaveUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if otherID, ok := s.usersByName[user.Username]; ok && otherID != user.ID {
		return nil, store.ErrConflict
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	} else if prior, ok := s.users[user.ID]; ok {
		if prior.Username != user.Username {
			delete(s.usersByName, prior.Username)
		}
	} else {
		return nil, store.ErrNotFound
	}
	s.users[user.ID] = user
	s.usersByName[user.Username] = user.ID
	cloned := user
	return &cloned, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok || !u.Active {
		return nil, store.ErrNotFound
	}
	cloned := u
	return &cloned, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByName[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := s.users[id]
	if !u.Active {
		return nil, store.ErrNotFound
	}
	cloned := u
	return &cloned, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	return s.listUsers("")
}

func (s *Store) ListUsersByRole(_ context.Context, role string) ([]domain.UserAccount, error) {
	return s.listUsers(role)
}

func (s *Store) listUsers(role string) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		if !u.Active {
			continue
		}
		if role != "" && u.Role != role {
			continue
		}
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || !u.Active {
		return store.ErrNotFound
	}
	u.Active = false
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}
