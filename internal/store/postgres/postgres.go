package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/store"
	"dukapos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
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

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// adjustStockTx applies one ledger movement inside the caller's
// transaction: it locks the product row, rejects negative results, then
// writes the ledger entry and the new quantity together.
func adjustStockTx(ctx context.Context, tx execer, productID string, delta int, reference string, at time.Time) (*domain.InventoryTransaction, error) {
	if delta == 0 {
		return nil, store.ErrInvalidTransaction
	}

	var name string
	var previous int
	err := tx.QueryRowContext(ctx, `
		SELECT name, base_quantity
		FROM products
		WHERE id = $1 AND active = true
		FOR UPDATE
	`, productID).Scan(&name, &previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	next := previous + delta
	if next < 0 {
		return nil, &store.InsufficientStockError{
			ProductID:   productID,
			ProductName: name,
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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (id, product_id, change_quantity, previous_quantity, new_quantity, reference_id, change_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.ProductID, entry.ChangeQuantity, entry.PreviousQuantity, entry.NewQuantity, entry.ReferenceID, entry.ChangeDate)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE products SET base_quantity = $2, updated_at = $3 WHERE id = $1
	`, productID, next, at)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Products

const productColumns = `id, code, name, description, price, cost, tax_rate, base_quantity, conversion_factor, default_unit, base_unit, COALESCE(category_id, ''), active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Price, &p.Cost, &p.TaxRate,
		&p.BaseQuantity, &p.ConversionFactor, &p.DefaultUnit, &p.BaseUnit, &p.CategoryID,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SaveProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO products (id, code, name, description, price, cost, tax_rate, base_quantity, conversion_factor, default_unit, base_unit, category_id, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),$13,$14,$15)
		`, product.ID, product.Code, product.Name, product.Description, product.Price, product.Cost,
			product.TaxRate, product.BaseQuantity, product.ConversionFactor, product.DefaultUnit,
			product.BaseUnit, product.CategoryID, product.Active, product.CreatedAt, product.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrConflict
			}
			return nil, err
		}
		created := product
		return &created, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET code = $2, name = $3, description = $4, price = $5, cost = $6, tax_rate = $7,
		    conversion_factor = $8, default_unit = $9, base_unit = $10, category_id = NULLIF($11,''),
		    active = $12, updated_at = $13
		WHERE id = $1
	`, product.ID, product.Code, product.Name, product.Description, product.Price, product.Cost,
		product.TaxRate, product.ConversionFactor, product.DefaultUnit, product.BaseUnit,
		product.CategoryID, product.Active, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
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
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = $1 AND active = true
	`, id)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return product, err
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE code = $1 AND active = true
	`, code)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return product, err
}

func (s *Store) ListProducts(ctx context.Context, categoryID string, limit int) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND ($1 = '' OR category_id = $1)
		ORDER BY name
		LIMIT $2
	`, categoryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET active = false, updated_at = now() WHERE id = $1 AND active = true
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int, reference string, at time.Time) (*domain.InventoryTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	entry, err := adjustStockTx(ctx, tx, productID, delta, reference, at)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, productID string, limit int) ([]domain.InventoryTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, change_quantity, previous_quantity, new_quantity, reference_id, change_date
		FROM inventory_transactions
		WHERE product_id = $1
		ORDER BY change_date DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.InventoryTransaction, 0, limit)
	for rows.Next() {
		var e domain.InventoryTransaction
		if err := rows.Scan(&e.ID, &e.ProductID, &e.ChangeQuantity, &e.PreviousQuantity, &e.NewQuantity, &e.ReferenceID, &e.ChangeDate); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purchases

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.Qty < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	purchase.Active = true

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, product_id, supplier_id, qty, cost_per_unit, total, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, purchase.ID, purchase.ProductID, purchase.SupplierID, purchase.Qty, purchase.CostPerUnit,
		purchase.Total, purchase.Active, purchase.CreatedAt, purchase.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if _, err := adjustStockTx(ctx, tx, purchase.ProductID, purchase.Qty, "PURCHASE-"+purchase.ID, purchase.CreatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := purchase
	return &created, nil
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	var p domain.Purchase
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, supplier_id, qty, cost_per_unit, total, active, created_at, updated_at
		FROM purchases
		WHERE id = $1 AND active = true
	`, id).Scan(&p.ID, &p.ProductID, &p.SupplierID, &p.Qty, &p.CostPerUnit, &p.Total, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, supplier_id, qty, cost_per_unit, total, active, created_at, updated_at
		FROM purchases
		WHERE active = true
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, limit)
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.ProductID, &p.SupplierID, &p.Qty, &p.CostPerUnit, &p.Total, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func (s *Store) DeletePurchase(ctx context.Context, id string, at time.Time) (*domain.Purchase, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var p domain.Purchase
	err = tx.QueryRowContext(ctx, `
		SELECT id, product_id, supplier_id, qty, cost_per_unit, total, active, created_at, updated_at
		FROM purchases
		WHERE id = $1 AND active = true
		FOR UPDATE
	`, id).Scan(&p.ID, &p.ProductID, &p.SupplierID, &p.Qty, &p.CostPerUnit, &p.Total, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	// A legitimate rejection: stock already consumed below the purchased
	// quantity leaves the purchase in place.
	if _, err := adjustStockTx(ctx, tx, p.ProductID, -p.Qty, "DELETE-PURCHASE-"+p.ID, at); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE purchases SET active = false, updated_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	p.Active = false
	p.UpdatedAt = at
	return &p, nil
}

// Sales

const saleColumns = `id, code, sub_total, total_tax, discount, grand_total, is_credit, COALESCE(customer_name, ''), payment_method, total_paid, balance_due, COALESCE(cashier_id, ''), created_at, updated_at`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.Code, &sale.SubTotal, &sale.TotalTax, &sale.Discount,
		&sale.GrandTotal, &sale.IsCredit, &sale.CustomerName, &sale.PaymentMethod,
		&sale.TotalPaid, &sale.BalanceDue, &sale.CashierID, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) CreateSale(ctx context.Context, payload store.SalePayload) (*domain.Sale, error) {
	sale := payload.Sale
	if sale.ID == "" || sale.Code == "" || len(payload.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertSaleHeader(ctx, tx, sale); err != nil {
		return nil, err
	}
	if err := insertSaleItems(ctx, tx, sale, payload.Items, sale.CreatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, sale.ID)
}

func insertSaleHeader(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, code, sub_total, total_tax, discount, grand_total, is_credit, customer_name, payment_method, total_paid, balance_due, cashier_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$11,NULLIF($12,''),$13,$14)
	`, sale.ID, sale.Code, sale.SubTotal, sale.TotalTax, sale.Discount, sale.GrandTotal,
		sale.IsCredit, sale.CustomerName, sale.PaymentMethod, sale.TotalPaid, sale.BalanceDue,
		sale.CashierID, sale.CreatedAt, sale.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

// insertSaleItems writes the line items and their stock decrements. Each
// decrement's ledger entry references the sale ID.
func insertSaleItems(ctx context.Context, tx *sql.Tx, sale domain.Sale, items []domain.SaleItem, at time.Time) error {
	for _, item := range items {
		if item.Qty < 1 {
			return store.ErrInvalidTransaction
		}
		if item.ID == "" {
			item.ID = xid.New("sli")
		}
		if _, err := adjustStockTx(ctx, tx, item.ProductID, -item.Qty, sale.ID, at); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, price, qty, unit_type, tax_amount, total_amount, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, sale.ID, item.ProductID, item.Price, item.Qty, item.UnitType, item.TaxAmount, item.TotalAmount, at)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateSale(ctx context.Context, payload store.SalePayload) (*domain.Sale, error) {
	sale := payload.Sale
	if len(payload.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	prior, err := loadSaleItems(ctx, tx, sale.ID)
	if err != nil {
		return nil, err
	}
	// Reverse every prior line's stock effect before the new set applies.
	for _, item := range prior {
		if _, err := adjustStockTx(ctx, tx, item.ProductID, item.Qty, "EDIT-"+sale.ID, sale.UpdatedAt); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET sub_total = $2, total_tax = $3, discount = $4, grand_total = $5, is_credit = $6,
		    customer_name = NULLIF($7,''), payment_method = $8, total_paid = $9, balance_due = $10, updated_at = $11
		WHERE id = $1
	`, sale.ID, sale.SubTotal, sale.TotalTax, sale.Discount, sale.GrandTotal, sale.IsCredit,
		sale.CustomerName, sale.PaymentMethod, sale.TotalPaid, sale.BalanceDue, sale.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	if err := insertSaleItems(ctx, tx, sale, payload.Items, sale.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, sale.ID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSaleItems(ctx context.Context, q querier, saleID string) ([]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, sale_id, product_id, price, qty, unit_type, tax_amount, total_amount, created_at
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Price, &item.Qty, &item.UnitType, &item.TaxAmount, &item.TotalAmount, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := loadSaleItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		items, err := loadSaleItems(ctx, s.db, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}
	return sales, nil
}

func (s *Store) RemoveSaleItem(ctx context.Context, saleID string, itemID string, at time.Time) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, saleID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var item domain.SaleItem
	err = tx.QueryRowContext(ctx, `
		SELECT id, sale_id, product_id, price, qty, unit_type, tax_amount, total_amount, created_at
		FROM sale_items
		WHERE id = $1 AND sale_id = $2
	`, itemID, saleID).Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Price, &item.Qty, &item.UnitType, &item.TaxAmount, &item.TotalAmount, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if _, err := adjustStockTx(ctx, tx, item.ProductID, item.Qty, sale.Code+"-item-removed", at); err != nil {
		return nil, err
	}

	sale.SubTotal = sale.SubTotal.Sub(item.TotalAmount)
	sale.TotalTax = sale.TotalTax.Sub(item.TaxAmount)
	sale.GrandTotal = sale.GrandTotal.Sub(item.TotalAmount.Add(item.TaxAmount))
	if sale.GrandTotal.IsNegative() {
		sale.GrandTotal = decimal.Zero
	}
	if sale.IsCredit {
		sale.BalanceDue = sale.GrandTotal.Sub(sale.TotalPaid)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET sub_total = $2, total_tax = $3, grand_total = $4, balance_due = $5, updated_at = $6
		WHERE id = $1
	`, saleID, sale.SubTotal, sale.TotalTax, sale.GrandTotal, sale.BalanceDue, at)
	if err != nil {
		return nil, err
	}
	// SaleItems are permanently deleted, never soft-deleted.
	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE id = $1`, itemID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

func (s *Store) SalesReport(ctx context.Context, from time.Time, to time.Time) (*domain.SalesReport, error) {
	report := domain.SalesReport{From: from, To: to}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(sub_total), 0), COALESCE(SUM(total_tax), 0),
		       COALESCE(SUM(discount), 0), COALESCE(SUM(grand_total), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.SaleCount, &report.SubTotal, &report.TotalTax, &report.Discount, &report.GrandTotal)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Categories

func (s *Store) SaveCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" {
		category.ID = xid.New("cat")
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO categories (id, name, slug, description, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, category.ID, category.Name, category.Slug, category.Description, category.Active, category.CreatedAt, category.UpdatedAt)
		if err != nil {
			return nil, err
		}
		created := category
		return &created, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET name = $2, slug = $3, description = $4, active = $5, updated_at = $6
		WHERE id = $1
	`, category.ID, category.Name, category.Slug, category.Description, category.Active, category.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := category
	return &updated, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, active, created_at, updated_at
		FROM categories
		WHERE id = $1 AND active = true
	`, id).Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, active, created_at, updated_at
		FROM categories
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET active = false, updated_at = now() WHERE id = $1 AND active = true
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Suppliers

func (s *Store) SaveSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO suppliers (id, name, contact_info, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, supplier.ID, supplier.Name, supplier.ContactInfo, supplier.Active, supplier.CreatedAt, supplier.UpdatedAt)
		if err != nil {
			return nil, err
		}
		created := supplier
		return &created, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers
		SET name = $2, contact_info = $3, active = $4, updated_at = $5
		WHERE id = $1
	`, supplier.ID, supplier.Name, supplier.ContactInfo, supplier.Active, supplier.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := supplier
	return &updated, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact_info, active, created_at, updated_at
		FROM suppliers
		WHERE id = $1 AND active = true
	`, id).Scan(&sup.ID, &sup.Name, &sup.ContactInfo, &sup.Active, &sup.CreatedAt, &sup.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sup, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact_info, active, created_at, updated_at
		FROM suppliers
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.ContactInfo, &sup.Active, &sup.CreatedAt, &sup.UpdatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers SET active = false, updated_at = now() WHERE id = $1 AND active = true
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Users

const userColumns = `id, username, COALESCE(email, ''), role, COALESCE(password_hash, ''), COALESCE(pin_hash, ''), active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.PasswordHash, &u.PINHash, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.ID == "" {
		user.ID = xid.New("usr")
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (id, username, email, role, password_hash, pin_hash, active, created_at, updated_at)
			VALUES ($1,$2,NULLIF($3,''),$4,NULLIF($5,''),NULLIF($6,''),$7,$8,$9)
		`, user.ID, user.Username, user.Email, user.Role, user.PasswordHash, user.PINHash, user.Active, user.CreatedAt, user.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrConflict
			}
			return nil, err
		}
		created := user
		return &created, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = $2, email = NULLIF($3,''), role = $4, password_hash = NULLIF($5,''),
		    pin_hash = NULLIF($6,''), active = $7, updated_at = $8
		WHERE id = $1
	`, user.ID, user.Username, user.Email, user.Role, user.PasswordHash, user.PINHash, user.Active, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
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
	updated := user
	return &updated, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1 AND active = true
	`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return user, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE username = $1 AND active = true
	`, username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return user, err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	return s.listUsers(ctx, "")
}

func (s *Store) ListUsersByRole(ctx context.Context, role string) ([]domain.UserAccount, error) {
	return s.listUsers(ctx, role)
}

func (s *Store) listUsers(ctx context.Context, role string) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE active = true AND ($1 = '' OR role = $1)
		ORDER BY username
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET active = false, updated_at = now() WHERE id = $1 AND active = true
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
