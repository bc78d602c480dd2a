package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dukapos/backend/internal/cache"
	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/observe"
	"dukapos/backend/internal/store"
	"dukapos/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.New(), observe.NewHub(), cache.NoopReportCache{}, time.Minute)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{ID: "usr-test-admin", Username: "admin", Role: domain.RoleAdmin})
}

func seedProduct(t *testing.T, svc *Service, code string, price int64, taxRate int64, qty int) *domain.Product {
	t.Helper()
	product, err := svc.SaveProduct(adminCtx(), domain.ProductSaveRequest{
		Code:            code,
		Name:            "Product " + code,
		Price:           decimal.NewFromInt(price),
		Cost:            decimal.NewFromInt(price / 2),
		TaxRate:         decimal.NewFromInt(taxRate),
		OpeningQuantity: qty,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", code, err)
	}
	return product
}

func seedSupplier(t *testing.T, svc *Service) *domain.Supplier {
	t.Helper()
	supplier, err := svc.SaveSupplier(adminCtx(), domain.SupplierSaveRequest{Name: "Mombasa Traders"})
	if err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
	return supplier
}

func TestAdjustStockNeverGoesNegative(t *testing.T) {
	svc := newTestService()
	product := seedProduct(t, svc, "CODE-A", 100, 0, 5)

	_, err := svc.AdjustStock(adminCtx(), domain.StockAdjustRequest{ProductID: product.ID, Delta: -6})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected typed stock error, got %T", err)
	}
	if stockErr.Available != 5 || stockErr.Requested != 6 {
		t.Fatalf("expected available=5 requested=6, got %+v", stockErr)
	}

	reloaded, err := svc.GetProduct(adminCtx(), product.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.BaseQuantity != 5 {
		t.Fatalf("expected quantity unchanged at 5, got %d", reloaded.BaseQuantity)
	}
}

func TestLedgerEntriesStayConsistent(t *testing.T) {
	svc := newTestService()
	product := seedProduct(t, svc, "CODE-L", 50, 0, 10)

	for _, delta := range []int{3, -5, 2, -4} {
		if _, err := svc.AdjustStock(adminCtx(), domain.StockAdjustRequest{ProductID: product.ID, Delta: delta}); err != nil {
			t.Fatalf("adjust %d: %v", delta, err)
		}
	}

	entries, err := svc.ListInventoryTransactions(adminCtx(), product.ID, 50)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 ledger entries (opening + 4), got %d", len(entries))
	}
	for _, e := range entries {
		if e.NewQuantity != e.PreviousQuantity+e.ChangeQuantity {
			t.Fatalf("ledger entry %s inconsistent: %d != %d + %d", e.ID, e.NewQuantity, e.PreviousQuantity, e.ChangeQuantity)
		}
	}

	reloaded, err := svc.GetProduct(adminCtx(), product.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if entries[0].NewQuantity != reloaded.BaseQuantity {
		t.Fatalf("latest entry quantity %d does not match product quantity %d", entries[0].NewQuantity, reloaded.BaseQuantity)
	}
}

func TestCheckoutIsAtomicAcrossLines(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	products := make([]*domain.Product, 0, 5)
	for i, code := range []string{"AT-1", "AT-2", "AT-3", "AT-4", "AT-5"} {
		qty := 10
		if i == 2 {
			qty = 1
		}
		products = append(products, seedProduct(t, svc, code, 100, 0, qty))
	}

	lines := make([]domain.CheckoutLine, 0, 5)
	for _, p := range products {
		lines = append(lines, domain.CheckoutLine{ProductID: p.ID, Qty: 2})
	}

	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		Lines:         lines,
		PaymentMethod: domain.PaymentMethodCash,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock on line 3, got %v", err)
	}

	sales, err := svc.ListSales(ctx, 10)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sale persisted, got %d", len(sales))
	}
	for i, p := range products {
		reloaded, err := svc.GetProduct(ctx, p.ID)
		if err != nil {
			t.Fatalf("reload product: %v", err)
		}
		want := 10
		if i == 2 {
			want = 1
		}
		if reloaded.BaseQuantity != want {
			t.Fatalf("product %s stock mutated: want %d, got %d", p.Code, want, reloaded.BaseQuantity)
		}
		entries, err := svc.ListInventoryTransactions(ctx, p.ID, 10)
		if err != nil {
			t.Fatalf("list ledger: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected only the opening ledger entry for %s, got %d", p.Code, len(entries))
		}
	}
}

func TestPurchaseReversalRoundTrip(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := seedProduct(t, svc, "PUR-1", 100, 0, 7)
	supplier := seedSupplier(t, svc)

	purchase, err := svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		ProductID:   product.ID,
		SupplierID:  supplier.ID,
		Qty:         10,
		CostPerUnit: decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if !purchase.Total.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected total 400, got %s", purchase.Total)
	}

	afterCreate, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if afterCreate.BaseQuantity != 17 {
		t.Fatalf("expected 17 after purchase, got %d", afterCreate.BaseQuantity)
	}

	if _, err := svc.DeletePurchase(ctx, purchase.ID); err != nil {
		t.Fatalf("delete purchase: %v", err)
	}
	afterDelete, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if afterDelete.BaseQuantity != 7 {
		t.Fatalf("expected quantity back to 7, got %d", afterDelete.BaseQuantity)
	}

	if _, err := svc.GetPurchase(ctx, purchase.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted purchase hidden, got %v", err)
	}
}

func TestDeletePurchaseRejectedWhenStockConsumed(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := seedProduct(t, svc, "PUR-2", 100, 0, 0)
	supplier := seedSupplier(t, svc)

	purchase, err := svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		ProductID:   product.ID,
		SupplierID:  supplier.ID,
		Qty:         5,
		CostPerUnit: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	// Sell 3 of the 5 purchased units so the reversal would go negative.
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 3}},
		PaymentMethod: domain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	_, err = svc.DeletePurchase(ctx, purchase.ID)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock on reversal, got %v", err)
	}
	if _, err := svc.GetPurchase(ctx, purchase.ID); err != nil {
		t.Fatalf("purchase should survive failed deletion: %v", err)
	}
}

func TestCheckoutConcreteScenario(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := seedProduct(t, svc, "SCEN-A", 100, 16, 5)

	cart := domain.NewCart()
	cart.AddLine(*product)
	cart.AddLine(*product)
	line, ok := cart.Line(product.ID)
	if !ok || line.Qty != 2 {
		t.Fatalf("expected cart line qty 2, got %+v", line)
	}
	if !line.TotalAmount().Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected line total 200, got %s", line.TotalAmount())
	}
	if !line.TaxAmount().Equal(decimal.NewFromInt(32)) {
		t.Fatalf("expected line vat 32, got %s", line.TaxAmount())
	}

	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		Lines:         cart.CheckoutLines(),
		Discount:      decimal.Zero,
		PaymentMethod: domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if !sale.SubTotal.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected subtotal 200, got %s", sale.SubTotal)
	}
	if !sale.TotalTax.Equal(decimal.NewFromInt(32)) {
		t.Fatalf("expected tax 32, got %s", sale.TotalTax)
	}
	if !sale.GrandTotal.Equal(decimal.NewFromInt(232)) {
		t.Fatalf("expected grand total 232, got %s", sale.GrandTotal)
	}
	if len(sale.Items) != 1 || sale.Items[0].Qty != 2 {
		t.Fatalf("expected one item with qty 2, got %+v", sale.Items)
	}

	reloaded, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.BaseQuantity != 3 {
		t.Fatalf("expected stock 3 after sale, got %d", reloaded.BaseQuantity)
	}

	entries, err := svc.ListInventoryTransactions(ctx, product.ID, 10)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	latest := entries[0]
	if latest.ChangeQuantity != -2 || latest.PreviousQuantity != 5 || latest.NewQuantity != 3 {
		t.Fatalf("expected ledger -2/5/3, got %+v", latest)
	}
	if latest.ReferenceID != sale.ID {
		t.Fatalf("expected ledger reference %s, got %s", sale.ID, latest.ReferenceID)
	}
}

func TestUpdateSaleReversesThenReapplies(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := seedProduct(t, svc, "EDIT-A", 100, 0, 5)

	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 2}},
		PaymentMethod: domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	// Edit quantity from 2 to 3: the prior decrement is reversed first,
	// so only one unit more leaves stock.
	updated, err := svc.UpdateSale(ctx, sale.ID, domain.CheckoutRequest{
		Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 3}},
		PaymentMethod: domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if updated.Code != sale.Code {
		t.Fatalf("sale code must survive edits: %s != %s", updated.Code, sale.Code)
	}
	if !updated.SubTotal.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected subtotal 300, got %s", updated.SubTotal)
	}

	reloaded, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.BaseQuantity != 2 {
		t.Fatalf("expected stock 2 after edit (5-3), got %d", reloaded.BaseQuantity)
	}

	// An edit that overshoots available stock fails atomically.
	_, err = svc.UpdateSale(ctx, sale.ID, domain.CheckoutRequest{
		Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 9}},
		PaymentMethod: domain.PaymentMethodCash,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	reloaded, err = svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.BaseQuantity != 2 {
		t.Fatalf("failed edit must leave stock at 2, got %d", reloaded.BaseQuantity)
	}
	kept, err := svc.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("reload sale: %v", err)
	}
	if len(kept.Items) != 1 || kept.Items[0].Qty != 3 {
		t.Fatalf("failed edit must keep prior items, got %+v", kept.Items)
	}
}

func TestRemoveSaleItemRestocksAndRetotals(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	first := seedProduct(t, svc, "REM-1", 10, 0, 10)
	second := seedProduct(t, svc, "REM-2", 5, 0, 10)

	tax1, _ := decimal.NewFromString("2")
	tax2, _ := decimal.NewFromString("0.5")
	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		Lines: []domain.CheckoutLine{
			{ProductID: first.ID, Qty: 2, Price: decimal.NewFromInt(10), TaxAmount: tax1},
			{ProductID: second.ID, Qty: 1, Price: decimal.NewFromInt(5), TaxAmount: tax2},
		},
		PaymentMethod: domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !sale.SubTotal.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected subtotal 25, got %s", sale.SubTotal)
	}

	var firstItem domain.SaleItem
	for _, item := range sale.Items {
		if item.ProductID == first.ID {
			firstItem = item
		}
	}
	if firstItem.ID == "" {
		t.Fatalf("missing sale item for first product")
	}

	updated, err := svc.RemoveSaleItem(ctx, sale.ID, firstItem.ID)
	if err != nil {
		t.Fatalf("remove sale item: %v", err)
	}
	if !updated.SubTotal.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected subtotal 5 after removal, got %s", updated.SubTotal)
	}
	if !updated.TotalTax.Equal(tax2) {
		t.Fatalf("expected tax 0.5 after removal, got %s", updated.TotalTax)
	}
	want := decimal.NewFromInt(5).Add(tax2)
	if !updated.GrandTotal.Equal(want) {
		t.Fatalf("expected grand total 5.5 after removal, got %s", updated.GrandTotal)
	}
	if len(updated.Items) != 1 {
		t.Fatalf("expected one remaining item, got %d", len(updated.Items))
	}

	reloaded, err := svc.GetProduct(ctx, first.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.BaseQuantity != 10 {
		t.Fatalf("expected 2 units restored to 10, got %d", reloaded.BaseQuantity)
	}

	entries, err := svc.ListInventoryTransactions(ctx, first.ID, 10)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if entries[0].ReferenceID != sale.Code+"-item-removed" {
		t.Fatalf("expected removal reference, got %s", entries[0].ReferenceID)
	}
}

func TestCheckoutCreditValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := seedProduct(t, svc, "CRD-1", 100, 0, 5)

	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 1}},
		PaymentMethod: domain.PaymentMethodCash,
		IsCredit:      true,
		AmountPaid:    decimal.NewFromInt(50),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "customer_name" {
		t.Fatalf("expected customer_name validation error, got %v", err)
	}

	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 1}},
		PaymentMethod: domain.PaymentMethodMpesa,
		IsCredit:      true,
		CustomerName:  "Wanjiku",
		AmountPaid:    decimal.NewFromInt(60),
	})
	if err != nil {
		t.Fatalf("credit checkout: %v", err)
	}
	if !sale.BalanceDue.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected balance due 40, got %s", sale.BalanceDue)
	}
}

func TestCheckoutRejectsUnknownPaymentMethod(t *testing.T) {
	svc := newTestService()
	product := seedProduct(t, svc, "PAY-1", 100, 0, 5)

	_, err := svc.Checkout(adminCtx(), domain.CheckoutRequest{
		Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 1}},
		PaymentMethod: "card",
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "payment_method" {
		t.Fatalf("expected payment_method validation error, got %v", err)
	}
}

func TestCashierPINUniqueness(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	first, err := svc.SaveUser(ctx, domain.UserSaveRequest{
		Username: "wanjiru",
		Role:     domain.RoleCashier,
		PIN:      "4321",
	})
	if err != nil {
		t.Fatalf("create first cashier: %v", err)
	}

	_, err = svc.SaveUser(ctx, domain.UserSaveRequest{
		Username: "otieno",
		Role:     domain.RoleCashier,
		PIN:      "4321",
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "pin" {
		t.Fatalf("expected duplicate PIN rejection, got %v", err)
	}

	second, err := svc.SaveUser(ctx, domain.UserSaveRequest{
		Username: "otieno",
		Role:     domain.RoleCashier,
		PIN:      "8765",
	})
	if err != nil {
		t.Fatalf("create second cashier: %v", err)
	}

	// Editing to another cashier's PIN is rejected.
	if err := svc.ResetPIN(ctx, second.ID, "4321"); err == nil {
		t.Fatalf("expected reset to another cashier's PIN to fail")
	}
	// Re-writing a cashier's own PIN is fine.
	if err := svc.ResetPIN(ctx, first.ID, "4321"); err != nil {
		t.Fatalf("self PIN rewrite should pass: %v", err)
	}
}

func TestSaveUserValidatesPIN(t *testing.T) {
	svc := newTestService()

	_, err := svc.SaveUser(adminCtx(), domain.UserSaveRequest{
		Username: "badpin",
		Role:     domain.RoleCashier,
		PIN:      "12a4",
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "pin" {
		t.Fatalf("expected pin validation error, got %v", err)
	}
}

func TestPermissionsGateWorkflows(t *testing.T) {
	svc := newTestService()
	cashier := WithActor(context.Background(), domain.Actor{ID: "usr-c", Username: "cashier", Role: domain.RoleCashier})

	_, err := svc.SaveProduct(cashier, domain.ProductSaveRequest{
		Code:  "DENY-1",
		Name:  "Denied",
		Price: decimal.NewFromInt(10),
		Cost:  decimal.NewFromInt(5),
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied for cashier, got %v", err)
	}

	if _, err := svc.SalesReport(cashier, time.Now().Add(-time.Hour), time.Now()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected cashier blocked from reports, got %v", err)
	}
}

func TestSalesReportAggregates(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := seedProduct(t, svc, "REP-1", 100, 0, 10)

	for i := 0; i < 3; i++ {
		if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
			Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 1}},
			PaymentMethod: domain.PaymentMethodCash,
		}); err != nil {
			t.Fatalf("checkout %d: %v", i, err)
		}
	}

	report, err := svc.SalesReport(ctx, time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if report.SaleCount != 3 {
		t.Fatalf("expected 3 sales, got %d", report.SaleCount)
	}
	if !report.GrandTotal.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected grand total 300, got %s", report.GrandTotal)
	}
}

func TestCategorySlugAndSoftDelete(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	category, err := svc.SaveCategory(ctx, domain.CategorySaveRequest{Name: "Soft Drinks & Juices"})
	if err != nil {
		t.Fatalf("save category: %v", err)
	}
	if category.Slug != "soft-drinks-juices" {
		t.Fatalf("expected derived slug, got %q", category.Slug)
	}

	if _, err := svc.SaveCategory(ctx, domain.CategorySaveRequest{Name: "X"}); err == nil {
		t.Fatalf("expected short name rejection")
	}

	product := seedProduct(t, svc, "CAT-P", 10, 0, 1)
	if err := svc.DeleteCategory(ctx, category.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	categories, err := svc.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(categories) != 0 {
		t.Fatalf("soft-deleted category still listed")
	}
	// Products keep their dangling reference, no cascade.
	if _, err := svc.GetProduct(ctx, product.ID); err != nil {
		t.Fatalf("product must survive category deletion: %v", err)
	}
}

func TestObserveEventsFireAfterCommit(t *testing.T) {
	svc := newTestService()
	events, cancel := svc.Hub().Subscribe(observe.TopicSales)
	defer cancel()

	product := seedProduct(t, svc, "OBS-1", 100, 0, 5)
	if _, err := svc.Checkout(adminCtx(), domain.CheckoutRequest{
		Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 1}},
		PaymentMethod: domain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	select {
	case event := <-events:
		if event.Topic != observe.TopicSales || event.Action != "created" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a sales event after commit")
	}
}
