package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/observe"
	"dukapos/backend/internal/store"
	"dukapos/backend/internal/xid"
)

// Checkout validates the line set against live stock, then commits the
// sale header, its items, the per-line stock decrements and ledger
// entries as one atomic unit. A failure at any line persists nothing.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.Sale, error) {
	actor, err := s.requirePermission(ctx, domain.PermMakeSales)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:        xid.New("sal"),
		Code:      xid.SaleCode(),
		CashierID: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	payload, err := s.buildSalePayload(ctx, sale, req)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.CreateSale(ctx, *payload)
	if err != nil {
		return nil, wrapStore("commit sale", err)
	}

	s.publish(observe.TopicSales, "created", created.ID)
	s.publish(observe.TopicProducts, "stock-adjusted", created.ID)
	s.invalidateReports(ctx)
	return created, nil
}

// UpdateSale replaces a committed sale's line set in place. The store
// reverses every prior line's stock effect before reapplying the new
// lines, so an unchanged line is stock-neutral.
func (s *Service) UpdateSale(ctx context.Context, saleID string, req domain.CheckoutRequest) (*domain.Sale, error) {
	if _, err := s.requirePermission(ctx, domain.PermMakeSales); err != nil {
		return nil, err
	}
	if saleID == "" {
		return nil, invalid("sale_id", "required")
	}
	existing, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, wrapStore("lookup sale", err)
	}

	sale := domain.Sale{
		ID:        existing.ID,
		Code:      existing.Code,
		CashierID: existing.CashierID,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: time.Now().UTC(),
	}
	payload, err := s.buildSalePayloadForEdit(ctx, sale, req, existing.Items)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateSale(ctx, *payload)
	if err != nil {
		return nil, wrapStore("commit sale edit", err)
	}

	s.publish(observe.TopicSales, "updated", updated.ID)
	s.publish(observe.TopicProducts, "stock-adjusted", updated.ID)
	s.invalidateReports(ctx)
	return updated, nil
}

// RemoveSaleItem is a post-commit repair: it returns the item's units to
// stock, re-totals the sale header and permanently deletes the item, all
// in one atomic unit.
func (s *Service) RemoveSaleItem(ctx context.Context, saleID, itemID string) (*domain.Sale, error) {
	if _, err := s.requirePermission(ctx, domain.PermMakeSales); err != nil {
		return nil, err
	}
	if saleID == "" {
		return nil, invalid("sale_id", "required")
	}
	if itemID == "" {
		return nil, invalid("item_id", "required")
	}
	sale, err := s.repo.RemoveSaleItem(ctx, saleID, itemID, time.Now().UTC())
	if err != nil {
		return nil, wrapStore("remove sale item", err)
	}
	s.publish(observe.TopicSales, "updated", sale.ID)
	s.publish(observe.TopicProducts, "stock-adjusted", sale.ID)
	s.invalidateReports(ctx)
	return sale, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	if id == "" {
		return nil, invalid("id", "required")
	}
	return s.repo.GetSale(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListSales(ctx, limit)
}

func (s *Service) SalesReport(ctx context.Context, from, to time.Time) (*domain.SalesReport, error) {
	if _, err := s.requirePermission(ctx, domain.PermViewReports); err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, invalid("range", "to must be after from")
	}

	key := fmt.Sprintf("%d-%d", from.Unix(), to.Unix())
	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache read failed: %v", err)
	} else if ok {
		return cached, nil
	}

	report, err := s.repo.SalesReport(ctx, from, to)
	if err != nil {
		return nil, wrapStore("sales report", err)
	}
	if err := s.reports.Set(ctx, key, report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed: %v", err)
	}
	return report, nil
}

func (s *Service) validateCheckout(req domain.CheckoutRequest) error {
	if len(req.Lines) == 0 {
		return invalid("lines", "cart is empty")
	}
	if req.Discount.IsNegative() {
		return invalid("discount", "must not be negative")
	}
	if !domain.ValidPaymentMethod(req.PaymentMethod) {
		return invalid("payment_method", "must be cash or mpesa")
	}
	if req.IsCredit {
		if strings.TrimSpace(req.CustomerName) == "" {
			return invalid("customer_name", "required for credit sales")
		}
		if !req.AmountPaid.IsPositive() {
			return invalid("amount_paid", "must be positive for credit sales")
		}
	}
	for _, line := range req.Lines {
		if line.ProductID == "" {
			return invalid("lines", "product_id required")
		}
		if line.Qty < 1 {
			return invalid("lines", "qty must be positive")
		}
	}
	return nil
}

// buildSalePayload runs the Validating phase: each line re-fetches the
// live product and checks stock sufficiency, short-circuiting on the
// first shortage. Prices and tax amounts come from the line snapshots
// when set and fall back to the live product otherwise.
func (s *Service) buildSalePayload(ctx context.Context, sale domain.Sale, req domain.CheckoutRequest) (*store.SalePayload, error) {
	return s.buildPayload(ctx, sale, req, nil)
}

// buildSalePayloadForEdit validates stock as if the prior items were
// already returned, matching the store's reverse-then-reapply commit.
func (s *Service) buildSalePayloadForEdit(ctx context.Context, sale domain.Sale, req domain.CheckoutRequest, prior []domain.SaleItem) (*store.SalePayload, error) {
	returned := make(map[string]int, len(prior))
	for _, item := range prior {
		returned[item.ProductID] += item.Qty
	}
	return s.buildPayload(ctx, sale, req, returned)
}

func (s *Service) buildPayload(ctx context.Context, sale domain.Sale, req domain.CheckoutRequest, returned map[string]int) (*store.SalePayload, error) {
	if err := s.validateCheckout(req); err != nil {
		return nil, err
	}

	subTotal := decimal.Zero
	totalTax := decimal.Zero
	items := make([]domain.SaleItem, 0, len(req.Lines))
	committed := make(map[string]int)

	for _, line := range req.Lines {
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, wrapStore("lookup product", err)
		}
		available := product.BaseQuantity + returned[product.ID] - committed[product.ID]
		if available < line.Qty {
			return nil, &store.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   line.Qty,
				Available:   available,
			}
		}
		committed[product.ID] += line.Qty

		price := line.Price
		if price.IsZero() {
			price = product.Price
		}
		total := price.Mul(decimal.NewFromInt(int64(line.Qty)))
		tax := line.TaxAmount
		if tax.IsZero() {
			tax = total.Mul(product.TaxRate).Div(decimal.NewFromInt(100))
		}
		unitType := line.UnitType
		if unitType == "" {
			unitType = product.DefaultUnit
		}

		subTotal = subTotal.Add(total)
		totalTax = totalTax.Add(tax)
		items = append(items, domain.SaleItem{
			ID:          xid.New("sli"),
			SaleID:      sale.ID,
			ProductID:   product.ID,
			Price:       price,
			Qty:         line.Qty,
			UnitType:    unitType,
			TaxAmount:   tax,
			TotalAmount: total,
			CreatedAt:   sale.UpdatedAt,
		})
	}

	grandTotal := subTotal.Add(totalTax).Sub(req.Discount)
	if grandTotal.IsNegative() {
		grandTotal = decimal.Zero
	}
	sale.SubTotal = subTotal
	sale.TotalTax = totalTax
	sale.Discount = req.Discount
	sale.GrandTotal = grandTotal
	sale.IsCredit = req.IsCredit
	sale.CustomerName = strings.TrimSpace(req.CustomerName)
	sale.PaymentMethod = req.PaymentMethod
	sale.TotalPaid = req.AmountPaid
	if req.IsCredit {
		sale.BalanceDue = grandTotal.Sub(req.AmountPaid)
	} else {
		sale.BalanceDue = decimal.Zero
		if req.AmountPaid.IsZero() {
			sale.TotalPaid = grandTotal
		}
	}
	return &store.SalePayload{Sale: sale, Items: items}, nil
}
