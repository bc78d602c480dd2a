package domain

import "github.com/shopspring/decimal"

// CartLine holds a snapshot of the product taken when the line was first
// added. Later product price changes never affect an existing line.
type CartLine struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
	UnitType  string
	Qty       int
}

func (l CartLine) TotalAmount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
}

func (l CartLine) TaxAmount() decimal.Decimal {
	return l.TotalAmount().Mul(l.TaxRate).Div(decimal.NewFromInt(100))
}

// Cart is the Building-state line set. It is a pure value type with no
// I/O; totals recompute from snapshots on every read.
type Cart struct {
	lines []CartLine
}

func NewCart() *Cart {
	return &Cart{}
}

// AddLine increments the quantity when the product is already in the
// cart, keeping the original price snapshot, otherwise starts a new line
// at qty 1.
func (c *Cart) AddLine(p Product) {
	for i := range c.lines {
		if c.lines[i].ProductID == p.ID {
			c.lines[i].Qty++
			return
		}
	}
	c.lines = append(c.lines, CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		TaxRate:   p.TaxRate,
		UnitType:  p.DefaultUnit,
		Qty:       1,
	})
}

// UpdateLine sets the quantity for an existing line. Quantities below 1
// are ignored, the line is kept unchanged rather than removed.
func (c *Cart) UpdateLine(productID string, qty int) {
	if qty < 1 {
		return
	}
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines[i].Qty = qty
			return
		}
	}
}

func (c *Cart) RemoveLine(productID string) {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Len() int { return len(c.lines) }

func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Line(productID string) (CartLine, bool) {
	for _, l := range c.lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

type CartTotals struct {
	SubTotal   decimal.Decimal
	TotalVAT   decimal.Decimal
	Discount   decimal.Decimal
	GrandTotal decimal.Decimal
	BalanceDue decimal.Decimal
}

// Totals computes the running totals for the current line set. GrandTotal
// never goes below zero; BalanceDue is only tracked for credit sales.
func (c *Cart) Totals(discount decimal.Decimal, isCredit bool, amountPaid decimal.Decimal) CartTotals {
	t := CartTotals{
		SubTotal: decimal.Zero,
		TotalVAT: decimal.Zero,
		Discount: discount,
	}
	for _, l := range c.lines {
		t.SubTotal = t.SubTotal.Add(l.TotalAmount())
		t.TotalVAT = t.TotalVAT.Add(l.TaxAmount())
	}
	t.GrandTotal = t.SubTotal.Add(t.TotalVAT).Sub(discount)
	if t.GrandTotal.IsNegative() {
		t.GrandTotal = decimal.Zero
	}
	if isCredit {
		t.BalanceDue = t.GrandTotal.Sub(amountPaid)
	} else {
		t.BalanceDue = decimal.Zero
	}
	return t
}

// CheckoutLines converts the cart into the wire shape Checkout accepts.
func (c *Cart) CheckoutLines() []CheckoutLine {
	out := make([]CheckoutLine, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, CheckoutLine{
			ProductID: l.ProductID,
			Qty:       l.Qty,
			Price:     l.UnitPrice,
			UnitType:  l.UnitType,
			TaxAmount: l.TaxAmount(),
		})
	}
	return out
}
