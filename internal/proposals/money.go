package proposals

import "github.com/vintaratours/proposals-backend/pkg/models"

// itemInput is the wire shape of a service line item.
type itemInput struct {
	Description string  `json:"description" validate:"required,max=500"`
	Price       float64 `json:"price"`
}

// computeSubtotal sums line-item prices. Missing or negative prices count
// as zero, matching what the store promises callers.
func computeSubtotal(items []itemInput) float64 {
	var sum float64
	for _, it := range items {
		if it.Price > 0 {
			sum += it.Price
		}
	}
	return sum
}

// discountSpec is the resolved, tagged form of a discount: exactly one of
// percentage/fixed, decided once at the boundary.
type discountSpec struct {
	Type       models.DiscountType
	Percentage float64
	Amount     float64
}

// resolveDiscount turns the loose percentage/amount pair from a request into
// a discountSpec against the given subtotal. A caller-supplied fixed amount
// wins over a percentage; the amount is clamped to [0, subtotal]; the other
// leg is derived so both fields stay mutually consistent on the row.
func resolveDiscount(subtotal float64, percentage, amount *float64) discountSpec {
	switch {
	case amount != nil:
		amt := *amount
		if amt < 0 {
			amt = 0
		}
		if amt > subtotal {
			amt = subtotal
		}
		var pct float64
		if subtotal > 0 {
			pct = amt / subtotal * 100
		}
		return discountSpec{Type: models.DiscountFixed, Percentage: pct, Amount: amt}

	case percentage != nil:
		pct := *percentage
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		return discountSpec{Type: models.DiscountPercentage, Percentage: pct, Amount: subtotal * pct / 100}

	default:
		return discountSpec{Type: models.DiscountNone}
	}
}

// inheritedDiscount rebuilds the discount of an existing proposal as request
// pointers, so a counter with no overrides re-resolves the original's
// discount against its own subtotal.
func inheritedDiscount(p *models.Proposal) (percentage, amount *float64) {
	switch p.DiscountType {
	case models.DiscountPercentage:
		v := p.DiscountPercentage
		return &v, nil
	case models.DiscountFixed:
		v := p.DiscountAmount
		return nil, &v
	default:
		return nil, nil
	}
}

// applyMoney recomputes subtotal, discount and total from the line items and
// the caller's discount pair, and writes them onto the proposal.
func applyMoney(p *models.Proposal, items []itemInput, percentage, amount *float64) {
	subtotal := computeSubtotal(items)
	d := resolveDiscount(subtotal, percentage, amount)
	p.Subtotal = subtotal
	p.DiscountType = d.Type
	p.DiscountPercentage = d.Percentage
	p.DiscountAmount = d.Amount
	p.Total = subtotal - d.Amount
}

// itemRows converts wire items to rows, preserving order via Position and
// clamping negative prices to zero.
func itemRows(items []itemInput) []models.ProposalItem {
	rows := make([]models.ProposalItem, 0, len(items))
	for i, it := range items {
		price := it.Price
		if price < 0 {
			price = 0
		}
		rows = append(rows, models.ProposalItem{
			Description: it.Description,
			Price:       price,
			Position:    i,
		})
	}
	return rows
}

// itemInputs converts stored rows back to wire items, for counters that
// inherit the original's line items.
func itemInputs(rows []models.ProposalItem) []itemInput {
	items := make([]itemInput, 0, len(rows))
	for _, r := range rows {
		items = append(items, itemInput{Description: r.Description, Price: r.Price})
	}
	return items
}
