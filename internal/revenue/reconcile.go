package revenue

import "fmt"

// DefaultTolerance is the absolute difference under which a recorded subtotal and
// the line-item sum are considered to agree.
const DefaultTolerance = 0.02

// Reconciler derives canonical net/gross revenue, cost and profit for single orders.
// The zero value uses DefaultTolerance.
type Reconciler struct {
	Tolerance float64
}

// NewReconciler returns a Reconciler with the default tolerance.
func NewReconciler() Reconciler {
	return Reconciler{Tolerance: DefaultTolerance}
}

// Reconcile computes the figures of one order from its current field values. Missing
// fields fall back as documented on each step; only structurally broken records fail,
// with an error wrapping ErrMalformedOrder.
func (r Reconciler) Reconcile(order Order, lines []LineItem, costs CostMap) (Result, error) {
	if err := validate(order, lines); err != nil {
		return Result{}, err
	}
	tolerance := r.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	lineSum := LineSum(lines)
	subtotal, hasSubtotal := firstPresent(order.CurrentSubtotal, order.Subtotal)
	discounts, _ := firstPresent(order.CurrentDiscounts, order.Discounts)
	discounts = floor0(discounts)

	var net, gross float64
	switch {
	case hasSubtotal && (len(lines) == 0 || withinTolerance(subtotal, lineSum, tolerance)):
		net = floor0(subtotal)
		gross = net + discounts
	default:
		gross = lineSum
		net = floor0(gross - discounts)
	}
	used := discounts

	if refunded := refundedAmount(order); refunded > 0 {
		net = floor0(net - refunded)
		gross = floor0(gross - refunded)
	} else if hasReturnedUnits(lines) {
		kept := keptSum(lines)
		ratio := 0.0
		if lineSum > 0 {
			ratio = clamp01(kept / lineSum)
		}
		used = discounts * ratio
		gross = kept
		net = floor0(kept - used)
	}

	cost := 0.0
	for _, line := range lines {
		unit, ok := costs[line.VariantID]
		if !ok || !finite(unit) || unit < 0 {
			continue
		}
		cost += unit * float64(KeptQuantity(line))
	}

	res := Result{
		NetEx:         round2(floor0(net)),
		GrossEx:       round2(floor0(gross)),
		DiscountsUsed: round2(floor0(used)),
		Cost:          round2(cost),
	}
	res.Profit = round2(floor0(net - cost))
	if res.Profit > res.NetEx {
		res.Profit = res.NetEx
	}
	return res, nil
}

// LineValue is the recorded line total, or unit price times ordered quantity when the
// total is absent.
func LineValue(line LineItem) float64 {
	if line.LineTotal != nil {
		return *line.LineTotal
	}
	return line.UnitPrice * float64(line.Quantity)
}

// LineSum is the gross derived purely from line items, floored at zero.
func LineSum(lines []LineItem) float64 {
	sum := 0.0
	for _, line := range lines {
		sum += LineValue(line)
	}
	return floor0(sum)
}

// KeptQuantity is the ordered quantity minus refunded or exchanged units.
func KeptQuantity(line LineItem) int {
	kept := line.Quantity - line.RefundedQuantity
	if kept < 0 {
		return 0
	}
	return kept
}

// EffectiveUnitPrice prefers the per-unit price implied by the line total.
func EffectiveUnitPrice(line LineItem) float64 {
	if line.LineTotal != nil && line.Quantity > 0 {
		return *line.LineTotal / float64(line.Quantity)
	}
	return line.UnitPrice
}

// KeptValue is the value of the units the customer kept.
func KeptValue(line LineItem) float64 {
	return floor0(EffectiveUnitPrice(line) * float64(KeptQuantity(line)))
}

func keptSum(lines []LineItem) float64 {
	sum := 0.0
	for _, line := range lines {
		sum += KeptValue(line)
	}
	return sum
}

func hasReturnedUnits(lines []LineItem) bool {
	for _, line := range lines {
		if line.RefundedQuantity > 0 {
			return true
		}
	}
	return false
}

// refundedAmount prefers the aggregated refund figure and falls back to the sum of the
// detailed records.
func refundedAmount(order Order) float64 {
	if order.RefundedNet != nil && *order.RefundedNet > 0 {
		return *order.RefundedNet
	}
	if len(order.Refunds) == 0 {
		return 0
	}
	sum := 0.0
	for _, refund := range order.Refunds {
		sum += refund.AmountNet
	}
	return floor0(sum)
}

func validate(order Order, lines []LineItem) error {
	for _, v := range []*float64{
		order.Subtotal, order.Discounts, order.Taxes, order.RefundedNet, order.RefundedTax,
		order.CurrentSubtotal, order.CurrentDiscounts, order.CurrentTaxes,
	} {
		if !finitePtr(v) {
			return fmt.Errorf("%w: order %d has a non-finite amount", ErrMalformedOrder, order.ID)
		}
	}
	for _, refund := range order.Refunds {
		if !finite(refund.AmountNet) || !finite(refund.AmountTax) {
			return fmt.Errorf("%w: order %d refund %d has a non-finite amount", ErrMalformedOrder, order.ID, refund.ID)
		}
	}
	for _, line := range lines {
		if line.OrderID != 0 && line.OrderID != order.ID {
			return fmt.Errorf("%w: line %d belongs to order %d, not %d", ErrMalformedOrder, line.ID, line.OrderID, order.ID)
		}
		if line.Quantity < 0 || line.RefundedQuantity < 0 {
			return fmt.Errorf("%w: line %d has a negative quantity", ErrMalformedOrder, line.ID)
		}
		if !finite(line.UnitPrice) || !finitePtr(line.LineTotal) {
			return fmt.Errorf("%w: line %d has a non-finite price", ErrMalformedOrder, line.ID)
		}
	}
	return nil
}
