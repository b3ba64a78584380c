package revenue

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestReconcileBoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("0 <= net <= gross and 0 <= profit <= net", prop.ForAll(
		func(subtotal, discounts, refunded, price, unitCost float64, qty, returned int, withSubtotal bool) bool {
			order := baseOrder()
			if withSubtotal {
				order.Subtotal = Money(subtotal)
			}
			order.Discounts = Money(discounts)
			if refunded > 150 {
				order.RefundedNet = Money(refunded)
			}
			l := line(1, 11, qty, price)
			l.RefundedQuantity = returned
			res, err := NewReconciler().Reconcile(order, []LineItem{l, line(2, 12, 1, price/2)}, CostMap{11: unitCost})
			if err != nil {
				return false
			}
			return res.NetEx >= 0 &&
				res.NetEx <= res.GrossEx &&
				res.Profit >= 0 &&
				res.Profit <= res.NetEx
		},
		gen.Float64Range(-50, 500),
		gen.Float64Range(-10, 200),
		gen.Float64Range(0, 300),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 80),
		gen.IntRange(0, 10),
		gen.IntRange(0, 12),
		gen.Bool(),
	))

	properties.Property("reconciliation is deterministic", prop.ForAll(
		func(subtotal, discounts, price float64, qty int) bool {
			order := baseOrder()
			order.Subtotal = Money(subtotal)
			order.Discounts = Money(discounts)
			lines := []LineItem{line(1, 11, qty, price)}
			a, errA := NewReconciler().Reconcile(order, lines, CostMap{11: price / 3})
			b, errB := NewReconciler().Reconcile(order, lines, CostMap{11: price / 3})
			return errA == nil && errB == nil && a == b
		},
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 250),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
