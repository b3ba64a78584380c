package attribution

import (
	"sort"

	"golang.org/x/text/cases"

	"github.com/salesops/salesops/internal/revenue"
)

type aggregator struct {
	in      Input
	reps    *RepResolver
	fold    cases.Caser
	summary Summary
	repIdx  map[string]*RepSummary
	vendors map[string]*Bucket
	periods map[string]*Bucket
	netByID map[int64]float64
}

// Aggregate folds reconciled orders and cohort customers into company, rep, vendor and
// monthly buckets. Rep attribution is resolved once per order from its customer; vendor
// attribution splits each order across its line items. The rep buckets, Unassigned
// included, always add up to the company bucket.
func Aggregate(in Input) Summary {
	a := &aggregator{
		in:      in,
		reps:    NewRepResolver(in.Roster),
		fold:    cases.Fold(),
		repIdx:  make(map[string]*RepSummary),
		vendors: make(map[string]*Bucket),
		periods: make(map[string]*Bucket),
		netByID: make(map[int64]float64, len(in.Orders)),
	}
	a.summary.Company = newBucket(CompanyKey, "Company")
	a.summary.VendorPeriods = make(map[string]map[string]float64)
	for _, month := range in.Range.Months() {
		b := newBucket(month, month)
		a.periods[month] = &b
	}

	for _, order := range in.Orders {
		a.addOrder(order)
	}
	for _, customer := range in.Cohort {
		a.addCohortCustomer(customer)
	}
	return a.finish()
}

func (a *aggregator) customerRep(customerID int64) RepRef {
	customer, ok := a.in.Customers[customerID]
	if !ok {
		customer = Customer{ID: customerID}
	}
	return a.reps.Resolve(customer)
}

func (a *aggregator) addOrder(order Reconciled) {
	if !a.in.Range.Contains(order.Order.ProcessedAt) {
		a.summary.Excluded++
		return
	}
	rep := a.customerRep(order.Order.CustomerID)
	if a.in.RepKey != "" && rep.Key != a.in.RepKey {
		a.summary.Excluded++
		return
	}
	net, profit := order.Result.NetEx, order.Result.Profit
	customerID := order.Order.CustomerID
	a.netByID[order.Order.ID] = net

	a.summary.Company.add(net, profit, customerID)
	a.rep(rep).add(net, profit, customerID)

	month := a.in.Range.MonthKey(order.Order.ProcessedAt)
	period, ok := a.periods[month]
	if !ok {
		b := newBucket(month, month)
		period = &b
		a.periods[month] = period
	}
	period.add(net, profit, customerID)

	for _, share := range a.vendorShares(order) {
		vendor := a.vendor(share.ref)
		vendor.add(share.net, share.profit, customerID)
		byMonth, ok := a.summary.VendorPeriods[share.ref.Key]
		if !ok {
			byMonth = make(map[string]float64)
			a.summary.VendorPeriods[share.ref.Key] = byMonth
		}
		byMonth[month] += share.net
	}
}

type vendorShare struct {
	ref    RepRef
	net    float64
	profit float64
}

// vendorShares splits an order's net and profit across the vendors of its lines in
// proportion to the value kept on each line, or the full line value when nothing was kept.
func (a *aggregator) vendorShares(order Reconciled) []vendorShare {
	lines := order.Lines
	weights := make([]float64, len(lines))
	total := 0.0
	for i, line := range lines {
		weights[i] = revenue.KeptValue(line)
		total += weights[i]
	}
	if total <= 0 {
		total = 0
		for i, line := range lines {
			if v := revenue.LineValue(line); v > 0 {
				weights[i] = v
				total += v
			}
		}
	}
	unassigned := RepRef{Key: UnassignedKey, Label: UnassignedLabel}
	if total <= 0 {
		return []vendorShare{{ref: unassigned, net: order.Result.NetEx, profit: order.Result.Profit}}
	}

	var keys []string
	byKey := make(map[string]*vendorShare)
	for i, line := range lines {
		if weights[i] <= 0 {
			continue
		}
		ref := a.vendorRef(line.Vendor)
		share, ok := byKey[ref.Key]
		if !ok {
			share = &vendorShare{ref: ref}
			byKey[ref.Key] = share
			keys = append(keys, ref.Key)
		}
		ratio := weights[i] / total
		share.net += order.Result.NetEx * ratio
		share.profit += order.Result.Profit * ratio
	}
	shares := make([]vendorShare, 0, len(keys))
	for _, key := range keys {
		shares = append(shares, *byKey[key])
	}
	return shares
}

func (a *aggregator) vendorRef(vendor string) RepRef {
	key := normalizeName(a.fold, vendor)
	if key == "" {
		return RepRef{Key: UnassignedKey, Label: UnassignedLabel}
	}
	return RepRef{Key: key, Label: vendor}
}

func (a *aggregator) addCohortCustomer(customer CohortCustomer) {
	r := a.in.Range
	if !r.Contains(customer.CreatedAt) {
		return
	}
	rep := a.reps.Resolve(customer.Customer)
	if a.in.RepKey != "" && rep.Key != a.in.RepKey {
		return
	}
	cohorts := []*Cohort{&a.summary.Cohort, &a.rep(rep).Cohort}
	for _, c := range cohorts {
		c.NewCustomers++
	}

	first := customer.FirstOrder
	if first == nil || !first.ProcessedAt.Before(r.End()) {
		for _, c := range cohorts {
			c.DropOffs++
		}
		return
	}
	if !r.Contains(first.ProcessedAt) {
		return
	}
	net, ok := a.netByID[first.ID]
	if !ok {
		a.summary.CohortGaps++
	}
	for _, c := range cohorts {
		c.FirstOrders++
		if ok {
			c.pricedFirstOrders++
			c.FirstOrderNetEx += net
		}
	}
}

func (a *aggregator) rep(ref RepRef) *RepSummary {
	if rep, ok := a.repIdx[ref.Key]; ok {
		return rep
	}
	rep := &RepSummary{Bucket: newBucket(ref.Key, ref.Label)}
	a.repIdx[ref.Key] = rep
	return rep
}

func (a *aggregator) vendor(ref RepRef) *Bucket {
	if b, ok := a.vendors[ref.Key]; ok {
		return b
	}
	b := newBucket(ref.Key, ref.Label)
	a.vendors[ref.Key] = &b
	return &b
}

func (a *aggregator) finish() Summary {
	s := a.summary
	s.Company.seal()
	s.Cohort.seal()

	s.Reps = make([]RepSummary, 0, len(a.repIdx))
	for _, rep := range a.repIdx {
		rep.seal()
		rep.Cohort.seal()
		s.Reps = append(s.Reps, *rep)
	}
	sort.Slice(s.Reps, func(i, j int) bool {
		return bucketLess(s.Reps[i].Bucket, s.Reps[j].Bucket)
	})

	s.Vendors = make([]Bucket, 0, len(a.vendors))
	for _, vendor := range a.vendors {
		vendor.seal()
		s.Vendors = append(s.Vendors, *vendor)
	}
	sort.Slice(s.Vendors, func(i, j int) bool {
		return bucketLess(s.Vendors[i], s.Vendors[j])
	})

	s.Periods = make([]Bucket, 0, len(a.periods))
	for _, period := range a.periods {
		period.seal()
		s.Periods = append(s.Periods, *period)
	}
	sort.Slice(s.Periods, func(i, j int) bool { return s.Periods[i].Key < s.Periods[j].Key })
	return s
}

// bucketLess orders by sales descending, then key.
func bucketLess(a, b Bucket) bool {
	if a.SalesEx != b.SalesEx {
		return a.SalesEx > b.SalesEx
	}
	return a.Key < b.Key
}

func newBucket(key, label string) Bucket {
	return Bucket{Key: key, Label: label, customers: make(map[int64]struct{})}
}

// add folds one order (or order share). Orders count, and make their customer active,
// only above countEpsilon so zero-value sample orders are ignored.
func (b *Bucket) add(net, profit float64, customerID int64) {
	b.SalesEx += net
	b.Profit += profit
	if net <= countEpsilon {
		return
	}
	b.OrderCount++
	if customerID > 0 {
		b.customers[customerID] = struct{}{}
	}
}

func (b *Bucket) seal() {
	b.ActiveCustomers = len(b.customers)
}

func (c *Cohort) seal() {
	if c.pricedFirstOrders > 0 {
		c.FirstOrderAOV = c.FirstOrderNetEx / float64(c.pricedFirstOrders)
	}
}
