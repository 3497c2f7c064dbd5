package core

// diff.go compares a freshly parsed customer batch against the persisted
// snapshot and produces the three change sets a reviewer approves from.
// Diffing is a pure function of two finished batches: no I/O, no shared
// mutation, deterministic output for identical inputs.

import (
	"fmt"
	"sort"
	"strconv"
)

// compareFields is the fixed comparison set for update detection, in the
// order field changes are reported.
var compareFields = []string{
	"account_name",
	"address",
	"city",
	"state",
	"route_number",
	"service_frequency",
	"service_days",
}

// DiffPolicy configures risk classification and default selection. The
// exact thresholds are review policy, not law; callers may substitute
// their own.
type DiffPolicy struct {
	// HighRiskFields are update fields whose change marks the whole
	// customer update HIGH risk.
	HighRiskFields map[string]bool

	// CheckAdditions pre-selects additions for apply.
	CheckAdditions bool

	// CheckLowRiskUpdates pre-selects updates that touch no high-risk field.
	CheckLowRiskUpdates bool

	// SuspectAddition, when non-nil, elevates an addition to MEDIUM risk
	// (e.g. a customer arriving on an unmapped route).
	SuspectAddition func(Customer) bool
}

// DefaultDiffPolicy returns the review policy used by the sync workflow:
// additions pre-checked and LOW risk, removals never pre-checked, route and
// frequency changes HIGH risk and left unchecked.
func DefaultDiffPolicy() DiffPolicy {
	return DiffPolicy{
		HighRiskFields: map[string]bool{
			"route_number":      true,
			"service_frequency": true,
		},
		CheckAdditions:      true,
		CheckLowRiskUpdates: true,
	}
}

// BatchIntegrityError reports a duplicate customer number within one batch,
// which violates the aggregator's dedup invariant. It is fatal to the diff:
// silently picking one side would corrupt the comparison.
type BatchIntegrityError struct {
	Side           string // "previous" or "current"
	CustomerNumber int
}

func (e *BatchIntegrityError) Error() string {
	return fmt.Sprintf("duplicate customer_number %d in %s batch", e.CustomerNumber, e.Side)
}

// Diff compares the persisted snapshot (previous) against a freshly parsed
// batch (current) and returns additions, removals and field-level updates.
//
// Each change set is ordered by ascending customer number, so repeated runs
// over identical inputs produce identical output.
func Diff(previous, current []Customer, policy DiffPolicy) (*ChangeSets, error) {
	prevByNumber, err := indexBatch(previous, "previous")
	if err != nil {
		return nil, err
	}
	currByNumber, err := indexBatch(current, "current")
	if err != nil {
		return nil, err
	}

	cs := &ChangeSets{}

	for _, cust := range current {
		prev, exists := prevByNumber[cust.CustomerNumber]
		if !exists {
			cs.Additions = append(cs.Additions, newAddition(cust, policy))
			continue
		}
		if fields := compareCustomers(prev, cust); len(fields) > 0 {
			cs.Updates = append(cs.Updates, newUpdate(cust, fields, policy))
		}
	}

	for _, prev := range previous {
		if _, exists := currByNumber[prev.CustomerNumber]; !exists {
			cs.Removals = append(cs.Removals, newRemoval(prev))
		}
	}

	sortChanges(cs.Additions)
	sortChanges(cs.Removals)
	sortChanges(cs.Updates)

	return cs, nil
}

// indexBatch keys customers by number, failing on duplicates.
func indexBatch(customers []Customer, side string) (map[int]Customer, error) {
	byNumber := make(map[int]Customer, len(customers))
	for _, c := range customers {
		if _, dup := byNumber[c.CustomerNumber]; dup {
			return nil, &BatchIntegrityError{Side: side, CustomerNumber: c.CustomerNumber}
		}
		byNumber[c.CustomerNumber] = c
	}
	return byNumber, nil
}

// compareCustomers reports field-level differences over the fixed
// comparison set. Values compare as their canonical string forms, matching
// the loose string/number inequality of the upstream system.
func compareCustomers(prev, curr Customer) []FieldChange {
	var fields []FieldChange
	for _, f := range compareFields {
		oldVal := fieldValue(prev, f)
		newVal := fieldValue(curr, f)
		if oldVal != newVal {
			fields = append(fields, FieldChange{Field: f, OldValue: oldVal, NewValue: newVal})
		}
	}
	return fields
}

// fieldValue returns the canonical string form of a comparison field.
func fieldValue(c Customer, field string) string {
	switch field {
	case "account_name":
		return c.AccountName
	case "address":
		return c.Address
	case "city":
		return c.City
	case "state":
		return c.State
	case "route_number":
		return strconv.Itoa(c.RouteNumber)
	case "service_frequency":
		return c.ServiceFrequency
	case "service_days":
		return c.ServiceDays
	default:
		return ""
	}
}

func newAddition(cust Customer, policy DiffPolicy) Change {
	risk := RiskLow
	if policy.SuspectAddition != nil && policy.SuspectAddition(cust) {
		risk = RiskMedium
	}

	c := cust
	return Change{
		Type:           ChangeAddition,
		CustomerNumber: cust.CustomerNumber,
		AccountName:    cust.AccountName,
		Address:        cust.Address,
		City:           cust.City,
		RouteNumber:    cust.RouteNumber,
		RiskLevel:      risk,
		DefaultChecked: policy.CheckAdditions,
		NewState:       &c,
	}
}

// newRemoval builds a removal change. Removals are never pre-checked:
// disappearance from an export is not proof of a real departure, so a
// reviewer must opt in explicitly.
func newRemoval(prev Customer) Change {
	return Change{
		Type:           ChangeRemoval,
		CustomerNumber: prev.CustomerNumber,
		AccountName:    prev.AccountName,
		Address:        prev.Address,
		City:           prev.City,
		RouteNumber:    prev.RouteNumber,
		RiskLevel:      RiskMedium,
		DefaultChecked: false,
	}
}

func newUpdate(cust Customer, fields []FieldChange, policy DiffPolicy) Change {
	risk := RiskLow
	for _, fc := range fields {
		if policy.HighRiskFields[fc.Field] {
			risk = RiskHigh
			break
		}
	}

	c := cust
	return Change{
		Type:           ChangeUpdate,
		CustomerNumber: cust.CustomerNumber,
		AccountName:    cust.AccountName,
		Address:        cust.Address,
		City:           cust.City,
		RouteNumber:    cust.RouteNumber,
		RiskLevel:      risk,
		DefaultChecked: risk == RiskLow && policy.CheckLowRiskUpdates,
		Changes:        fields,
		NewState:       &c,
	}
}

func sortChanges(changes []Change) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].CustomerNumber < changes[j].CustomerNumber
	})
}

// relationshipKey identifies one customer-item row for diffing.
func relationshipKey(customerNumber int, itemNumber string) string {
	return strconv.Itoa(customerNumber) + "_" + itemNumber
}

// DiffRelationships compares persisted customer-item rows against a fresh
// batch and groups the differences per customer: rows to create, quantity
// corrections, and rows no longer present in the export. Only quantity
// counts as a change; item type and notes are not compared.
//
// Groups come back in ascending customer-number order. DefaultChecked is
// left false; the staging layer decides it with the customer change sets
// in view.
func DiffRelationships(previous, current []CustomerItem) []CustomerItemChange {
	prevByKey := make(map[string]CustomerItem, len(previous))
	for _, rel := range previous {
		prevByKey[relationshipKey(rel.CustomerNumber, rel.ItemNumber)] = rel
	}

	groups := make(map[int]*CustomerItemChange)
	var order []int
	group := func(customerNumber int) *CustomerItemChange {
		g, ok := groups[customerNumber]
		if !ok {
			g = &CustomerItemChange{CustomerNumber: customerNumber}
			groups[customerNumber] = g
			order = append(order, customerNumber)
		}
		return g
	}

	for _, rel := range current {
		key := relationshipKey(rel.CustomerNumber, rel.ItemNumber)
		prev, exists := prevByKey[key]
		if !exists {
			g := group(rel.CustomerNumber)
			g.ToAdd = append(g.ToAdd, rel)
			continue
		}
		if rel.Quantity != prev.Quantity {
			g := group(rel.CustomerNumber)
			g.ToUpdate = append(g.ToUpdate, rel)
		}
		delete(prevByKey, key)
	}

	// Whatever the export no longer carries comes out.
	var removed []CustomerItem
	for _, rel := range prevByKey {
		removed = append(removed, rel)
	}
	sort.Slice(removed, func(i, j int) bool {
		if removed[i].CustomerNumber != removed[j].CustomerNumber {
			return removed[i].CustomerNumber < removed[j].CustomerNumber
		}
		return removed[i].ItemNumber < removed[j].ItemNumber
	})
	for _, rel := range removed {
		g := group(rel.CustomerNumber)
		g.ToRemove = append(g.ToRemove, rel)
	}

	sort.Ints(order)
	changes := make([]CustomerItemChange, 0, len(order))
	for _, num := range order {
		changes = append(changes, *groups[num])
	}
	return changes
}

// DiffCatalog compares persisted catalog entries against a fresh batch.
// Only the description counts as a change; the catalog keeps entries the
// export no longer mentions.
func DiffCatalog(previous, current []Item) CatalogChangeSets {
	prevByNumber := make(map[string]Item, len(previous))
	for _, item := range previous {
		prevByNumber[item.ItemNumber] = item
	}

	var cs CatalogChangeSets
	for _, item := range current {
		prev, exists := prevByNumber[item.ItemNumber]
		if !exists {
			cs.ToAdd = append(cs.ToAdd, item)
			continue
		}
		if item.Description != prev.Description {
			cs.ToUpdate = append(cs.ToUpdate, item)
		}
	}
	return cs
}

// GroupByRoute arranges a change list by route number for presentation.
// Grouping is a view concern layered on the flat lists, not part of the
// diff contract. Route keys iterate in ascending numeric order via the
// returned slice.
func GroupByRoute(changes []Change) (routes []int, byRoute map[int][]Change) {
	byRoute = make(map[int][]Change)
	for _, c := range changes {
		if _, seen := byRoute[c.RouteNumber]; !seen {
			routes = append(routes, c.RouteNumber)
		}
		byRoute[c.RouteNumber] = append(byRoute[c.RouteNumber], c)
	}
	sort.Ints(routes)
	return routes, byRoute
}
