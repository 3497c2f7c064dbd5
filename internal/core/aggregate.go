package core

// aggregate.go folds a stream of raw rows into one Batch. The aggregator
// owns its collections exclusively for the duration of a batch; create a
// fresh instance per parse (single-writer, no cross-batch state).

import "fmt"

// Aggregator accumulates customers, items and relationships from rows
// delivered in source order. Row-level failures become ParseError entries;
// Ingest never returns an error and never stops the batch.
type Aggregator struct {
	norm *Normalizer

	customers     map[int]Customer
	customerOrder []int

	items     map[string]Item
	itemOrder []string

	customerItems []CustomerItem
	errors        []ParseError
	totalRows     int
}

// NewAggregator creates an empty Aggregator using the given normalizer.
func NewAggregator(norm *Normalizer) *Aggregator {
	return &Aggregator{
		norm:      norm,
		customers: make(map[int]Customer),
		items:     make(map[string]Item),
	}
}

// Ingest processes one raw row. rowIndex is the 1-based position of the row
// within the data section of the source and is reported in ParseErrors.
//
// Semantics, in order:
//   - unparseable customer number rejects the whole row (recorded, not raised)
//   - first row for a customer number defines the customer (first wins)
//   - a non-empty item number with a positive quantity appends exactly one
//     relationship and upserts the catalog entry (last write wins)
func (a *Aggregator) Ingest(row RawRow, rowIndex int) {
	a.totalRows++

	customerNumber, ok := a.norm.CustomerNumber(row.Field(colCustomerNumber))
	if !ok {
		a.errors = append(a.errors, ParseError{
			RowIndex: rowIndex,
			Message:  "invalid customer number",
			RawRow:   row,
		})
		return
	}

	if _, seen := a.customers[customerNumber]; !seen {
		a.customers[customerNumber] = a.norm.Customer(row, customerNumber)
		a.customerOrder = append(a.customerOrder, customerNumber)
	}

	rel := a.norm.Relationship(row, customerNumber)
	if rel.ItemNumber == "" || rel.Quantity <= 0 {
		return
	}
	a.customerItems = append(a.customerItems, rel)

	item := a.norm.CatalogItem(row)
	if item.ItemNumber == "" {
		return
	}
	if _, seen := a.items[item.ItemNumber]; !seen {
		a.itemOrder = append(a.itemOrder, item.ItemNumber)
	}
	a.items[item.ItemNumber] = item
}

// Finish returns the batch accumulated so far. It is callable at any point,
// including after an aborted stream, and returns the partial result plus all
// errors collected up to that point. Stats are derived from the collection
// lengths, never from separate counters.
func (a *Aggregator) Finish() *Batch {
	customers := make([]Customer, 0, len(a.customerOrder))
	for _, num := range a.customerOrder {
		customers = append(customers, a.customers[num])
	}

	items := make([]Item, 0, len(a.itemOrder))
	for _, num := range a.itemOrder {
		items = append(items, a.items[num])
	}

	customerItems := make([]CustomerItem, len(a.customerItems))
	copy(customerItems, a.customerItems)

	errors := make([]ParseError, len(a.errors))
	copy(errors, a.errors)

	return &Batch{
		Customers:     customers,
		CustomerItems: customerItems,
		Items:         items,
		Errors:        errors,
		Stats: BatchStats{
			TotalRows:       a.totalRows,
			UniqueCustomers: len(customers),
			CustomerItems:   len(customerItems),
			UniqueItems:     len(items),
			Errors:          len(errors),
		},
	}
}

// Summary returns a one-line description of the aggregator state, used in
// logs after a parse completes.
func (a *Aggregator) Summary() string {
	return fmt.Sprintf("%d rows, %d customers, %d relationships, %d items, %d errors",
		a.totalRows, len(a.customers), len(a.customerItems), len(a.items), len(a.errors))
}
