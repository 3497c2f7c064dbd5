// Package core implements the CSV-to-database reconciliation engine:
// parsing and normalizing customer master exports, deduplicating entities,
// diffing a fresh batch against the live snapshot, and computing the
// selective write set approved by a human reviewer.
//
// This package has no HTTP or UI dependencies.
package core

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// RawRow is one untyped record from a tabular source, keyed by column header.
type RawRow map[string]string

// Field returns the value for a column, matched case-insensitively.
// Returns "" if the column is absent.
func (r RawRow) Field(name string) string {
	if v, ok := r[name]; ok {
		return v
	}
	for k, v := range r {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Customer is one deduplicated customer record extracted from a batch.
// Within a batch the first row for a customer number wins; later rows
// contribute item relationships only.
type Customer struct {
	CustomerNumber   int       `json:"customer_number"`
	AccountName      string    `json:"account_name"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	ZipCode          string    `json:"zip_code,omitempty"` // not present in the export
	RouteNumber      int       `json:"route_number"`
	ServiceFrequency string    `json:"service_frequency"`
	ServiceDays      string    `json:"service_days"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Item is one catalog entry, keyed by item number.
// Unlike Customer, later rows overwrite earlier ones (last-write-wins).
type Item struct {
	ItemNumber    string `json:"item_number"`
	SKU           string `json:"sku,omitempty"`
	Description   string `json:"description"`
	ItemType      string `json:"item_type"`
	CategoryID    int    `json:"category_id"`
	UnitOfMeasure string `json:"unit_of_measure"`
	CaseQuantity  int    `json:"case_quantity"`
	IsActive      bool   `json:"is_active"`
}

// CustomerItem is a customer-to-item relationship. Relationships are NOT
// deduplicated: every qualifying row produces one entry, repeats included.
type CustomerItem struct {
	CustomerNumber int    `json:"customer_number"`
	ItemNumber     string `json:"item_number"`
	Quantity       int    `json:"quantity"`
	ItemType       string `json:"item_type"`
	Frequency      string `json:"frequency,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// ParseError records a row that failed its hard precondition.
// Errors accumulate; they never abort the batch.
type ParseError struct {
	RowIndex int    `json:"row_index"`
	Message  string `json:"message"`
	RawRow   RawRow `json:"raw_row"`
}

// BatchStats summarizes one parse pass. Counts always equal the lengths of
// the corresponding Batch collections.
type BatchStats struct {
	TotalRows       int `json:"totalRows"`
	UniqueCustomers int `json:"uniqueCustomers"`
	CustomerItems   int `json:"customerItems"`
	UniqueItems     int `json:"uniqueItems"`
	Errors          int `json:"errors"`
}

// Batch is the complete output of one parse pass. This shape is the wire
// format between the parsing core and everything downstream; keep it stable.
type Batch struct {
	Customers     []Customer     `json:"customers"`
	CustomerItems []CustomerItem `json:"customerItems"`
	Items         []Item         `json:"items"`
	Errors        []ParseError   `json:"errors"`
	Stats         BatchStats     `json:"stats"`
}

// ChangeType tags a diff entry. The values double as the prefix of
// selection-map keys ("additions_170449"), so they must stay stable.
type ChangeType string

const (
	ChangeAddition ChangeType = "additions"
	ChangeRemoval  ChangeType = "removals"
	ChangeUpdate   ChangeType = "updates"

	// ChangeItems selects the relationship differences of one customer
	// ("items_170449"), independent of the customer-level change sets.
	ChangeItems ChangeType = "items"
)

// RiskLevel guides human review priority for a change.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// FieldChange is one field-level difference within an update.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Change is one entry in a change set.
type Change struct {
	Type           ChangeType    `json:"-"`
	CustomerNumber int           `json:"customer_number"`
	AccountName    string        `json:"account_name"`
	Address        string        `json:"address,omitempty"`
	City           string        `json:"city,omitempty"`
	RouteNumber    int           `json:"route_number"`
	RiskLevel      RiskLevel     `json:"risk_level"`
	DefaultChecked bool          `json:"default_checked"`
	Changes        []FieldChange `json:"changes,omitempty"`

	// NewState is the incoming customer record for additions and updates.
	// Nil for removals. Not part of the review payload.
	NewState *Customer `json:"-"`
}

// ChangeSets holds the three flat change lists produced by Diff,
// each in ascending customer-number order.
type ChangeSets struct {
	Additions []Change `json:"additions"`
	Removals  []Change `json:"removals"`
	Updates   []Change `json:"updates"`
}

// Total returns the combined number of changes.
func (c *ChangeSets) Total() int {
	return len(c.Additions) + len(c.Removals) + len(c.Updates)
}

// ChangeCounts is the per-set tally reported to reviewers.
type ChangeCounts struct {
	Additions int `json:"additions"`
	Removals  int `json:"removals"`
	Updates   int `json:"updates"`
	Total     int `json:"total"`
}

// Counts tallies the change sets.
func (c *ChangeSets) Counts() ChangeCounts {
	return ChangeCounts{
		Additions: len(c.Additions),
		Removals:  len(c.Removals),
		Updates:   len(c.Updates),
		Total:     c.Total(),
	}
}

// CustomerItemChange groups the relationship differences for one customer:
// rows to create, quantity corrections, and rows no longer in the export.
// Selectable as one unit via the "items_{customer_number}" key.
type CustomerItemChange struct {
	CustomerNumber int            `json:"customer_number"`
	ToAdd          []CustomerItem `json:"to_add,omitempty"`
	ToUpdate       []CustomerItem `json:"to_update,omitempty"`
	ToRemove       []CustomerItem `json:"to_remove,omitempty"`
	DefaultChecked bool           `json:"default_checked"`
}

// Key returns the selection-map key for this change group.
func (c CustomerItemChange) Key() string {
	return SelectionKey(ChangeItems, c.CustomerNumber)
}

// Total returns the number of relationship rows this group touches.
func (c CustomerItemChange) Total() int {
	return len(c.ToAdd) + len(c.ToUpdate) + len(c.ToRemove)
}

// CatalogChangeSets holds item catalog differences. The catalog has no
// removal side: items absent from one export stay in the catalog.
type CatalogChangeSets struct {
	ToAdd    []Item `json:"toAdd"`
	ToUpdate []Item `json:"toUpdate"`
}

// Total returns the combined number of catalog changes.
func (c CatalogChangeSets) Total() int {
	return len(c.ToAdd) + len(c.ToUpdate)
}

// Selection is the reviewer-provided map gating which changes are applied.
// Keys are built by SelectionKey; absent keys mean "not selected".
type Selection map[string]bool

// CustomerUpdate is the per-customer field write for one selected update.
type CustomerUpdate struct {
	CustomerNumber int            `json:"customer_number"`
	Fields         map[string]any `json:"fields"`
}

// WriteSet is the minimal set of writes derived from a reviewed diff.
// Unselected changes never appear here.
type WriteSet struct {
	ToInsert []Customer       `json:"toInsert"`
	ToDelete []int            `json:"toDelete"`
	ToUpdate []CustomerUpdate `json:"toUpdate"`

	// Relationship writes for selected item-change groups.
	CustomerItems        []CustomerItem `json:"customerItems,omitempty"`
	RelationshipUpdates  []CustomerItem `json:"relationshipUpdates,omitempty"`
	RelationshipRemovals []CustomerItem `json:"relationshipRemovals,omitempty"`

	// Catalog upserts riding along with an otherwise non-empty apply.
	Items []Item `json:"items,omitempty"`
}

// Empty reports whether the write set contains no work. Catalog entries do
// not count: they only ride along with other writes.
func (w *WriteSet) Empty() bool {
	return len(w.ToInsert) == 0 && len(w.ToDelete) == 0 && len(w.ToUpdate) == 0 &&
		len(w.CustomerItems) == 0 && len(w.RelationshipUpdates) == 0 &&
		len(w.RelationshipRemovals) == 0
}

// ApplyCounts reports what a storage apply actually wrote.
type ApplyCounts struct {
	Inserted    int64 `json:"inserted"`
	Updated     int64 `json:"updated"`
	Deactivated int64 `json:"deactivated"`
}

// SyncRun is one completed apply, recorded for the history view.
type SyncRun struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	Inserted    int64     `json:"inserted"`
	Updated     int64     `json:"updated"`
	Deactivated int64     `json:"deactivated"`
	Status      string    `json:"status"`
	AppliedAt   time.Time `json:"appliedAt"`
}

// Store is the persistence boundary the sync service talks to.
// Implemented by the storage package; the core performs no I/O of its own
// outside this interface.
type Store interface {
	// CustomerSnapshot returns the active customers currently persisted,
	// the "previous" side of a diff.
	CustomerSnapshot(ctx context.Context) ([]Customer, error)

	// RelationshipSnapshot returns all persisted customer-item rows.
	RelationshipSnapshot(ctx context.Context) ([]CustomerItem, error)

	// ItemSnapshot returns all persisted catalog entries.
	ItemSnapshot(ctx context.Context) ([]Item, error)

	// ApplyWriteSet applies a write set in a single transaction.
	ApplyWriteSet(ctx context.Context, ws *WriteSet) (ApplyCounts, error)

	// RecordSyncRun persists one history entry.
	RecordSyncRun(ctx context.Context, run SyncRun) error

	// RecentSyncRuns returns history entries, newest first.
	RecentSyncRuns(ctx context.Context, limit int) ([]SyncRun, error)
}
