// Package storage persists customers, catalog items and sync history in
// PostgreSQL. It is the only package that executes SQL; the core hands it
// immutable write sets and never sees a connection.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/route33/routesync/internal/core"
)

// Store implements core.Store over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tables the store needs if they do not exist.
// Safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			customer_number   INTEGER PRIMARY KEY,
			account_name      TEXT NOT NULL DEFAULT '',
			address           TEXT NOT NULL DEFAULT '',
			city              TEXT NOT NULL DEFAULT '',
			state             TEXT NOT NULL DEFAULT '',
			zip_code          TEXT,
			route_number      INTEGER NOT NULL,
			service_frequency TEXT NOT NULL DEFAULT '',
			service_days      TEXT NOT NULL DEFAULT '',
			is_active         BOOLEAN NOT NULL DEFAULT TRUE,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS item_catalog (
			item_number     TEXT PRIMARY KEY,
			sku             TEXT,
			description     TEXT NOT NULL DEFAULT '',
			item_type       TEXT NOT NULL DEFAULT 'rental',
			category_id     INTEGER NOT NULL,
			unit_of_measure TEXT NOT NULL DEFAULT 'EA',
			case_quantity   INTEGER NOT NULL DEFAULT 1,
			is_active       BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS customer_items (
			id              BIGSERIAL PRIMARY KEY,
			customer_number INTEGER NOT NULL REFERENCES customers(customer_number),
			item_number     TEXT NOT NULL,
			quantity        INTEGER NOT NULL,
			item_type       TEXT NOT NULL DEFAULT 'rental',
			frequency       TEXT,
			notes           TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id          UUID PRIMARY KEY,
			file_name   TEXT NOT NULL,
			inserted    BIGINT NOT NULL DEFAULT 0,
			updated     BIGINT NOT NULL DEFAULT 0,
			deactivated BIGINT NOT NULL DEFAULT 0,
			status      TEXT NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CustomerSnapshot returns all active customers keyed uniquely by customer
// number, ordered for deterministic diffing.
func (s *Store) CustomerSnapshot(ctx context.Context) ([]core.Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT customer_number, account_name, address, city, state,
		       COALESCE(zip_code, ''), route_number, service_frequency,
		       service_days, is_active, created_at, updated_at
		FROM customers
		WHERE is_active = TRUE
		ORDER BY customer_number`)
	if err != nil {
		return nil, fmt.Errorf("query customer snapshot: %w", err)
	}
	defer rows.Close()

	var customers []core.Customer
	for rows.Next() {
		var c core.Customer
		if err := rows.Scan(
			&c.CustomerNumber, &c.AccountName, &c.Address, &c.City, &c.State,
			&c.ZipCode, &c.RouteNumber, &c.ServiceFrequency,
			&c.ServiceDays, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read customer snapshot: %w", err)
	}

	return customers, nil
}

// RelationshipSnapshot returns all persisted customer-item rows, ordered
// for deterministic diffing.
func (s *Store) RelationshipSnapshot(ctx context.Context) ([]core.CustomerItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT customer_number, item_number, quantity, item_type,
		       COALESCE(frequency, ''), COALESCE(notes, '')
		FROM customer_items
		ORDER BY customer_number, item_number`)
	if err != nil {
		return nil, fmt.Errorf("query relationship snapshot: %w", err)
	}
	defer rows.Close()

	var rels []core.CustomerItem
	for rows.Next() {
		var rel core.CustomerItem
		if err := rows.Scan(
			&rel.CustomerNumber, &rel.ItemNumber, &rel.Quantity,
			&rel.ItemType, &rel.Frequency, &rel.Notes,
		); err != nil {
			return nil, fmt.Errorf("scan customer item: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read relationship snapshot: %w", err)
	}

	return rels, nil
}

// ItemSnapshot returns all persisted catalog entries, ordered by item
// number.
func (s *Store) ItemSnapshot(ctx context.Context) ([]core.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT item_number, COALESCE(sku, ''), description, item_type,
		       category_id, unit_of_measure, case_quantity, is_active
		FROM item_catalog
		ORDER BY item_number`)
	if err != nil {
		return nil, fmt.Errorf("query item snapshot: %w", err)
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		var item core.Item
		if err := rows.Scan(
			&item.ItemNumber, &item.SKU, &item.Description, &item.ItemType,
			&item.CategoryID, &item.UnitOfMeasure, &item.CaseQuantity, &item.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read item snapshot: %w", err)
	}

	return items, nil
}

// ApplyWriteSet applies a reviewed write set in a single transaction:
// inserts for additions (with their catalog entries and relationships),
// column updates for selected field changes, and soft deletes for removals.
// All-or-nothing: any failure rolls the whole set back.
func (s *Store) ApplyWriteSet(ctx context.Context, ws *core.WriteSet) (core.ApplyCounts, error) {
	var counts core.ApplyCounts

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return counts, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, item := range ws.Items {
		if err := upsertItem(ctx, tx, item); err != nil {
			return core.ApplyCounts{}, err
		}
	}

	for _, c := range ws.ToInsert {
		if err := insertCustomer(ctx, tx, c); err != nil {
			return core.ApplyCounts{}, err
		}
		counts.Inserted++
	}

	for _, rel := range ws.CustomerItems {
		if err := insertCustomerItem(ctx, tx, rel); err != nil {
			return core.ApplyCounts{}, err
		}
	}

	for _, rel := range ws.RelationshipUpdates {
		if err := updateRelationship(ctx, tx, rel); err != nil {
			return core.ApplyCounts{}, err
		}
	}

	for _, rel := range ws.RelationshipRemovals {
		if err := deleteRelationship(ctx, tx, rel); err != nil {
			return core.ApplyCounts{}, err
		}
	}

	for _, u := range ws.ToUpdate {
		n, err := updateCustomer(ctx, tx, u)
		if err != nil {
			return core.ApplyCounts{}, err
		}
		counts.Updated += n
	}

	for _, num := range ws.ToDelete {
		n, err := deactivateCustomer(ctx, tx, num)
		if err != nil {
			return core.ApplyCounts{}, err
		}
		counts.Deactivated += n
	}

	if err := tx.Commit(ctx); err != nil {
		return core.ApplyCounts{}, fmt.Errorf("commit write set: %w", err)
	}

	return counts, nil
}

// insertCustomer upserts on customer_number. A soft-deleted customer
// returning in a later export is diffed as an addition; the conflict arm
// reactivates the existing row instead of aborting the transaction.
func insertCustomer(ctx context.Context, tx core.DBTX, c core.Customer) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO customers (
			customer_number, account_name, address, city, state, zip_code,
			route_number, service_frequency, service_days, is_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12)
		ON CONFLICT (customer_number) DO UPDATE SET
			account_name      = EXCLUDED.account_name,
			address           = EXCLUDED.address,
			city              = EXCLUDED.city,
			state             = EXCLUDED.state,
			zip_code          = EXCLUDED.zip_code,
			route_number      = EXCLUDED.route_number,
			service_frequency = EXCLUDED.service_frequency,
			service_days      = EXCLUDED.service_days,
			is_active         = TRUE,
			updated_at        = now()`,
		c.CustomerNumber, c.AccountName, c.Address, c.City, c.State, c.ZipCode,
		c.RouteNumber, c.ServiceFrequency, c.ServiceDays, c.IsActive,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer %d: %w", c.CustomerNumber, err)
	}
	return nil
}

func upsertItem(ctx context.Context, tx core.DBTX, item core.Item) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO item_catalog (
			item_number, sku, description, item_type, category_id,
			unit_of_measure, case_quantity, is_active
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
		ON CONFLICT (item_number) DO UPDATE SET
			description     = EXCLUDED.description,
			item_type       = EXCLUDED.item_type,
			category_id     = EXCLUDED.category_id,
			unit_of_measure = EXCLUDED.unit_of_measure,
			case_quantity   = EXCLUDED.case_quantity,
			is_active       = EXCLUDED.is_active`,
		item.ItemNumber, item.SKU, item.Description, item.ItemType, item.CategoryID,
		item.UnitOfMeasure, item.CaseQuantity, item.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ItemNumber, err)
	}
	return nil
}

func insertCustomerItem(ctx context.Context, tx core.DBTX, rel core.CustomerItem) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO customer_items (
			customer_number, item_number, quantity, item_type, frequency, notes
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`,
		rel.CustomerNumber, rel.ItemNumber, rel.Quantity, rel.ItemType,
		rel.Frequency, rel.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert customer item %d/%s: %w", rel.CustomerNumber, rel.ItemNumber, err)
	}
	return nil
}

func updateRelationship(ctx context.Context, tx core.DBTX, rel core.CustomerItem) error {
	_, err := tx.Exec(ctx, `
		UPDATE customer_items
		SET quantity = $3
		WHERE customer_number = $1 AND item_number = $2`,
		rel.CustomerNumber, rel.ItemNumber, rel.Quantity,
	)
	if err != nil {
		return fmt.Errorf("update customer item %d/%s: %w", rel.CustomerNumber, rel.ItemNumber, err)
	}
	return nil
}

func deleteRelationship(ctx context.Context, tx core.DBTX, rel core.CustomerItem) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM customer_items
		WHERE customer_number = $1 AND item_number = $2`,
		rel.CustomerNumber, rel.ItemNumber,
	)
	if err != nil {
		return fmt.Errorf("delete customer item %d/%s: %w", rel.CustomerNumber, rel.ItemNumber, err)
	}
	return nil
}

// updatableColumns guards against field names reaching SQL identifiers.
var updatableColumns = map[string]bool{
	"account_name":      true,
	"address":           true,
	"city":              true,
	"state":             true,
	"route_number":      true,
	"service_frequency": true,
	"service_days":      true,
}

func updateCustomer(ctx context.Context, tx core.DBTX, u core.CustomerUpdate) (int64, error) {
	names := u.SortedFieldNames()
	if len(names) == 0 {
		return 0, nil
	}

	var set []string
	args := []any{u.CustomerNumber}
	for _, name := range names {
		if !updatableColumns[name] {
			return 0, fmt.Errorf("update customer %d: unknown column %q", u.CustomerNumber, name)
		}
		args = append(args, u.Fields[name])
		set = append(set, fmt.Sprintf("%s = $%d", name, len(args)))
	}
	set = append(set, "updated_at = now()")

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		"UPDATE customers SET %s WHERE customer_number = $1",
		strings.Join(set, ", "),
	), args...)
	if err != nil {
		return 0, fmt.Errorf("update customer %d: %w", u.CustomerNumber, err)
	}
	return tag.RowsAffected(), nil
}

// deactivateCustomer soft-deletes. Disappearance from an export is not
// proof of a real departure, so rows are marked inactive, never dropped.
func deactivateCustomer(ctx context.Context, tx core.DBTX, customerNumber int) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE customers
		SET is_active = FALSE, updated_at = now()
		WHERE customer_number = $1 AND is_active = TRUE`,
		customerNumber,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate customer %d: %w", customerNumber, err)
	}
	return tag.RowsAffected(), nil
}

// RecordSyncRun persists one history entry.
func (s *Store) RecordSyncRun(ctx context.Context, run core.SyncRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_runs (id, file_name, inserted, updated, deactivated, status, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.FileName, run.Inserted, run.Updated, run.Deactivated,
		run.Status, run.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("record sync run %s: %w", run.ID, err)
	}
	return nil
}

// RecentSyncRuns returns history entries, newest first.
func (s *Store) RecentSyncRuns(ctx context.Context, limit int) ([]core.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, file_name, inserted, updated, deactivated, status, applied_at
		FROM sync_runs
		ORDER BY applied_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []core.SyncRun
	for rows.Next() {
		var run core.SyncRun
		var appliedAt time.Time
		if err := rows.Scan(
			&run.ID, &run.FileName, &run.Inserted, &run.Updated,
			&run.Deactivated, &run.Status, &appliedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		run.AppliedAt = appliedAt
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sync runs: %w", err)
	}

	return runs, nil
}
