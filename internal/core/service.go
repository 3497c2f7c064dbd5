package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultPendingTTL is how long a staged sync waits for review before
// expiring, unless the service was built with an explicit TTL.
const defaultPendingTTL = 30 * time.Minute

// PreviewLimit caps the number of changes returned in a stage summary.
var PreviewLimit = 100

// PendingSync is one staged reconciliation awaiting review. Immutable once
// staged; the reviewer's selection arrives separately at apply time.
type PendingSync struct {
	ID          string               `json:"syncId"`
	FileName    string               `json:"fileName"`
	Changes     *ChangeSets          `json:"changes"`
	ItemChanges []CustomerItemChange `json:"itemChanges"`
	Catalog     CatalogChangeSets    `json:"catalog"`
	CreatedAt   time.Time            `json:"createdAt"`
	ExpiresAt   time.Time            `json:"expiresAt"`
}

// StageSummary is what the reviewer sees immediately after an upload.
type StageSummary struct {
	SyncID         string       `json:"syncId"`
	FileName       string       `json:"fileName"`
	Stats          BatchStats   `json:"stats"`
	ParseErrors    []ParseError `json:"parseErrors"`
	Counts         ChangeCounts `json:"counts"`
	ItemChanges    int          `json:"itemChanges"`
	CatalogChanges int          `json:"catalogChanges"`
	Preview        *ChangeSets  `json:"preview"`
	ExpiresAt      time.Time    `json:"expiresAt"`
}

// ApplyResult reports one completed apply.
type ApplyResult struct {
	SyncID   string      `json:"syncId"`
	FileName string      `json:"fileName"`
	Selected int         `json:"selected"`
	Counts   ApplyCounts `json:"counts"`
}

// Service orchestrates the staged two-phase sync: stage (parse + diff),
// human review, then selective apply. Pending syncs live in memory and
// expire after the configured TTL; nothing touches storage until apply.
type Service struct {
	store  Store
	norm   *Normalizer
	policy DiffPolicy
	ttl    time.Duration

	mu      sync.Mutex
	pending map[string]*PendingSync
}

// NewService creates a sync service over the given store and normalizer.
// A non-positive ttl selects the default pending lifetime.
func NewService(store Store, norm *Normalizer, policy DiffPolicy, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &Service{
		store:   store,
		norm:    norm,
		policy:  policy,
		ttl:     ttl,
		pending: make(map[string]*PendingSync),
	}
}

// Stage parses an export, diffs it against the live snapshot and stages the
// resulting change sets for review. Row-level parse errors are reported in
// the summary, not raised; source-level failures abort the stage.
func (s *Service) Stage(ctx context.Context, r io.Reader, fileName string) (*StageSummary, error) {
	started := time.Now()

	batch, err := Parse(ctx, r, fileName, s.norm)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fileName, err)
	}

	snapshot, err := s.store.CustomerSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load customer snapshot: %w", err)
	}

	changes, err := Diff(snapshot, batch.Customers, s.policy)
	if err != nil {
		return nil, fmt.Errorf("diff against snapshot: %w", err)
	}

	relSnapshot, err := s.store.RelationshipSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load relationship snapshot: %w", err)
	}
	itemSnapshot, err := s.store.ItemSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load item snapshot: %w", err)
	}

	itemChanges := DiffRelationships(relSnapshot, batch.CustomerItems)
	catalog := DiffCatalog(itemSnapshot, batch.Items)

	// Item groups ride checked by default, except for customers slated for
	// removal: deactivating the customer already retires their rows.
	removing := make(map[int]bool, len(changes.Removals))
	for _, ch := range changes.Removals {
		removing[ch.CustomerNumber] = true
	}
	for i := range itemChanges {
		itemChanges[i].DefaultChecked = !removing[itemChanges[i].CustomerNumber]
	}

	ps := &PendingSync{
		ID:          uuid.NewString(),
		FileName:    fileName,
		Changes:     changes,
		ItemChanges: itemChanges,
		Catalog:     catalog,
		CreatedAt:   started,
		ExpiresAt:   started.Add(s.ttl),
	}

	s.mu.Lock()
	s.pending[ps.ID] = ps
	s.mu.Unlock()

	slog.Info("sync staged",
		"sync_id", ps.ID,
		"file", fileName,
		"rows", batch.Stats.TotalRows,
		"customers", batch.Stats.UniqueCustomers,
		"parse_errors", batch.Stats.Errors,
		"additions", len(changes.Additions),
		"removals", len(changes.Removals),
		"updates", len(changes.Updates),
		"item_changes", len(itemChanges),
		"catalog_changes", catalog.Total(),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return &StageSummary{
		SyncID:         ps.ID,
		FileName:       fileName,
		Stats:          batch.Stats,
		ParseErrors:    batch.Errors,
		Counts:         changes.Counts(),
		ItemChanges:    len(itemChanges),
		CatalogChanges: catalog.Total(),
		Preview:        previewOf(changes, PreviewLimit),
		ExpiresAt:      ps.ExpiresAt,
	}, nil
}

// Pending returns a staged sync for review.
func (s *Service) Pending(id string) (*PendingSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.pending[id]
	if !ok {
		return nil, ErrPendingNotFound
	}
	if time.Now().After(ps.ExpiresAt) {
		delete(s.pending, id)
		return nil, &PendingExpiredError{SyncID: id, ExpiredAt: ps.ExpiresAt}
	}
	return ps, nil
}

// Discard drops a staged sync without applying anything.
func (s *Service) Discard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; !ok {
		return ErrPendingNotFound
	}
	delete(s.pending, id)
	return nil
}

// claim removes a staged sync from the pending map and hands it to the
// caller. Exactly one caller wins a given id; everyone else sees
// ErrPendingNotFound, which keeps concurrent applies single-shot.
func (s *Service) claim(id string) (*PendingSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.pending[id]
	if !ok {
		return nil, ErrPendingNotFound
	}
	delete(s.pending, id)
	if time.Now().After(ps.ExpiresAt) {
		return nil, &PendingExpiredError{SyncID: id, ExpiredAt: ps.ExpiresAt}
	}
	return ps, nil
}

// restore puts a claimed sync back so the reviewer can retry after a
// failed apply.
func (s *Service) restore(ps *PendingSync) {
	s.mu.Lock()
	s.pending[ps.ID] = ps
	s.mu.Unlock()
}

// ApplySelected applies the reviewer-selected subset of a staged sync in
// one storage transaction, records the run and drops the pending entry.
// The pending entry survives a failed apply so the reviewer can retry.
func (s *Service) ApplySelected(ctx context.Context, id string, selection Selection) (*ApplyResult, error) {
	ps, err := s.claim(id)
	if err != nil {
		return nil, err
	}

	ws := ps.Changes.Apply(selection)
	itemGroups := ps.Changes.ApplyItems(ws, ps.ItemChanges, selection)
	selected := len(ws.ToInsert) + len(ws.ToDelete) + len(ws.ToUpdate) + itemGroups

	var counts ApplyCounts
	if !ws.Empty() {
		// Catalog upserts ride along only when there is real work; an
		// empty selection must stay a no-op.
		ws.Items = append(ws.Items, ps.Catalog.ToAdd...)
		ws.Items = append(ws.Items, ps.Catalog.ToUpdate...)

		counts, err = s.store.ApplyWriteSet(ctx, ws)
		if err != nil {
			s.restore(ps)
			return nil, fmt.Errorf("apply write set: %w", err)
		}
	}

	run := SyncRun{
		ID:          ps.ID,
		FileName:    ps.FileName,
		Inserted:    counts.Inserted,
		Updated:     counts.Updated,
		Deactivated: counts.Deactivated,
		Status:      "completed",
		AppliedAt:   time.Now().UTC(),
	}
	if err := s.store.RecordSyncRun(ctx, run); err != nil {
		// The write set is already committed; losing a history row is not
		// worth failing the apply over.
		slog.Warn("record sync run failed", "sync_id", ps.ID, "error", err)
	}

	slog.Info("sync applied",
		"sync_id", ps.ID,
		"file", ps.FileName,
		"selected", selected,
		"inserted", counts.Inserted,
		"updated", counts.Updated,
		"deactivated", counts.Deactivated,
	)

	return &ApplyResult{
		SyncID:   ps.ID,
		FileName: ps.FileName,
		Selected: selected,
		Counts:   counts,
	}, nil
}

// History returns recent sync runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]SyncRun, error) {
	return s.store.RecentSyncRuns(ctx, limit)
}

// PendingCount returns the number of staged syncs awaiting review.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// StartJanitor reaps expired pending syncs until ctx is cancelled.
// Run it once from main in its own goroutine.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.reapExpired(time.Now()); n > 0 {
				slog.Info("expired pending syncs reaped", "count", n)
			}
		}
	}
}

func (s *Service) reapExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, ps := range s.pending {
		if now.After(ps.ExpiresAt) {
			delete(s.pending, id)
			n++
		}
	}
	return n
}

// previewOf returns the change sets truncated to at most limit entries in
// total, additions first, preserving order within each set.
func previewOf(cs *ChangeSets, limit int) *ChangeSets {
	preview := &ChangeSets{}
	remaining := limit

	take := func(changes []Change) []Change {
		if remaining <= 0 {
			return nil
		}
		if len(changes) > remaining {
			changes = changes[:remaining]
		}
		remaining -= len(changes)
		return changes
	}

	preview.Additions = take(cs.Additions)
	preview.Removals = take(cs.Removals)
	preview.Updates = take(cs.Updates)
	return preview
}
