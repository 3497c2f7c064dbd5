package core

// apply.go turns a reviewed diff plus the reviewer's selection map into the
// minimal write set for storage. Unselected changes are dropped entirely;
// they must never reach the sink.

import (
	"sort"
	"strconv"
)

// SelectionKey builds the selection-map key for one change. The format
// ("additions_170449") is shared with the review UI and must not change.
func SelectionKey(t ChangeType, customerNumber int) string {
	return string(t) + "_" + strconv.Itoa(customerNumber)
}

// Key returns the selection-map key for this change.
func (c Change) Key() string {
	return SelectionKey(c.Type, c.CustomerNumber)
}

// Apply computes the write set for the selected subset of changes. A change
// passes only when its key maps to true; absent keys never pass. The three
// output lists are disjoint in customer identity per category because they
// derive from disjoint change sets.
//
// Apply performs no I/O; persistence is the storage layer's concern.
func (c *ChangeSets) Apply(selection Selection) *WriteSet {
	ws := &WriteSet{}

	for _, ch := range c.Additions {
		if !selection[ch.Key()] || ch.NewState == nil {
			continue
		}
		ws.ToInsert = append(ws.ToInsert, *ch.NewState)
	}

	for _, ch := range c.Removals {
		if !selection[ch.Key()] {
			continue
		}
		ws.ToDelete = append(ws.ToDelete, ch.CustomerNumber)
	}

	for _, ch := range c.Updates {
		if !selection[ch.Key()] {
			continue
		}
		ws.ToUpdate = append(ws.ToUpdate, CustomerUpdate{
			CustomerNumber: ch.CustomerNumber,
			Fields:         updateFields(ch),
		})
	}

	return ws
}

// ApplyItems merges the selected item-change groups into the write set and
// returns how many groups went in. Two guards keep the transaction sound:
// a group is skipped when its customer is an unselected addition (the row
// the relationships point at will not exist) and when its customer is an
// unselected removal (the customer stays, so its rows stay too).
func (c *ChangeSets) ApplyItems(ws *WriteSet, changes []CustomerItemChange, selection Selection) int {
	skip := make(map[int]bool)
	for _, ch := range c.Additions {
		if !selection[ch.Key()] {
			skip[ch.CustomerNumber] = true
		}
	}
	for _, ch := range c.Removals {
		if !selection[ch.Key()] {
			skip[ch.CustomerNumber] = true
		}
	}

	applied := 0
	for _, group := range changes {
		if !selection[group.Key()] || skip[group.CustomerNumber] {
			continue
		}
		ws.CustomerItems = append(ws.CustomerItems, group.ToAdd...)
		ws.RelationshipUpdates = append(ws.RelationshipUpdates, group.ToUpdate...)
		ws.RelationshipRemovals = append(ws.RelationshipRemovals, group.ToRemove...)
		applied++
	}
	return applied
}

// updateFields converts the selected field changes to typed column values.
func updateFields(ch Change) map[string]any {
	fields := make(map[string]any, len(ch.Changes))
	for _, fc := range ch.Changes {
		if fc.Field == "route_number" {
			n, err := strconv.Atoi(fc.NewValue)
			if err != nil {
				continue
			}
			fields[fc.Field] = n
			continue
		}
		fields[fc.Field] = fc.NewValue
	}
	return fields
}

// SortedFieldNames returns the update's column names in stable order, used
// by storage to build deterministic SQL.
func (u CustomerUpdate) SortedFieldNames() []string {
	names := make([]string, 0, len(u.Fields))
	for name := range u.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
