package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

// sqlEventStore holds the queries shared by the MySQL and SQLite adapters.
// Timestamps are stored as unix nanoseconds so both drivers round-trip them
// exactly.
type sqlEventStore struct {
	db *sql.DB
	// isDuplicate reports a unique violation on the event id.
	isDuplicate func(err error) bool
}

func (s *sqlEventStore) insertError(what, id string, err error) error {
	if s.isDuplicate != nil && s.isDuplicate(err) {
		return fmt.Errorf("insert %s %s: %w", what, id, domain.ErrDuplicateEvent)
	}
	return fmt.Errorf("insert %s: %w", what, err)
}

func (s *sqlEventStore) AppendInventoryEvent(ctx context.Context, evt domain.InventoryEvent) (int64, error) {
	if evt.Change == nil {
		return 0, fmt.Errorf("append inventory event %s: %w", evt.ID, domain.ErrInvalidEvent)
	}
	payload, err := json.Marshal(evt.Change)
	if err != nil {
		return 0, fmt.Errorf("encode change: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_events
			(id, owner_scope, storage_unit_id, item_id, kind, occurred_at, performed_by, notes, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ID, evt.OwnerScope, evt.StorageUnitID, evt.ItemID, string(evt.Kind()),
		evt.Timestamp.UnixNano(), evt.PerformedBy, evt.Notes, string(payload),
	)
	if err != nil {
		return 0, s.insertError("inventory event", evt.ID, err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inventory event seq: %w", err)
	}
	return seq, nil
}

func (s *sqlEventStore) ListInventoryEvents(ctx context.Context, scope string, afterSeq int64) ([]domain.InventoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, owner_scope, storage_unit_id, item_id, kind, occurred_at, performed_by, notes, payload
		FROM inventory_events
		WHERE owner_scope = ? AND seq > ?
		ORDER BY seq`, scope, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("query inventory events: %w", err)
	}
	defer rows.Close()

	var events []domain.InventoryEvent
	for rows.Next() {
		var (
			evt        domain.InventoryEvent
			kind       string
			occurredAt int64
			payload    string
		)
		if err := rows.Scan(&evt.Seq, &evt.ID, &evt.OwnerScope, &evt.StorageUnitID, &evt.ItemID,
			&kind, &occurredAt, &evt.PerformedBy, &evt.Notes, &payload); err != nil {
			return nil, fmt.Errorf("scan inventory event: %w", err)
		}
		evt.Timestamp = time.Unix(0, occurredAt).UTC()
		evt.Change, err = domain.DecodeChange(domain.EventKind(kind), []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("inventory event %s: %w", evt.ID, err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory events: %w", err)
	}
	return events, nil
}

func (s *sqlEventStore) AppendAccessEvent(ctx context.Context, evt domain.AccessEvent) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO access_events (id, company_id, person_id, person_name, action, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		evt.ID, evt.CompanyID, evt.PersonID, evt.PersonName, string(evt.Action), evt.Timestamp.UnixNano(),
	)
	if err != nil {
		return 0, s.insertError("access event", evt.ID, err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read access event seq: %w", err)
	}
	return seq, nil
}

func (s *sqlEventStore) ListAccessEvents(ctx context.Context, companyID string, afterSeq int64) ([]domain.AccessEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, company_id, person_id, person_name, action, occurred_at
		FROM access_events
		WHERE company_id = ? AND seq > ?
		ORDER BY seq`, companyID, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("query access events: %w", err)
	}
	defer rows.Close()

	var events []domain.AccessEvent
	for rows.Next() {
		var (
			evt        domain.AccessEvent
			action     string
			occurredAt int64
		)
		if err := rows.Scan(&evt.Seq, &evt.ID, &evt.CompanyID, &evt.PersonID, &evt.PersonName,
			&action, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan access event: %w", err)
		}
		evt.Action = domain.AccessAction(action)
		evt.Timestamp = time.Unix(0, occurredAt).UTC()
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access events: %w", err)
	}
	return events, nil
}

func (s *sqlEventStore) migrate(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
