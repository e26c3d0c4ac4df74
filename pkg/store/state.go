package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/fieldtrack/agent/pkg/collector"
	pkgerrors "github.com/pkg/errors"
)

// SessionRecord is the persisted active-shift binding. It survives process
// restarts so the agent can resume tracking mid-shift.
type SessionRecord struct {
	Operator  collector.Operator
	Asset     collector.Asset
	StartedAt time.Time
}

// Elapsed returns how long the shift has been running as of now.
func (r SessionRecord) Elapsed(now time.Time) time.Duration {
	return now.Sub(r.StartedAt)
}

// SaveOperator persists the registered operator, replacing any previous
// record.
func (s *Store) SaveOperator(ctx context.Context, op collector.Operator) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operator (key, operator_id, name, employee_id, phone)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			operator_id=excluded.operator_id, name=excluded.name,
			employee_id=excluded.employee_id, phone=excluded.phone`,
		op.ID, op.Name, op.EmployeeID, op.Phone)
	return pkgerrors.Wrap(err, "store: save operator failed")
}

// LoadOperator returns the persisted operator, or nil when none is
// registered.
func (s *Store) LoadOperator(ctx context.Context) (*collector.Operator, error) {
	var op collector.Operator
	err := s.db.QueryRowContext(ctx,
		`SELECT operator_id, name, employee_id, phone FROM operator WHERE key = 1`).
		Scan(&op.ID, &op.Name, &op.EmployeeID, &op.Phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "store: load operator failed")
	}
	return &op, nil
}

// DeleteOperator removes the registered operator record ("unregister").
func (s *Store) DeleteOperator(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM operator`)
	return pkgerrors.Wrap(err, "store: delete operator failed")
}

// SaveSession persists the active session, replacing any previous record.
func (s *Store) SaveSession(ctx context.Context, record SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (key, operator_id, operator_name, asset_id, asset_name, started_at_ms)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			operator_id=excluded.operator_id, operator_name=excluded.operator_name,
			asset_id=excluded.asset_id, asset_name=excluded.asset_name,
			started_at_ms=excluded.started_at_ms`,
		record.Operator.ID, record.Operator.Name,
		record.Asset.ID, record.Asset.Name,
		record.StartedAt.UnixMilli())
	return pkgerrors.Wrap(err, "store: save session failed")
}

// LoadSession returns the persisted session, or nil when no shift is active.
func (s *Store) LoadSession(ctx context.Context) (*SessionRecord, error) {
	var (
		record    SessionRecord
		startedMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT operator_id, operator_name, asset_id, asset_name, started_at_ms FROM session WHERE key = 1`).
		Scan(&record.Operator.ID, &record.Operator.Name,
			&record.Asset.ID, &record.Asset.Name, &startedMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "store: load session failed")
	}
	record.StartedAt = time.UnixMilli(startedMs).UTC()
	return &record, nil
}

// DeleteSession removes the persisted session record.
func (s *Store) DeleteSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session`)
	return pkgerrors.Wrap(err, "store: delete session failed")
}
