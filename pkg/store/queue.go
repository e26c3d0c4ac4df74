package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/fieldtrack/agent/pkg/collector"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// QueueCapacity bounds the offline ping queue. Appending beyond it evicts the
// oldest entries, never the newest.
const QueueCapacity = 2000

// QueuedPing is a persisted ping plus the rowid used to remove it once its
// delivery is confirmed.
type QueuedPing struct {
	ID   int64
	Ping collector.Ping
}

// AppendPing adds one ping to the tail of the queue and evicts any overflow
// beyond QueueCapacity from the head, in a single transaction.
func (s *Store) AppendPing(ctx context.Context, ping collector.Ping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "store: begin append failed")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO queued_pings
			(asset_id, operator_id, latitude, longitude, accuracy_m, speed_mps, heading_deg, altitude, captured_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ping.AssetID, ping.OperatorID, ping.Latitude, ping.Longitude,
		ping.AccuracyM, ping.SpeedMps, ping.HeadingDeg, ping.Altitude,
		ping.CapturedAt.UnixMilli())
	if err != nil {
		return pkgerrors.Wrap(err, "store: insert queued ping failed")
	}
	result, err := tx.ExecContext(ctx,
		`DELETE FROM queued_pings WHERE id NOT IN
			(SELECT id FROM queued_pings ORDER BY id DESC LIMIT ?)`,
		QueueCapacity)
	if err != nil {
		return pkgerrors.Wrap(err, "store: evict queue overflow failed")
	}
	if evicted, _ := result.RowsAffected(); evicted > 0 {
		log.Warn().Int64("evicted", evicted).Msg("ping queue at capacity; dropped oldest entries")
	}
	return pkgerrors.Wrap(tx.Commit(), "store: commit append failed")
}

// DrainPings returns up to upTo queued pings in insertion order without
// removing them. Removal happens only after confirmed delivery, via
// RemovePingsThrough.
func (s *Store) DrainPings(ctx context.Context, upTo int) ([]QueuedPing, error) {
	if upTo <= 0 {
		upTo = QueueCapacity
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, asset_id, operator_id, latitude, longitude, accuracy_m, speed_mps, heading_deg, altitude, captured_at_ms
		FROM queued_pings ORDER BY id ASC LIMIT ?`, upTo)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "store: query queued pings failed")
	}
	defer rows.Close()

	pings := make([]QueuedPing, 0, upTo)
	for rows.Next() {
		var (
			qp         QueuedPing
			capturedMs int64
			accuracy   sql.NullFloat64
			speed      sql.NullFloat64
			heading    sql.NullFloat64
			altitude   sql.NullFloat64
		)
		if err := rows.Scan(&qp.ID, &qp.Ping.AssetID, &qp.Ping.OperatorID,
			&qp.Ping.Latitude, &qp.Ping.Longitude,
			&accuracy, &speed, &heading, &altitude, &capturedMs); err != nil {
			return nil, pkgerrors.Wrap(err, "store: scan queued ping failed")
		}
		qp.Ping.AccuracyM = nullableFloat(accuracy)
		qp.Ping.SpeedMps = nullableFloat(speed)
		qp.Ping.HeadingDeg = nullableFloat(heading)
		qp.Ping.Altitude = nullableFloat(altitude)
		qp.Ping.CapturedAt = time.UnixMilli(capturedMs).UTC()
		pings = append(pings, qp)
	}
	return pings, pkgerrors.Wrap(rows.Err(), "store: iterate queued pings failed")
}

// RemovePingsThrough deletes the confirmed prefix of the queue, up to and
// including the given rowid. Entries appended after the caller's read keep
// higher rowids and are untouched, so a flush can never clobber a concurrent
// append.
func (s *Store) RemovePingsThrough(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queued_pings WHERE id <= ?`, id)
	return pkgerrors.Wrap(err, "store: remove confirmed pings failed")
}

// ClearPings drops every queued ping, used when a shift starts or ends so
// pings tagged with a stale asset/operator pairing are never delivered under
// a new shift.
func (s *Store) ClearPings(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queued_pings`)
	return pkgerrors.Wrap(err, "store: clear queued pings failed")
}

// PingCount returns the current queue depth.
func (s *Store) PingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_pings`).Scan(&count)
	return count, pkgerrors.Wrap(err, "store: count queued pings failed")
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}
