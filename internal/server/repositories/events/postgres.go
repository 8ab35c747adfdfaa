package events

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/dbx"
	"github.com/openvelo/openvelo/internal/server/models"
)

// PostgresRepository implements the event log over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, event *models.Event) error {
	var lat, lng *float64
	if event.Location != nil {
		lat, lng = &event.Location.Lat, &event.Location.Lng
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO events (device_id, kind, at, lat, lng, locked)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.DeviceID, string(event.Kind), event.At, lat, lng, event.Locked)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("%w: unexpected rows affected: %d", common.ErrPersistence, n)
	}
	return nil
}

func (r *PostgresRepository) ByDevice(ctx context.Context, deviceID string) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, kind, at, lat, lng, locked FROM events
		WHERE device_id = $1 ORDER BY at, id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}
	return collectEvents(rows)
}

func (r *PostgresRepository) All(ctx context.Context) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, kind, at, lat, lng, locked FROM events
		ORDER BY at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*models.Event, error) {
	defer rows.Close()

	var result []*models.Event
	for rows.Next() {
		var item models.Event
		var kind string
		var lat, lng sql.NullFloat64
		var locked sql.NullBool
		if err := rows.Scan(&item.ID, &item.DeviceID, &kind, &item.At, &lat, &lng, &locked); err != nil {
			return nil, err
		}
		item.Kind = models.EventKind(kind)
		if lat.Valid && lng.Valid {
			item.Location = &models.Point{Lat: lat.Float64, Lng: lng.Float64}
		}
		if locked.Valid {
			v := locked.Bool
			item.Locked = &v
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
