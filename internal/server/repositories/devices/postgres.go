package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/dbx"
	"github.com/openvelo/openvelo/internal/server/models"
)

// PostgresRepository implements device storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, device *models.Device) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM devices WHERE public_key = $1`, []byte(device.PublicKey),
		).Scan(&existing)
		if err == nil {
			return common.ErrAlreadyExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("db error: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO devices (id, public_key, created_at) VALUES ($1, $2, $3)`,
			device.ID, []byte(device.PublicKey), device.CreatedAt)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, public_key, created_at FROM devices WHERE id = $1`, id)
	return scanDevice(row)
}

func (r *PostgresRepository) GetByPublicKey(ctx context.Context, publicKey []byte) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, public_key, created_at FROM devices WHERE public_key = $1`, publicKey)
	return scanDevice(row)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, public_key, created_at FROM devices ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to select devices: %w", err)
	}
	defer rows.Close()

	var result []*models.Device
	for rows.Next() {
		var item models.Device
		var key []byte
		if err := rows.Scan(&item.ID, &key, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.PublicKey = key
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanDevice(row *sql.Row) (*models.Device, error) {
	var item models.Device
	var key []byte
	if err := row.Scan(&item.ID, &key, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	item.PublicKey = key
	return &item, nil
}
