package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/paygate-labs/x402-gateway-go/types"
)

// PostgresStore is a registry backed by a postgres table. Counter updates
// run as single UPDATE statements so the database serializes concurrent
// RecordCall invocations for the same row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database and returns a postgres registry.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing database handle.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Register validates the descriptor, applies defaults and upserts the row,
// preserving counters and registration time of an existing service.
func (s *PostgresStore) Register(ctx context.Context, d types.ServiceDescriptor) (types.ServiceRecord, error) {

	// Validate and normalize the descriptor before writing
	d, err := normalizeDescriptor(d)
	if err != nil {
		return types.ServiceRecord{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO services (id, name, description, endpoint, network, price, pay_to, capabilities, status, registered_at, calls, earned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active', $9, 0, 0)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			endpoint = EXCLUDED.endpoint,
			network = EXCLUDED.network,
			price = EXCLUDED.price,
			pay_to = EXCLUDED.pay_to,
			capabilities = EXCLUDED.capabilities,
			status = 'active'
		RETURNING id, name, description, endpoint, network, price, pay_to, capabilities, status, registered_at, calls, earned`,
		d.ID, d.Name, d.Description, d.Endpoint, d.Network, d.Price, d.PayTo,
		pq.Array(d.Capabilities), time.Now().UTC(),
	)

	return scanRecord(row)
}

// Get returns the record for the identifier or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (types.ServiceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, endpoint, network, price, pay_to, capabilities, status, registered_at, calls, earned
		FROM services WHERE id = $1`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ServiceRecord{}, ErrNotFound
	}
	return record, err
}

// List returns all records in registration order.
func (s *PostgresStore) List(ctx context.Context) ([]types.ServiceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, endpoint, network, price, pay_to, capabilities, status, registered_at, calls, earned
		FROM services ORDER BY registered_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.ServiceRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// RecordCall increments the call counter and adds the earned amount.
func (s *PostgresStore) RecordCall(ctx context.Context, id string, earned string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE services SET calls = calls + 1, earned = earned + $2::numeric WHERE id = $1`,
		id, earned)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate marks the service inactive.
func (s *PostgresStore) Deactivate(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE services SET status = 'inactive' WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one service row into a record.
func scanRecord(row scanner) (types.ServiceRecord, error) {
	var record types.ServiceRecord
	var capabilities pq.StringArray

	err := row.Scan(
		&record.ID, &record.Name, &record.Description, &record.Endpoint,
		&record.Network, &record.Price, &record.PayTo, &capabilities,
		&record.Status, &record.RegisteredAt, &record.Calls, &record.Earned,
	)
	if err != nil {
		return types.ServiceRecord{}, err
	}

	record.Capabilities = capabilities
	return record, nil
}
