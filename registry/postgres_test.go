package registry

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-labs/x402-gateway-go/types"
)

var recordColumns = []string{
	"id", "name", "description", "endpoint", "network", "price",
	"pay_to", "capabilities", "status", "registered_at", "calls", "earned",
}

func setupPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresStoreWithDB(db), mock
}

func TestPostgresStoreRegister(t *testing.T) {
	store, mock := setupPostgresStore(t)

	registeredAt := time.Now().UTC()
	rows := sqlmock.NewRows(recordColumns).AddRow(
		"svc-1", "svc-1", "", "/api/services/svc-1", "sepolia", "0.002",
		"0xabc", []byte("{analyze}"), "active", registeredAt, int64(0), "0",
	)

	mock.ExpectQuery("INSERT INTO services").
		WithArgs("svc-1", "svc-1", "", "/api/services/svc-1", types.NetworkSepolia,
			"0.002", "0xabc", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	record, err := store.Register(context.Background(), types.ServiceDescriptor{
		ID:       "svc-1",
		Endpoint: "/api/services/svc-1",
		Price:    "0.002",
		PayTo:    "0xabc",
	})
	require.NoError(t, err)

	assert.Equal(t, "svc-1", record.ID)
	assert.Equal(t, "0.002", record.Price)
	assert.Equal(t, []string{"analyze"}, record.Capabilities)
	assert.Equal(t, types.ServiceStatusActive, record.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRegisterInvalid(t *testing.T) {
	store, mock := setupPostgresStore(t)

	// Validation fails before any query is issued
	_, err := store.Register(context.Background(), types.ServiceDescriptor{ID: "svc-1"})
	require.ErrorIs(t, err, ErrInvalidDescriptor)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGet(t *testing.T) {
	store, mock := setupPostgresStore(t)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(recordColumns).AddRow(
			"svc-1", "svc-1", "", "/svc-1", "sepolia", "0.001",
			"0xabc", []byte("{analyze,predict}"), "active", time.Now().UTC(), int64(7), "0.007",
		)
		mock.ExpectQuery("SELECT (.+) FROM services WHERE id").
			WithArgs("svc-1").
			WillReturnRows(rows)

		record, err := store.Get(context.Background(), "svc-1")
		require.NoError(t, err)
		assert.Equal(t, uint64(7), record.Calls)
		assert.Equal(t, []string{"analyze", "predict"}, record.Capabilities)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM services WHERE id").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(recordColumns))

		_, err := store.Get(context.Background(), "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRecordCall(t *testing.T) {
	store, mock := setupPostgresStore(t)

	t.Run("increments counters", func(t *testing.T) {
		mock.ExpectExec("UPDATE services SET calls").
			WithArgs("svc-1", "0.001").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.RecordCall(context.Background(), "svc-1", "0.001"))
	})

	t.Run("unknown service", func(t *testing.T) {
		mock.ExpectExec("UPDATE services SET calls").
			WithArgs("missing", "0.001").
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.ErrorIs(t, store.RecordCall(context.Background(), "missing", "0.001"), ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDeactivate(t *testing.T) {
	store, mock := setupPostgresStore(t)

	mock.ExpectExec("UPDATE services SET status").
		WithArgs("svc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Deactivate(context.Background(), "svc-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
