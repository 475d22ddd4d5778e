package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			_, err := tx.ExecContext(ctx, "UPDATE users SET username = 'x'")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and rethrows on panic", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "kaput", func() {
			_ = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error { panic("kaput") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback failure is joined", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(errors.New("conn lost"))

		boom := errors.New("boom")
		err = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "rollback tx: conn lost")
	})

	t.Run("commit failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error { return nil })
		assert.ErrorContains(t, err, "commit tx: serialization failure")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("no conn"))
		called := false
		err = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error {
			called = true
			return nil
		})
		assert.ErrorContains(t, err, "begin tx: no conn")
		assert.False(t, called)
	})
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db, "sqlite", nil))
	// second run is a no-op
	require.NoError(t, Migrate(ctx, db, "sqlite", nil))

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name IN ('ix_users_username', 'ix_users_email')`,
	).Scan(&count))
	assert.Equal(t, 2, count)

	assert.NoError(t, Ping(ctx, db, time.Second))
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
	assert.Error(t, Migrate(context.Background(), nil, "mysql", nil))
	assert.Error(t, Ping(context.Background(), nil, time.Second))

	name, err := sqlDriverName("postgres")
	require.NoError(t, err)
	assert.Equal(t, "pgx", name)
}

func TestMigrate_LogsThroughSlog(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	require.NoError(t, Migrate(ctx, db, "sqlite", logger))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	applied := false
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "non-JSON migration output: %s", line)
		assert.Equal(t, "migrate", entry["component"])
		if msg, _ := entry["msg"].(string); strings.Contains(msg, "00001_create_users.sql") {
			applied = true
		}
	}
	assert.True(t, applied, "expected the applied migration in the log: %s", buf.String())
}
