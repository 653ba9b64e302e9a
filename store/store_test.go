package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indexer.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesSchemaAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.db")

	s, err := Open(path)
	require.NoError(t, err)
	height, err := s.SyncHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), height)
	require.NoError(t, s.Close())

	// Reopening against the same file must not fail or re-apply migrations.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	var count int
	err = s2.writeDB.QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestExecAndQueryOne(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Exec(ctx, `INSERT INTO blocks
		(block_id, parent_id, height, timestamp, difficulty, size, total_coins_in_outputs, tx_count, miner_address, miner_reward, main_chain, global_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"b1", "b0", 1, 1000, 5000, 200, 1000000, 1, "addr1", 750000000, 1, 0)
	require.NoError(t, err)

	blockID, found, err := QueryOne(ctx, s, "SELECT block_id FROM blocks WHERE height = ?", func(row *sql.Row) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	}, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b1", blockID)

	_, found, err = QueryOne(ctx, s, "SELECT block_id FROM blocks WHERE height = ?", func(row *sql.Row) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	}, 999)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQueryAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := s.Exec(ctx, `INSERT INTO blocks
			(block_id, parent_id, height, timestamp, difficulty, size, total_coins_in_outputs, tx_count, miner_address, miner_reward, main_chain, global_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			"b"+string(rune('0'+i)), "b0", i, 1000, 5000, 200, 1000000, 1, "addr1", 750000000, 1, i-1)
		require.NoError(t, err)
	}

	heights, err := QueryAll(ctx, s, "SELECT height FROM blocks ORDER BY height", func(rows *sql.Rows) (int, error) {
		var h int
		err := rows.Scan(&h)
		return h, err
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, heights)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO blocks
			(block_id, parent_id, height, timestamp, difficulty, size, total_coins_in_outputs, tx_count, miner_address, miner_reward, main_chain, global_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			"bad", "b0", 1, 1000, 5000, 200, 1000000, 1, "addr1", 750000000, 1, 0)
		if err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	height, err := s.SyncHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), height)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO blocks
			(block_id, parent_id, height, timestamp, difficulty, size, total_coins_in_outputs, tx_count, miner_address, miner_reward, main_chain, global_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			"good", "b0", 1, 1000, 5000, 200, 1000000, 1, "addr1", 750000000, 1, 0)
		return err
	})
	require.NoError(t, err)

	height, err := s.SyncHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), height)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.BlockCount)
	assert.Equal(t, int64(0), stats.TxCount)
	assert.Equal(t, int64(0), stats.BoxCount)
}

func TestCheckpoint(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Checkpoint(context.Background()))
}
