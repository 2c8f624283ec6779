package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.Default().Storage
	cfg.Driver = config.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "db", "test.db")
	client, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, err = client.DB.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	return client
}

func countItems(t *testing.T, c *Client) int {
	t.Helper()
	var n int
	require.NoError(t, c.DB.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func insertItem(ctx context.Context, c *Client, name string) error {
	_, err := c.Conn(ctx).ExecContext(ctx, `INSERT INTO items (name) VALUES ($1)`, name)
	return err
}

func TestInTxCommits(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()

	err := c.InTx(ctx, func(ctx context.Context) error {
		assert.True(t, c.InTransaction(ctx))
		return insertItem(ctx, c, "a")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, c))
	assert.False(t, c.InTransaction(ctx))
}

func TestInTxRollsBackOnError(t *testing.T) {
	c := openTestClient(t)
	boom := errors.New("boom")

	err := c.InTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, insertItem(ctx, c, "a"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countItems(t, c))
}

func TestNestedFailureRollsBackOnlyInnerScope(t *testing.T) {
	c := openTestClient(t)
	boom := errors.New("inner")

	err := c.InTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, insertItem(ctx, c, "outer"))
		innerErr := c.InTx(ctx, func(ctx context.Context) error {
			require.NoError(t, insertItem(ctx, c, "inner"))
			return boom
		})
		assert.ErrorIs(t, innerErr, boom)
		return nil
	})
	require.NoError(t, err)

	var name string
	require.NoError(t, c.DB.QueryRow(`SELECT name FROM items`).Scan(&name))
	assert.Equal(t, "outer", name)
	assert.Equal(t, 1, countItems(t, c))
}

func TestOuterFailureDiscardsReleasedInnerScope(t *testing.T) {
	c := openTestClient(t)
	boom := errors.New("outer")

	err := c.InTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, c.InTx(ctx, func(ctx context.Context) error {
			return insertItem(ctx, c, "inner")
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countItems(t, c))
}

func TestTxDepthTracksNesting(t *testing.T) {
	c := openTestClient(t)
	other := openTestClient(t)
	ctx := context.Background()
	assert.Zero(t, c.TxDepth(ctx))

	var depths []int
	err := c.InTx(ctx, func(ctx context.Context) error {
		depths = append(depths, c.TxDepth(ctx))
		assert.Zero(t, other.TxDepth(ctx), "scopes belong to one client")
		return c.InTx(ctx, func(ctx context.Context) error {
			depths = append(depths, c.TxDepth(ctx))
			require.NoError(t, c.InTx(ctx, func(ctx context.Context) error {
				depths = append(depths, c.TxDepth(ctx))
				return insertItem(ctx, c, "deep")
			}))
			depths = append(depths, c.TxDepth(ctx))
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 2}, depths)
	assert.Equal(t, 1, countItems(t, c))
	assert.Zero(t, c.TxDepth(ctx))
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	c := openTestClient(t)

	assert.Panics(t, func() {
		_ = c.InTx(context.Background(), func(ctx context.Context) error {
			require.NoError(t, insertItem(ctx, c, "a"))
			panic("crash")
		})
	})
	assert.Equal(t, 0, countItems(t, c))
}

func TestIsConflictDetectsUniqueViolation(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()

	require.NoError(t, insertItem(ctx, c, "dup"))
	err := insertItem(ctx, c, "dup")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.False(t, IsConflict(errors.New("other")))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.StorageConfig{Driver: "mysql"})
	assert.Error(t, err)
}
