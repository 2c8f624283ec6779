package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type txKey struct{}

// txScope is one level of InTx nesting. depth is 1 for the transaction
// itself and grows by one per savepoint.
type txScope struct {
	client *Client
	tx     *sql.Tx
	depth  int
}

// InTx runs fn inside a transaction scope. The ctx handed to fn carries the
// scope, so statements issued through Conn(ctx) join it and a nested InTx
// opens a savepoint instead of a second transaction. A nested scope that
// fails is rolled back to its savepoint and its error returned; the outer
// scope decides whether the whole unit commits.
func (c *Client) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if scope := c.activeScope(ctx); scope != nil {
		return c.inSavepoint(ctx, scope, fn)
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, &txScope{client: c, tx: tx, depth: 1})

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		committed = true
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

func (c *Client) inSavepoint(ctx context.Context, scope *txScope, fn func(ctx context.Context) error) error {
	name := fmt.Sprintf("sp_%d_%s", scope.depth, strings.ReplaceAll(uuid.NewString(), "-", ""))
	if _, err := scope.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("creating savepoint: %w", err)
	}
	inner := &txScope{client: c, tx: scope.tx, depth: scope.depth + 1}
	spCtx := context.WithValue(ctx, txKey{}, inner)

	released := false
	defer func() {
		if !released {
			_, _ = scope.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
			_, _ = scope.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		}
	}()

	if err := fn(spCtx); err != nil {
		released = true
		if _, rbErr := scope.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("rolling back savepoint after error %v: %w", rbErr, err)
		}
		if _, relErr := scope.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return fmt.Errorf("releasing savepoint after error %v: %w", relErr, err)
		}
		return err
	}

	released = true
	if _, err := scope.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("releasing savepoint: %w", err)
	}
	return nil
}

// Conn returns the transaction bound to ctx, or the pool when there is none.
func (c *Client) Conn(ctx context.Context) Querier {
	if scope := c.activeScope(ctx); scope != nil {
		return scope.tx
	}
	return c.DB
}

// InTransaction reports whether ctx carries an open scope of this client.
func (c *Client) InTransaction(ctx context.Context) bool {
	return c.TxDepth(ctx) > 0
}

// TxDepth reports how deeply ctx is nested in InTx calls of this client:
// 0 outside any transaction, 1 inside the transaction, more inside savepoints.
func (c *Client) TxDepth(ctx context.Context) int {
	if scope := c.activeScope(ctx); scope != nil {
		return scope.depth
	}
	return 0
}

func (c *Client) activeScope(ctx context.Context) *txScope {
	scope, ok := ctx.Value(txKey{}).(*txScope)
	if !ok || scope.client != c {
		return nil
	}
	return scope
}
