package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InTx runs fn against queries bound to one transaction. It commits only
// when fn succeeds. A failed rollback is joined onto fn's error, and a panic
// in fn rolls back before it propagates.
func InTx[Q any](ctx context.Context, db *sql.DB, bind func(*sql.Tx) Q, fn func(Q) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(bind(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
