package db

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

type txState struct {
	tx          *gorm.DB
	afterCommit []func(context.Context)
}

func stateFrom(ctx context.Context) *txState {
	if ctx == nil {
		return nil
	}
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// Conn returns the transaction carried by ctx, or fallback when none is open.
func Conn(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if st := stateFrom(ctx); st != nil {
		return st.tx.WithContext(ctx)
	}
	return fallback.WithContext(ctx)
}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	return stateFrom(ctx) != nil
}

// WithTransaction runs fn inside a transaction bound to the returned context.
// When ctx already carries a transaction, fn runs in a savepoint of it and its
// after-commit hooks are deferred to the outermost commit.
func WithTransaction(ctx context.Context, conn *gorm.DB, fn func(ctx context.Context) error) error {
	if parent := stateFrom(ctx); parent != nil {
		child := &txState{}
		err := parent.tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
			child.tx = sp
			return fn(context.WithValue(ctx, txKey{}, child))
		})
		if err != nil {
			return err
		}
		parent.afterCommit = append(parent.afterCommit, child.afterCommit...)
		return nil
	}

	st := &txState{}
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st.tx = tx
		return fn(context.WithValue(ctx, txKey{}, st))
	})
	if err != nil {
		return err
	}

	// Hooks must not observe the finished transaction.
	hookCtx := context.WithValue(ctx, txKey{}, (*txState)(nil))
	for _, hook := range st.afterCommit {
		hook(hookCtx)
	}
	return nil
}

// AfterCommit registers fn to run once the outermost transaction commits.
// Without an open transaction fn runs immediately. Hooks are dropped on rollback.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	st := stateFrom(ctx)
	if st == nil {
		fn(ctx)
		return
	}
	st.afterCommit = append(st.afterCommit, fn)
}
