package ledger

import (
	"context"
	"fmt"
)

// The balance-mutating stored procedures named in spec.md §9. No
// in-process balance arithmetic is authoritative: every caller passes
// an amount string and lets Postgres perform the addition/subtraction
// atomically inside the function body (defined by the schema
// migration, out of this module's scope).

// LockFundsForOrder reserves amount of asset (usdc|yes|no) for a
// newly-accepted order, moving it from available to locked.
func (l *Ledger) LockFundsForOrder(ctx context.Context, userID, asset, amount, orderHash string) error {
	return l.callProc(ctx, "lock_funds_for_order", userID, asset, amount, orderHash)
}

// UnlockCancelledOrder releases a cancelled order's locked funds back
// to available.
func (l *Ledger) UnlockCancelledOrder(ctx context.Context, userID, asset, amount, orderHash string) error {
	return l.callProc(ctx, "unlock_cancelled_order", userID, asset, amount, orderHash)
}

// DepositUSDCBalance credits a confirmed deposit to available balance.
func (l *Ledger) DepositUSDCBalance(ctx context.Context, userID, amount, transactionSignature string) error {
	return l.callProc(ctx, "deposit_usdc_balance", userID, amount, transactionSignature)
}

// IncrementBalance adds amount to the named balance column.
func (l *Ledger) IncrementBalance(ctx context.Context, userID, column, amount string) error {
	return l.callProc(ctx, "increment_balance", userID, column, amount)
}

// DecrementBalance subtracts amount from the named balance column.
func (l *Ledger) DecrementBalance(ctx context.Context, userID, column, amount string) error {
	return l.callProc(ctx, "decrement_balance", userID, column, amount)
}

func (l *Ledger) callProc(ctx context.Context, proc string, args ...interface{}) error {
	placeholders := ""
	for i := range args {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("SELECT %s(%s)", proc, placeholders)
	if err := l.db.WithContext(ctx).Exec(sql, args...).Error; err != nil {
		return fmt.Errorf("ledger: call %s: %w", proc, err)
	}
	return nil
}
