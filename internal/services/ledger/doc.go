/*
Package ledger owns every change to money: immutable transactions, the
per-user materialized wallet balance and the append-only balance deltas
behind it.

A balance changes only through IncrementBalance, which issues a single
guarded statement ("balance = balance + ?" with an optional non-negative
guard) and appends a uniquely keyed BalanceDelta in the same unit of work.
Replaying an idempotency key therefore never moves money twice, and the
wallet can always be recomputed from its deltas:

	report, err := svc.CheckWallet(ctx, userID)
	if !report.Consistent { ... }

Alert-driven side effects go through Apply with a key such as
"fraud:<alertID>" or "predispute:<alertID>". Whichever caller inserts the
LedgerAction for a key first wins; later callers get the recorded action
back with applied == false.

Usage:

	svc := ledger.NewService(store, recorder, log)

	err := store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
	    _, err := svc.IncrementBalance(ctx, tx, ledger.Increment{...})
	    return err
	})
*/
package ledger
