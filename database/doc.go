/*
Package database provides a concurrent record store that keeps records in
named collections.

Every collection has its own lock, all operations on a collection are
serialized by it. Reads are served from a cache when possible. Grouped writes
are buffered in a transaction and applied on commit:

	store, err := database.New(opts)
	if err != nil {
		return err
	}
	defer store.Shutdown()

	txn := store.Begin()
	_ = txn.Put("users", "alice", alice)
	_ = txn.Delete("users", "bob")
	err = txn.Commit()

Only one transaction can be open per store. Beginning a new transaction
supersedes the open one, which then fails with ErrTxnClosed. Reads through the
store never see buffered writes, reads through the transaction do.

Async runs store operations on an executor, so that operations on the same
collection are executed in the order they were submitted.
*/
package database
