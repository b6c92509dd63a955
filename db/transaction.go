package db

import (
	"github.com/nickyhof/dbaccess/core"
)

// Transaction brackets statements with the begin and commit statements of
// the engine dialect. Statements journaled while it is open are committed
// to the journal as one entry by End.
//
//	txn, result := db.BeginTransaction(access)
//	defer txn.End()
type Transaction struct {
	access  *Access
	message string
	open    bool
}

// BeginTransaction starts a transaction on access. Only one transaction
// can be open per Access.
func BeginTransaction(access *Access) (*Transaction, core.Result) {
	txn := &Transaction{access: access, message: "Transaction"}
	return txn, txn.begin()
}

// SetMessage sets the journal commit message used by End.
func (txn *Transaction) SetMessage(message string) {
	txn.message = message
}

func (txn *Transaction) IsOpen() bool {
	return txn.open
}

func (txn *Transaction) begin() core.Result {
	var result core.Result
	if txn.access.transaction != nil {
		result.SetError("A transaction is already open")
		return result
	}

	result = txn.access.execInternal(txn.access.Dialect().Begin)
	if !result.IsOk() {
		result.InsertContext("Unable to begin transaction")
		return result
	}
	txn.open = true
	txn.access.transaction = txn
	return result
}

// End commits the transaction. Calling it again does nothing.
func (txn *Transaction) End() core.Result {
	var result core.Result
	if !txn.open {
		return result
	}

	result = txn.access.execInternal(txn.access.Dialect().Commit)
	txn.open = false
	txn.access.transaction = nil
	if !result.IsOk() {
		if journal := txn.access.Journal(); journal != nil {
			journal.Discard()
		}
		result.InsertContext("Unable to commit transaction")
		return result
	}
	result.Merge(txn.access.commitJournal(txn.message))
	return result
}

// Transact commits the open transaction and starts a new one.
func (txn *Transaction) Transact() core.Result {
	result := txn.End()
	if !result.IsOk() {
		return result
	}
	result.Merge(txn.begin())
	return result
}

// Rollback abandons the transaction and the statements it journaled.
func (txn *Transaction) Rollback() core.Result {
	var result core.Result
	if !txn.open {
		return result
	}

	result = txn.access.execInternal(txn.access.Dialect().Rollback)
	txn.open = false
	txn.access.transaction = nil
	if journal := txn.access.Journal(); journal != nil {
		journal.Discard()
	}
	if !result.IsOk() {
		result.InsertContext("Unable to roll back transaction")
	}
	return result
}
