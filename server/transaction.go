package server

import (
	"errors"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/nickyhof/dbaccess/db"
	"github.com/nickyhof/dbaccess/protocol"
)

var errTransactionBusy = errors.New("another session has an open transaction")

type txnControl int

const (
	txnNone txnControl = iota
	txnBegin
	txnCommit
	txnRollback
)

// transactionControl classifies statements that open or close a
// transaction. ROLLBACK TO a savepoint keeps the transaction open.
func transactionControl(query string) txnControl {
	words := strings.Fields(strings.ToUpper(strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")))
	if len(words) == 0 {
		return txnNone
	}
	switch words[0] {
	case "BEGIN":
		return txnBegin
	case "START":
		if len(words) > 1 && words[1] == "TRANSACTION" {
			return txnBegin
		}
	case "COMMIT", "END":
		return txnCommit
	case "ROLLBACK", "ABORT":
		for _, word := range words[1:] {
			if word == "TO" {
				return txnNone
			}
		}
		return txnRollback
	}
	return txnNone
}

// controlTransaction runs a transaction statement of sess. Callers hold s.mu.
func (s *Server) controlTransaction(sess *session, control txnControl) protocol.Response {
	start := time.Now()
	switch control {
	case txnBegin:
		txn, result := db.BeginTransaction(s.access)
		if !result.IsOk() {
			return protocol.Failure(protocol.TypeExec, result.Err())
		}
		s.txn = txn
		s.txnOwner = sess.id
		glog.Infof("[%s] Transaction started", sess.id)

	case txnCommit, txnRollback:
		if s.txn == nil {
			return protocol.Failure(protocol.TypeExec, errors.New("no transaction is open"))
		}
		finish := s.txn.End
		if control == txnRollback {
			finish = s.txn.Rollback
		}
		outcome := finish()
		s.txn = nil
		s.txnOwner = ""
		if !outcome.IsOk() {
			return protocol.Failure(protocol.TypeExec, outcome.Err())
		}
		if outcome.HaveWarning() {
			glog.Warningf("[%s] %s", sess.id, outcome.Message())
		}
	}
	return protocol.Success(protocol.TypeExec, protocol.ExecResponse{
		TimeMs: float64(time.Since(start).Microseconds()) / 1000,
	})
}

// endSession rolls back a transaction the closing session left open.
func (s *Server) endSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil || s.txnOwner != sess.id {
		return
	}

	result := s.txn.Rollback()
	s.txn = nil
	s.txnOwner = ""
	if err := result.Err(); err != nil {
		glog.Warningf("[%s] Failed to roll back open transaction: %v", sess.id, err)
		return
	}
	glog.Infof("[%s] Rolled back open transaction", sess.id)
}
