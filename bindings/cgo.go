package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"errors"
	"sync"
	"unsafe"

	"github.com/golang/glog"

	"github.com/nickyhof/dbaccess"
	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/db"
	"github.com/nickyhof/dbaccess/protocol"
)

// Handle represents an open connection. Calls on one handle are
// serialized.
type Handle struct {
	mu     sync.Mutex
	access *db.Access
	txn    *db.Transaction
}

var (
	handlesMu  sync.Mutex
	handles    = make(map[int]*Handle)
	nextHandle = 1
)

var bindingIdentity = core.Identity{
	Name:  "dbaccess bindings",
	Email: "bindings@dbaccess.local",
}

func register(access *db.Access) C.int {
	handlesMu.Lock()
	defer handlesMu.Unlock()

	handle := nextHandle
	nextHandle++
	handles[handle] = &Handle{access: access}
	return C.int(handle)
}

func lookup(handle C.int) (*Handle, bool) {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	h, ok := handles[int(handle)]
	return h, ok
}

func open(config dbaccess.Config) C.int {
	config.Identity = bindingIdentity
	access, err := dbaccess.Open(context.Background(), config)
	if err != nil {
		return -1
	}
	return register(access)
}

//export dbaccess_open
func dbaccess_open(engine *C.char, dsn *C.char) C.int {
	return open(dbaccess.Config{
		Engine: C.GoString(engine),
		DSN:    C.GoString(dsn),
	})
}

//export dbaccess_open_journaled
func dbaccess_open_journaled(engine *C.char, dsn *C.char, journalDir *C.char) C.int {
	return open(dbaccess.Config{
		Engine:  C.GoString(engine),
		DSN:     C.GoString(dsn),
		Journal: C.GoString(journalDir),
	})
}

//export dbaccess_close
func dbaccess_close(handle C.int) {
	handlesMu.Lock()
	h, ok := handles[int(handle)]
	delete(handles, int(handle))
	handlesMu.Unlock()
	if !ok {
		return
	}

	if err := closeHandle(h); err != nil {
		glog.Warningf("Handle %d closed with error: %v", int(handle), err)
	}
}

// closeHandle closes the connection of h, rolling back an open
// transaction.
func closeHandle(h *Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.txn = nil

	result := h.access.Close()
	if !result.IsOk() {
		return result.Err()
	}
	if result.HaveWarning() {
		glog.Warning(result.Message())
	}
	return nil
}

//export dbaccess_execute
func dbaccess_execute(handle C.int, query *C.char) *C.char {
	h, ok := lookup(handle)
	if !ok {
		return makeErrorResponse("Invalid handle")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return makeResponse(execute(h.access, C.GoString(query)))
}

//export dbaccess_begin
func dbaccess_begin(handle C.int) *C.char {
	h, ok := lookup(handle)
	if !ok {
		return makeErrorResponse("Invalid handle")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	txn, result := db.BeginTransaction(h.access)
	if !result.IsOk() {
		return makeErrorResponse(result.Message())
	}
	h.txn = txn
	return makeResponse(protocol.Success(protocol.TypeExec, protocol.ExecResponse{}))
}

//export dbaccess_commit
func dbaccess_commit(handle C.int) *C.char {
	return endTransaction(handle, (*db.Transaction).End)
}

//export dbaccess_rollback
func dbaccess_rollback(handle C.int) *C.char {
	return endTransaction(handle, (*db.Transaction).Rollback)
}

func endTransaction(handle C.int, end func(*db.Transaction) core.Result) *C.char {
	h, ok := lookup(handle)
	if !ok {
		return makeErrorResponse("Invalid handle")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.txn == nil {
		return makeErrorResponse("No open transaction")
	}
	result := end(h.txn)
	h.txn = nil
	if !result.IsOk() {
		return makeErrorResponse(result.Message())
	}
	return makeResponse(protocol.Success(protocol.TypeExec, protocol.ExecResponse{}))
}

//export dbaccess_free
func dbaccess_free(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}

// execute runs query and builds the same response the server sends.
func execute(access *db.Access, query string) protocol.Response {
	output, result := access.Run(query)
	if !result.IsOk() {
		return protocol.Failure(protocol.TypeQuery, result.Err())
	}

	switch r := output.(type) {
	case db.QueryResult:
		return protocol.Success(protocol.TypeQuery, protocol.NewQueryResponse(r))
	case db.ExecResult:
		return protocol.Success(protocol.TypeExec, protocol.ExecResponse{TimeMs: r.ExecutionTimeSec * 1000})
	default:
		return protocol.Failure(protocol.TypeQuery, errors.New("unknown result type"))
	}
}

func makeResponse(resp protocol.Response) *C.char {
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		return makeErrorResponse(err.Error())
	}
	return C.CString(string(data))
}

func makeErrorResponse(msg string) *C.char {
	return makeResponse(protocol.Response{Success: false, Error: msg})
}

func main() {}
