// Package remote binds a dbaccess server over TCP. Statements are sent as
// literal SQL; the server does not prepare on behalf of clients.
package remote

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/nickyhof/dbaccess/engine"
	"github.com/nickyhof/dbaccess/protocol"
	"github.com/nickyhof/dbaccess/sql"
)

// Options configures a remote connection.
type Options struct {
	// TLS enables TLS with the given configuration.
	TLS *tls.Config
	// Token is a JWT sent with AUTH after connecting.
	Token string
	// Dialect is the dialect of the engine behind the server. The generic
	// dialect is used when it is empty.
	Dialect sql.Dialect
	// DialTimeout defaults to 10 seconds.
	DialTimeout time.Duration
}

// Conn is a client connection to a dbaccess server.
type Conn struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	dialect sql.Dialect
}

// Dial connects to the server at addr and authenticates when a token is
// given.
func Dial(ctx context.Context, addr string, options Options) (*Conn, error) {
	timeout := options.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}

	var conn net.Conn
	var err error
	if options.TLS != nil {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: options.TLS}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	dialect := options.Dialect
	if dialect.Name == "" {
		dialect = sql.Generic
	}
	c := &Conn{conn: conn, reader: bufio.NewReader(conn), dialect: dialect}

	if options.Token != "" {
		if err := c.authenticate(ctx, options.Token); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Conn) authenticate(ctx context.Context, token string) error {
	resp, err := c.roundTrip(ctx, []byte("AUTH JWT "+token+"\n"))
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("authentication failed: %s", resp.Error)
	}
	return nil
}

func (c *Conn) Dialect() sql.Dialect {
	return c.dialect
}

func (c *Conn) CanPrepare() bool {
	return false
}

func (c *Conn) Prepare(ctx context.Context, query string) (engine.Stmt, error) {
	return nil, engine.ErrPrepareUnsupported
}

// Query sends query and reads the complete result.
func (c *Conn) Query(ctx context.Context, query string) (engine.Rows, error) {
	request, err := protocol.EncodeRequest(protocol.Request{Query: query})
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, request)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New(resp.Error)
	}

	switch resp.Type {
	case protocol.TypeQuery:
		var qr protocol.QueryResponse
		if err := json.Unmarshal(resp.Result, &qr); err != nil {
			return nil, fmt.Errorf("invalid query response: %w", err)
		}
		return newRows(qr), nil
	default:
		return engine.NoRows{}, nil
	}
}

func (c *Conn) roundTrip(ctx context.Context, request []byte) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return protocol.Response{}, errors.New("connection is closed")
	}
	// A zero deadline clears the one of a previous request.
	deadline, _ := ctx.Deadline()
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(request); err != nil {
		return protocol.Response{}, fmt.Errorf("failed to send request: %w", err)
	}
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return protocol.Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	resp, err := protocol.DecodeResponse(line)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("invalid response: %w", err)
	}
	return resp, nil
}

// Close says goodbye to the server and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	c.conn.Write([]byte("quit\n"))
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Rows is a fully received query result.
type Rows struct {
	columns []engine.Column
	data    [][]*string
	pos     int
	err     error
}

func newRows(qr protocol.QueryResponse) *Rows {
	columns := make([]engine.Column, len(qr.Columns))
	for i, name := range qr.Columns {
		columns[i].Name = name
		if i < len(qr.Types) {
			columns[i].DeclType = qr.Types[i]
		}
	}
	return &Rows{columns: columns, data: qr.Data, pos: -1}
}

func (r *Rows) Columns() []engine.Column {
	return r.columns
}

func (r *Rows) Next() bool {
	if r.err != nil {
		return false
	}
	r.pos++
	return r.pos < len(r.data)
}

func (r *Rows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.data) {
		return nil, errors.New("no row")
	}
	row := r.data[r.pos]
	values := make([]any, len(row))
	for i, cell := range row {
		declType := ""
		if i < len(r.columns) {
			declType = r.columns[i].DeclType
		}
		value, err := protocol.DecodeCell(cell, declType)
		if err != nil {
			r.err = err
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

func (r *Rows) Err() error {
	return r.err
}

func (r *Rows) Close() error {
	r.data = nil
	return nil
}
