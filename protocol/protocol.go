// Package protocol defines the JSON-lines messages exchanged with the
// dbaccess TCP server.
//
// A client sends one request per line, either raw SQL or a JSON object
// {"query": "..."}, and reads one Response line back. "AUTH JWT <token>"
// authenticates the connection and "quit" or "exit" ends it.
package protocol

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/db"
)

// Response types.
const (
	TypeQuery = "query"
	TypeExec  = "exec"
	TypeAuth  = "auth"
)

// Request represents a SQL statement from the client.
type Request struct {
	Query string `json:"query"`
}

// Response represents the server's response to a request.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"` // "query", "exec" or "auth"
	Result  json.RawMessage `json:"result,omitempty"`
}

// QueryResponse contains tabular query results. NULL cells are null;
// cells of binary columns are base64 encoded.
type QueryResponse struct {
	Columns     []string    `json:"columns"`
	Types       []string    `json:"types"`
	Data        [][]*string `json:"data"`
	RecordsRead int         `json:"records_read"`
	TimeMs      float64     `json:"time_ms"`
}

// ExecResponse acknowledges a statement without result columns.
type ExecResponse struct {
	TimeMs float64 `json:"time_ms"`
}

// AuthResponse contains authentication result.
type AuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	Identity      string `json:"identity,omitempty"`
	ExpiresIn     int    `json:"expires_in,omitempty"` // seconds until token expires
}

// EncodeResponse serializes a Response to JSON with a newline.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeResponse parses one response line.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	err := json.Unmarshal(bytes.TrimSpace(data), &resp)
	return resp, err
}

// EncodeRequest serializes a Request to JSON with a newline.
func EncodeRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeRequest parses a request line. Lines that are not a JSON object
// are taken as raw SQL.
func DecodeRequest(data []byte) (Request, error) {
	line := bytes.TrimSpace(data)
	if len(line) == 0 || line[0] != '{' {
		return Request{Query: string(line)}, nil
	}
	var req Request
	err := json.Unmarshal(line, &req)
	return req, err
}

// Success wraps result as a successful response of the given type.
func Success(responseType string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return Failure(responseType, fmt.Errorf("failed to encode result: %w", err))
	}
	return Response{Success: true, Type: responseType, Result: data}
}

// Failure is an unsuccessful response carrying err.
func Failure(responseType string, err error) Response {
	return Response{Success: false, Type: responseType, Error: err.Error()}
}

// NewQueryResponse converts a db.QueryResult for the wire.
func NewQueryResponse(result db.QueryResult) QueryResponse {
	types := append([]string(nil), result.Types...)
	// Expression columns have no declared type; mark them binary when they
	// carry blobs so clients can decode them.
	for _, row := range result.Rows {
		for j, value := range row {
			if value.Kind == core.BlobKind && j < len(types) && !core.IsBinaryType(types[j]) {
				types[j] = "BLOB"
			}
		}
	}

	data := make([][]*string, len(result.Rows))
	for i, row := range result.Rows {
		data[i] = make([]*string, len(row))
		for j, value := range row {
			if j < len(types) && core.IsBinaryType(types[j]) && value.Kind != core.NullKind {
				value.Kind = core.BlobKind
			}
			data[i][j] = EncodeCell(value)
		}
	}
	return QueryResponse{
		Columns:     result.Columns,
		Types:       types,
		Data:        data,
		RecordsRead: result.RecordsRead,
		TimeMs:      result.ExecutionTimeSec * 1000,
	}
}

// EncodeCell renders one value, nil for NULL.
func EncodeCell(value core.Value) *string {
	switch value.Kind {
	case core.NullKind, core.UnsetKind:
		return nil
	case core.BlobKind:
		text := base64.StdEncoding.EncodeToString([]byte(value.Text))
		return &text
	default:
		text := value.Text
		return &text
	}
}

// DecodeCell turns a cell back into a driver value: nil, []byte for
// binary column types, string otherwise.
func DecodeCell(cell *string, declType string) (any, error) {
	if cell == nil {
		return nil, nil
	}
	if core.IsBinaryType(declType) {
		data, err := base64.StdEncoding.DecodeString(*cell)
		if err != nil {
			return nil, fmt.Errorf("invalid binary cell: %w", err)
		}
		return data, nil
	}
	return *cell, nil
}
