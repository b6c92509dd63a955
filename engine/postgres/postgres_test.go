package postgres

import (
	"context"
	"strings"
	"testing"
)

func TestOpenInvalidDSN(t *testing.T) {
	_, err := Open(context.Background(), "postgres://user@localhost:notaport/db")
	if err == nil {
		t.Fatal("Expected error for invalid dsn")
	}
	if !strings.Contains(err.Error(), "invalid postgres dsn") {
		t.Errorf("Expected invalid dsn error, got %v", err)
	}
}
