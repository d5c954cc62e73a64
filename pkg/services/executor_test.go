package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestPgFailure(t *testing.T) {
	t.Run("pg error carries sqlstate", func(t *testing.T) {
		f := pgFailure(&pgconn.PgError{Code: "42703", Message: "column x does not exist", Hint: "try y"})
		if f.SQLState != "42703" || f.Hint != "try y" {
			t.Errorf("got %+v", f)
		}
	})

	t.Run("deadline maps to query cancel", func(t *testing.T) {
		f := pgFailure(context.DeadlineExceeded)
		if f.SQLState != "57014" {
			t.Errorf("got %+v", f)
		}
	})

	t.Run("wrapped pg error unwraps", func(t *testing.T) {
		wrapped := errors.Join(errors.New("query"), &pgconn.PgError{Code: "42601", Message: "syntax error"})
		f := pgFailure(wrapped)
		if f.SQLState != "42601" {
			t.Errorf("got %+v", f)
		}
	})

	t.Run("plain error has no sqlstate", func(t *testing.T) {
		f := pgFailure(errors.New("connection refused"))
		if f.SQLState != "" || f.Message != "connection refused" {
			t.Errorf("got %+v", f)
		}
	})
}

func TestTypeName(t *testing.T) {
	if got := typeName(pgtype.Int8OID); got != "int8" {
		t.Errorf("int8 oid = %q", got)
	}
	if got := typeName(pgtype.TextOID); got != "text" {
		t.Errorf("text oid = %q", got)
	}
	if got := typeName(99999999); got != "" {
		t.Errorf("unknown oid = %q, want empty", got)
	}
}

func TestNormalizeValue(t *testing.T) {
	uuidBytes := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	if got := normalizeValue(uuidBytes); got != "12345678-9abc-def0-1234-56789abcdef0" {
		t.Errorf("uuid = %v", got)
	}

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := normalizeValue(ts); got != "2024-03-01T12:00:00Z" {
		t.Errorf("time = %v", got)
	}

	if got := normalizeValue(int64(42)); got != int64(42) {
		t.Errorf("passthrough = %v", got)
	}
	if got := normalizeValue(nil); got != nil {
		t.Errorf("nil = %v", got)
	}
}
