package postgres

import (
	"context"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestCell(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"text", "x", "x"},
		{"int", int64(3), int64(3)},
		{"uuid", [16]byte(id), id.String()},
		{"numeric", pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}, "123.45"},
		{"null numeric", pgtype.Numeric{}, nil},
		{"time passes through", ts, ts},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := cell(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("cell(%#v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOpenRejectsBadDSN(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), "host=localhost port=notaport"); err == nil {
		t.Fatalf("Open(bad dsn) error = nil")
	}
}

func TestTypeName(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()
	tests := []struct {
		oid  uint32
		want string
	}{
		{pgtype.ByteaOID, "BYTEA"},
		{pgtype.TextOID, "TEXT"},
		{pgtype.UUIDOID, "UUID"},
		{999999, ""},
	}
	for _, tt := range tests {
		if got := typeName(m, tt.oid); got != tt.want {
			t.Fatalf("typeName(%d) = %q, want %q", tt.oid, got, tt.want)
		}
	}
}
