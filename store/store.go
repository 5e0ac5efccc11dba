// Package store holds the SQL repositories: tenants, and the tenant-owned pages and
// settings. Every statement against a tenant-owned table is built through a
// database.Scope.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a slug or domain is already held by another active
	// tenant, or a page slug already exists for the tenant.
	ErrConflict = errors.New("store: conflict")
)

// flag scans boolean columns stored as BOOLEAN (PostgreSQL) or NUMBER(1) (Oracle).
type flag bool

func (f *flag) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = false
	case bool:
		*f = flag(v)
	case int64:
		*f = v != 0
	case float64:
		*f = v != 0
	case []byte:
		return f.parse(string(v))
	case string:
		return f.parse(v)
	default:
		return fmt.Errorf("store: cannot scan %T into bool", src)
	}
	return nil
}

func (f *flag) parse(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("store: cannot scan %q into bool: %w", s, err)
	}
	*f = flag(b)
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: rows affected: %w", err)
	}
	return n, nil
}
