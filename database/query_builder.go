package database

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
)

// QueryBuilder builds SQL with the vendor's placeholder format and pagination syntax.
// Statements against tenant-owned tables go through the Tenant* methods, which take a
// Scope and always carry the tenant predicate.
type QueryBuilder struct {
	vendor string
	sb     squirrel.StatementBuilderType
}

// NewQueryBuilder creates a builder for vendor. Unknown vendors use ? placeholders.
func NewQueryBuilder(vendor string) *QueryBuilder {
	var sb squirrel.StatementBuilderType
	switch vendor {
	case PostgreSQL:
		sb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	case Oracle:
		sb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Colon)
	default:
		sb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
	}
	return &QueryBuilder{vendor: vendor, sb: sb}
}

func (qb *QueryBuilder) Vendor() string {
	return qb.vendor
}

// Select, Insert, Update and Delete build statements for tables that are not
// tenant-owned, such as the tenants table itself.
func (qb *QueryBuilder) Select(columns ...string) squirrel.SelectBuilder {
	return qb.sb.Select(columns...)
}

func (qb *QueryBuilder) Insert(table string) squirrel.InsertBuilder {
	return qb.sb.Insert(table)
}

func (qb *QueryBuilder) Update(table string) squirrel.UpdateBuilder {
	return qb.sb.Update(table)
}

func (qb *QueryBuilder) Delete(table string) squirrel.DeleteBuilder {
	return qb.sb.Delete(table)
}

// Paginate applies limit and offset. Oracle gets OFFSET/FETCH NEXT (12c+).
func (qb *QueryBuilder) Paginate(query squirrel.SelectBuilder, limit, offset int) squirrel.SelectBuilder {
	if qb.vendor == Oracle {
		if suffix := oraclePagination(limit, offset); suffix != "" {
			return query.Suffix(suffix)
		}
		return query
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	if offset > 0 {
		query = query.Offset(uint64(offset))
	}
	return query
}

func oraclePagination(limit, offset int) string {
	var parts []string
	if offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d ROWS", offset))
	}
	if limit > 0 {
		parts = append(parts, fmt.Sprintf("FETCH NEXT %d ROWS ONLY", limit))
	}
	return strings.Join(parts, " ")
}

// BooleanValue converts b to the vendor's representation; Oracle stores NUMBER(1).
func (qb *QueryBuilder) BooleanValue(b bool) any {
	if qb.vendor == Oracle {
		if b {
			return 1
		}
		return 0
	}
	return b
}

// CurrentTimestamp returns the vendor's current-time expression.
func (qb *QueryBuilder) CurrentTimestamp() string {
	if qb.vendor == Oracle {
		return "SYSTIMESTAMP"
	}
	return "NOW()"
}
