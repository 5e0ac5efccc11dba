package database

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/hyvewellness/tenantgate/tenant"
)

// TenantColumn is the owner column every tenant-owned table carries.
const TenantColumn = "tenant_id"

var (
	// ErrMissingTenant is returned when a tenant-owned statement is built without a
	// valid tenant id.
	ErrMissingTenant = errors.New("database: tenant scope required")
	// ErrOutsideAdminScope is returned when an admin scope is asked for a tenant it
	// does not name.
	ErrOutsideAdminScope = errors.New("database: tenant not named by admin scope")
	// ErrNoValues is returned by TenantUpdate when nothing is left to set.
	ErrNoValues = errors.New("database: no values to write")
)

// Scope binds data access to one tenant. The zero Scope is invalid and every
// tenant-owned builder rejects it.
type Scope struct {
	tenantID int64
}

// NewScope returns a Scope for tenantID, which must be positive.
func NewScope(tenantID int64) (Scope, error) {
	if tenantID <= 0 {
		return Scope{}, ErrMissingTenant
	}
	return Scope{tenantID: tenantID}, nil
}

// ScopeFromContext builds a Scope from the tenant resolved for the request.
func ScopeFromContext(ctx context.Context) (Scope, error) {
	id, ok := tenant.IDFromContext(ctx)
	if !ok {
		return Scope{}, ErrMissingTenant
	}
	return NewScope(id)
}

func (s Scope) TenantID() int64 { return s.tenantID }

func (s Scope) Valid() bool { return s.tenantID > 0 }

func (s Scope) predicate(table string) squirrel.Eq {
	return squirrel.Eq{qualify(table, TenantColumn): s.tenantID}
}

// AdminScope authorises cross-tenant operations. It must state why it exists and
// which tenants it acts on; each tenant-owned statement still runs under a Scope
// obtained through ScopeFor.
type AdminScope struct {
	reason  string
	tenants []int64
}

// NewAdminScope creates an admin scope over the named tenants.
func NewAdminScope(reason string, tenantIDs ...int64) (AdminScope, error) {
	if strings.TrimSpace(reason) == "" {
		return AdminScope{}, errors.New("database: admin scope requires a reason")
	}
	if len(tenantIDs) == 0 {
		return AdminScope{}, ErrMissingTenant
	}
	for _, id := range tenantIDs {
		if id <= 0 {
			return AdminScope{}, fmt.Errorf("%w: invalid tenant id %d", ErrMissingTenant, id)
		}
	}
	return AdminScope{reason: reason, tenants: slices.Clone(tenantIDs)}, nil
}

// ScopeFor returns the Scope for one of the tenants the admin scope names.
func (a AdminScope) ScopeFor(tenantID int64) (Scope, error) {
	if !slices.Contains(a.tenants, tenantID) {
		return Scope{}, fmt.Errorf("%w: %d", ErrOutsideAdminScope, tenantID)
	}
	return NewScope(tenantID)
}

func (a AdminScope) Reason() string { return a.reason }

func (a AdminScope) Tenants() []int64 { return slices.Clone(a.tenants) }

// TenantSelect selects from a tenant-owned table. Further Where calls are ANDed with
// the tenant predicate.
func (qb *QueryBuilder) TenantSelect(s Scope, table string, columns ...string) (squirrel.SelectBuilder, error) {
	if !s.Valid() {
		return squirrel.SelectBuilder{}, ErrMissingTenant
	}
	return qb.sb.Select(columns...).From(table).Where(s.predicate(table)), nil
}

// TenantInsert inserts one row owned by the scope's tenant. A tenant_id in values is
// overwritten.
func (qb *QueryBuilder) TenantInsert(s Scope, table string, values map[string]any) (squirrel.InsertBuilder, error) {
	if !s.Valid() {
		return squirrel.InsertBuilder{}, ErrMissingTenant
	}
	row := make(map[string]any, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	row[TenantColumn] = s.tenantID
	return qb.sb.Insert(table).SetMap(row), nil
}

// TenantUpdate updates rows of the scope's tenant. tenant_id is never rewritten.
func (qb *QueryBuilder) TenantUpdate(s Scope, table string, values map[string]any) (squirrel.UpdateBuilder, error) {
	if !s.Valid() {
		return squirrel.UpdateBuilder{}, ErrMissingTenant
	}
	set := make(map[string]any, len(values))
	for k, v := range values {
		if k == TenantColumn {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		return squirrel.UpdateBuilder{}, ErrNoValues
	}
	return qb.sb.Update(table).SetMap(set).Where(s.predicate(table)), nil
}

// TenantDelete deletes rows of the scope's tenant.
func (qb *QueryBuilder) TenantDelete(s Scope, table string) (squirrel.DeleteBuilder, error) {
	if !s.Valid() {
		return squirrel.DeleteBuilder{}, ErrMissingTenant
	}
	return qb.sb.Delete(table).Where(s.predicate(table)), nil
}

func qualify(table, column string) string {
	if table == "" {
		return column
	}
	// "pages p" → "p.tenant_id"
	if fields := strings.Fields(table); len(fields) > 1 {
		return fields[len(fields)-1] + "." + column
	}
	return table + "." + column
}
