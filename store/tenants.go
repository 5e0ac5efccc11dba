package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/tenant"
	"github.com/hyvewellness/tenantgate/tenant/invalidation"
)

const tenantsTable = "tenants"

var tenantColumns = []string{"id", "slug", "name", "domain", "domains", "is_active", "template_id", "settings"}

// TenantRepository persists tenants and announces every change on the invalidation bus.
// It is also the directory's tenant.Source when tenancy.source is "database".
type TenantRepository struct {
	db  database.Interface
	qb  *database.QueryBuilder
	bus invalidation.Bus
	log logger.Logger
}

// NewTenantRepository creates a repository. bus may be nil, in which case changes are
// only picked up when the directory TTL expires.
func NewTenantRepository(db database.Interface, bus invalidation.Bus, log logger.Logger) *TenantRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &TenantRepository{
		db:  db,
		qb:  database.NewQueryBuilder(db.Vendor()),
		bus: bus,
		log: log,
	}
}

// Tenants returns every tenant, active or not, ordered by id. The directory needs the
// inactive ones to tell "inactive" from "unknown".
func (r *TenantRepository) Tenants(ctx context.Context) ([]tenant.Tenant, error) {
	return r.list(ctx, r.qb.Select(tenantColumns...).From(tenantsTable).OrderBy("id"))
}

// ListActive returns the active tenants ordered by id.
func (r *TenantRepository) ListActive(ctx context.Context) ([]tenant.Tenant, error) {
	return r.list(ctx, r.qb.Select(tenantColumns...).
		From(tenantsTable).
		Where(squirrel.Eq{"is_active": r.qb.BooleanValue(true)}).
		OrderBy("id"))
}

func (r *TenantRepository) list(ctx context.Context, q squirrel.SelectBuilder) ([]tenant.Tenant, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build tenant query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tenants: %w", err)
	}
	defer rows.Close()

	var out []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list tenants: %w", err)
	}
	return out, nil
}

// Get returns the tenant with id regardless of its active flag.
func (r *TenantRepository) Get(ctx context.Context, id int64) (*tenant.Tenant, error) {
	query, args, err := r.qb.Select(tenantColumns...).From(tenantsTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build tenant query: %w", err)
	}
	t, err := scanTenant(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tenant %d", ErrNotFound, id)
	}
	return t, err
}

// Create inserts t, sets its id and publishes a created event. Slug and primary domain
// must not be held by another active tenant.
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	normalizeTenant(t)
	if t.IsActive {
		if err := r.checkUnique(ctx, t); err != nil {
			return err
		}
	}

	values, err := r.tenantValues(t)
	if err != nil {
		return err
	}

	if r.db.Vendor() == database.Oracle {
		if err := r.db.QueryRow(ctx, "SELECT tenants_seq.NEXTVAL FROM DUAL").Scan(&t.ID); err != nil {
			return fmt.Errorf("store: next tenant id: %w", err)
		}
		values["id"] = t.ID
		query, args, err := r.qb.Insert(tenantsTable).SetMap(values).ToSql()
		if err != nil {
			return fmt.Errorf("store: build tenant insert: %w", err)
		}
		if _, err := r.db.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("store: insert tenant: %w", err)
		}
	} else {
		query, args, err := r.qb.Insert(tenantsTable).SetMap(values).Suffix("RETURNING id").ToSql()
		if err != nil {
			return fmt.Errorf("store: build tenant insert: %w", err)
		}
		if err := r.db.QueryRow(ctx, query, args...).Scan(&t.ID); err != nil {
			return fmt.Errorf("store: insert tenant: %w", err)
		}
	}

	r.publish(ctx, t.ID, invalidation.KindCreated)
	return nil
}

// Update overwrites every field of the tenant with t.ID and publishes an updated event.
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	normalizeTenant(t)
	if t.IsActive {
		if err := r.checkUnique(ctx, t); err != nil {
			return err
		}
	}

	values, err := r.tenantValues(t)
	if err != nil {
		return err
	}
	values["updated_at"] = squirrel.Expr(r.qb.CurrentTimestamp())

	query, args, err := r.qb.Update(tenantsTable).SetMap(values).Where(squirrel.Eq{"id": t.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("store: build tenant update: %w", err)
	}
	res, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: update tenant: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: tenant %d", ErrNotFound, t.ID)
	}

	kind := invalidation.KindUpdated
	if !t.IsActive {
		kind = invalidation.KindDeactivated
	}
	r.publish(ctx, t.ID, kind)
	return nil
}

// Deactivate soft-disables a tenant. Tenants are never deleted while referenced.
func (r *TenantRepository) Deactivate(ctx context.Context, id int64) error {
	query, args, err := r.qb.Update(tenantsTable).
		Set("is_active", r.qb.BooleanValue(false)).
		Set("updated_at", squirrel.Expr(r.qb.CurrentTimestamp())).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build tenant update: %w", err)
	}
	res, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: deactivate tenant: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: tenant %d", ErrNotFound, id)
	}

	r.publish(ctx, id, invalidation.KindDeactivated)
	return nil
}

func (r *TenantRepository) checkUnique(ctx context.Context, t *tenant.Tenant) error {
	match := squirrel.Or{squirrel.Expr("LOWER(slug) = ?", t.Slug)}
	if t.Domain != "" {
		match = append(match, squirrel.Expr("LOWER(domain) = ?", t.Domain))
	}
	sel := r.qb.Select("id", "slug", "domain").
		From(tenantsTable).
		Where(squirrel.Eq{"is_active": r.qb.BooleanValue(true)}).
		Where(match)
	if t.ID > 0 {
		sel = sel.Where(squirrel.NotEq{"id": t.ID})
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return fmt.Errorf("store: build uniqueness query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: check tenant uniqueness: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id     int64
			slug   string
			domain sql.NullString
		)
		if err := rows.Scan(&id, &slug, &domain); err != nil {
			return fmt.Errorf("store: scan tenant: %w", err)
		}
		if strings.EqualFold(slug, t.Slug) {
			return fmt.Errorf("%w: slug %q is used by tenant %d", ErrConflict, t.Slug, id)
		}
		return fmt.Errorf("%w: domain %q is used by tenant %d", ErrConflict, t.Domain, id)
	}
	return rows.Err()
}

func (r *TenantRepository) tenantValues(t *tenant.Tenant) (map[string]any, error) {
	domains, err := encodeJSON(t.Domains, "[]")
	if err != nil {
		return nil, fmt.Errorf("store: encode domains: %w", err)
	}
	settings, err := encodeJSON(t.Settings, "{}")
	if err != nil {
		return nil, fmt.Errorf("store: encode settings: %w", err)
	}
	values := map[string]any{
		"slug":        t.Slug,
		"name":        t.Name,
		"domain":      nullString(t.Domain),
		"domains":     domains,
		"is_active":   r.qb.BooleanValue(t.IsActive),
		"template_id": sql.NullInt64{},
		"settings":    settings,
	}
	if t.TemplateID != nil {
		values["template_id"] = sql.NullInt64{Int64: *t.TemplateID, Valid: true}
	}
	return values, nil
}

func (r *TenantRepository) publish(ctx context.Context, id int64, kind invalidation.Kind) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, invalidation.NewEvent(id, kind)); err != nil {
		// The write is committed; other instances catch up when their TTL expires.
		r.log.Warn().Err(err).Int64("tenant_id", id).Str("kind", string(kind)).Msg("Failed to publish tenant invalidation")
	}
}

func normalizeTenant(t *tenant.Tenant) {
	t.Slug = strings.ToLower(strings.TrimSpace(t.Slug))
	t.Name = strings.TrimSpace(t.Name)
	t.Domain = tenant.NormalizeDomain(t.Domain)

	domains := make([]string, 0, len(t.Domains))
	for _, d := range t.Domains {
		if d = tenant.NormalizeDomain(d); d != "" {
			domains = append(domains, d)
		}
	}
	t.Domains = domains
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*tenant.Tenant, error) {
	var (
		t          tenant.Tenant
		domain     sql.NullString
		domains    sql.NullString
		active     flag
		templateID sql.NullInt64
		settings   sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &domain, &domains, &active, &templateID, &settings); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan tenant: %w", err)
	}

	t.Domain = domain.String
	t.IsActive = bool(active)
	if templateID.Valid {
		id := templateID.Int64
		t.TemplateID = &id
	}
	if domains.Valid && domains.String != "" {
		if err := json.Unmarshal([]byte(domains.String), &t.Domains); err != nil {
			return nil, fmt.Errorf("store: decode domains of tenant %d: %w", t.ID, err)
		}
	}
	if settings.Valid && settings.String != "" {
		if err := json.Unmarshal([]byte(settings.String), &t.Settings); err != nil {
			return nil, fmt.Errorf("store: decode settings of tenant %d: %w", t.ID, err)
		}
	}
	return &t, nil
}

var _ tenant.Source = (*TenantRepository)(nil)
