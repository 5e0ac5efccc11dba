package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
)

const pagesTable = "pages"

var pageColumns = []string{"id", "tenant_id", "slug", "title", "body", "is_published", "updated_at"}

// Page is a tenant-owned CMS page.
type Page struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	IsPublished bool      `json:"is_published"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PageRepository reads and writes pages. Every method takes the database.Scope of the
// tenant it acts for.
type PageRepository struct {
	db  database.Interface
	qb  *database.QueryBuilder
	log logger.Logger
}

func NewPageRepository(db database.Interface, log logger.Logger) *PageRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &PageRepository{db: db, qb: database.NewQueryBuilder(db.Vendor()), log: log}
}

// ListOptions pages through List results. Zero Limit means no limit.
type ListOptions struct {
	Limit         int
	Offset        int
	PublishedOnly bool
}

// List returns the tenant's pages ordered by slug.
func (r *PageRepository) List(ctx context.Context, scope database.Scope, opts ListOptions) ([]Page, error) {
	return r.list(ctx, r.db, scope, opts)
}

func (r *PageRepository) list(ctx context.Context, q database.Querier, scope database.Scope, opts ListOptions) ([]Page, error) {
	sel, err := r.qb.TenantSelect(scope, pagesTable, pageColumns...)
	if err != nil {
		return nil, err
	}
	if opts.PublishedOnly {
		sel = sel.Where(squirrel.Eq{"is_published": r.qb.BooleanValue(true)})
	}
	sel = r.qb.Paginate(sel.OrderBy("slug"), opts.Limit, opts.Offset)

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build page query: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list pages: %w", err)
	}
	defer rows.Close()

	var out []Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list pages: %w", err)
	}
	return out, nil
}

// GetBySlug returns the tenant's page with slug.
func (r *PageRepository) GetBySlug(ctx context.Context, scope database.Scope, slug string) (*Page, error) {
	sel, err := r.qb.TenantSelect(scope, pagesTable, pageColumns...)
	if err != nil {
		return nil, err
	}
	query, args, err := sel.Where(squirrel.Eq{"slug": slug}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build page query: %w", err)
	}
	p, err := scanPage(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: page %q", ErrNotFound, slug)
	}
	return p, err
}

// Create inserts p for the scope's tenant. p.TenantID is set from the scope.
func (r *PageRepository) Create(ctx context.Context, scope database.Scope, p *Page) error {
	return r.create(ctx, r.db, scope, p)
}

func (r *PageRepository) create(ctx context.Context, q database.Querier, scope database.Scope, p *Page) error {
	p.Slug = strings.ToLower(strings.TrimSpace(p.Slug))
	values := map[string]any{
		"slug":         p.Slug,
		"title":        p.Title,
		"body":         p.Body,
		"is_published": r.qb.BooleanValue(p.IsPublished),
	}

	if r.qb.Vendor() == database.Oracle {
		if err := q.QueryRow(ctx, "SELECT pages_seq.NEXTVAL FROM DUAL").Scan(&p.ID); err != nil {
			return fmt.Errorf("store: next page id: %w", err)
		}
		values["id"] = p.ID
		ins, err := r.qb.TenantInsert(scope, pagesTable, values)
		if err != nil {
			return err
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("store: build page insert: %w", err)
		}
		if _, err := q.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("store: insert page: %w", err)
		}
	} else {
		ins, err := r.qb.TenantInsert(scope, pagesTable, values)
		if err != nil {
			return err
		}
		query, args, err := ins.Suffix("RETURNING id").ToSql()
		if err != nil {
			return fmt.Errorf("store: build page insert: %w", err)
		}
		if err := q.QueryRow(ctx, query, args...).Scan(&p.ID); err != nil {
			return fmt.Errorf("store: insert page: %w", err)
		}
	}
	p.TenantID = scope.TenantID()
	return nil
}

// Update rewrites title, body and published flag of the tenant's page with p.Slug.
func (r *PageRepository) Update(ctx context.Context, scope database.Scope, p *Page) error {
	upd, err := r.qb.TenantUpdate(scope, pagesTable, map[string]any{
		"title":        p.Title,
		"body":         p.Body,
		"is_published": r.qb.BooleanValue(p.IsPublished),
		"updated_at":   squirrel.Expr(r.qb.CurrentTimestamp()),
	})
	if err != nil {
		return err
	}
	query, args, err := upd.Where(squirrel.Eq{"slug": p.Slug}).ToSql()
	if err != nil {
		return fmt.Errorf("store: build page update: %w", err)
	}
	res, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: update page: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: page %q", ErrNotFound, p.Slug)
	}
	p.TenantID = scope.TenantID()
	return nil
}

// Delete removes the tenant's page with slug.
func (r *PageRepository) Delete(ctx context.Context, scope database.Scope, slug string) error {
	del, err := r.qb.TenantDelete(scope, pagesTable)
	if err != nil {
		return err
	}
	query, args, err := del.Where(squirrel.Eq{"slug": slug}).ToSql()
	if err != nil {
		return fmt.Errorf("store: build page delete: %w", err)
	}
	res, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: delete page: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: page %q", ErrNotFound, slug)
	}
	return nil
}

// CopyPages copies every page of tenant from to tenant to, skipping slugs the target
// already has. Both tenants must be named by admin. The copy runs in one transaction
// and returns the number of pages created.
func (r *PageRepository) CopyPages(ctx context.Context, admin database.AdminScope, from, to int64) (int, error) {
	src, err := admin.ScopeFor(from)
	if err != nil {
		return 0, err
	}
	dst, err := admin.ScopeFor(to)
	if err != nil {
		return 0, err
	}
	if from == to {
		return 0, fmt.Errorf("%w: source and target tenant are the same", ErrConflict)
	}

	copied := 0
	err = database.WithTx(ctx, r.db, func(tx database.Tx) error {
		pages, err := r.list(ctx, tx, src, ListOptions{})
		if err != nil {
			return err
		}
		existing, err := r.list(ctx, tx, dst, ListOptions{})
		if err != nil {
			return err
		}
		taken := make(map[string]struct{}, len(existing))
		for _, p := range existing {
			taken[p.Slug] = struct{}{}
		}

		for i := range pages {
			p := pages[i]
			if _, ok := taken[p.Slug]; ok {
				continue
			}
			if err := r.create(ctx, tx, dst, &p); err != nil {
				return err
			}
			copied++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: copy pages: %w", err)
	}

	r.log.Info().
		Str("reason", admin.Reason()).
		Int64("from_tenant_id", from).
		Int64("to_tenant_id", to).
		Int("copied", copied).
		Msg("Copied pages between tenants")
	return copied, nil
}

func scanPage(row rowScanner) (*Page, error) {
	var (
		p         Page
		body      sql.NullString
		published flag
		updatedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.Slug, &p.Title, &body, &published, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan page: %w", err)
	}
	p.Body = body.String
	p.IsPublished = bool(published)
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}
