package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/hyvewellness/tenantgate/database"
)

const settingsTable = "settings"

// SettingRepository stores per-tenant key/value settings.
type SettingRepository struct {
	db database.Interface
	qb *database.QueryBuilder
}

func NewSettingRepository(db database.Interface) *SettingRepository {
	return &SettingRepository{db: db, qb: database.NewQueryBuilder(db.Vendor())}
}

// All returns every setting of the scope's tenant.
func (r *SettingRepository) All(ctx context.Context, scope database.Scope) (map[string]string, error) {
	sel, err := r.qb.TenantSelect(scope, settingsTable, "setting_key", "setting_value")
	if err != nil {
		return nil, err
	}
	query, args, err := sel.OrderBy("setting_key").ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build settings query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: scan setting: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list settings: %w", err)
	}
	return out, nil
}

// Get returns one setting of the scope's tenant.
func (r *SettingRepository) Get(ctx context.Context, scope database.Scope, key string) (string, error) {
	sel, err := r.qb.TenantSelect(scope, settingsTable, "setting_value")
	if err != nil {
		return "", err
	}
	query, args, err := sel.Where(squirrel.Eq{"setting_key": key}).ToSql()
	if err != nil {
		return "", fmt.Errorf("store: build settings query: %w", err)
	}
	var v string
	if err := r.db.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: setting %q", ErrNotFound, key)
		}
		return "", fmt.Errorf("store: get setting: %w", err)
	}
	return v, nil
}

// Put creates or replaces one setting of the scope's tenant.
func (r *SettingRepository) Put(ctx context.Context, scope database.Scope, key, value string) error {
	return database.WithTx(ctx, r.db, func(tx database.Tx) error {
		upd, err := r.qb.TenantUpdate(scope, settingsTable, map[string]any{
			"setting_value": value,
			"updated_at":    squirrel.Expr(r.qb.CurrentTimestamp()),
		})
		if err != nil {
			return err
		}
		query, args, err := upd.Where(squirrel.Eq{"setting_key": key}).ToSql()
		if err != nil {
			return fmt.Errorf("store: build settings update: %w", err)
		}
		res, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("store: update setting: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil || n > 0 {
			return err
		}

		ins, err := r.qb.TenantInsert(scope, settingsTable, map[string]any{
			"setting_key":   key,
			"setting_value": value,
		})
		if err != nil {
			return err
		}
		query, args, err = ins.ToSql()
		if err != nil {
			return fmt.Errorf("store: build settings insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("store: insert setting: %w", err)
		}
		return nil
	})
}
