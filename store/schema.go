package store

import (
	"context"
	"fmt"

	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id          BIGSERIAL PRIMARY KEY,
		slug        VARCHAR(100) NOT NULL,
		name        VARCHAR(255) NOT NULL,
		domain      VARCHAR(255),
		domains     TEXT NOT NULL DEFAULT '[]',
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		template_id BIGINT,
		settings    TEXT NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tenants_active_slug ON tenants (LOWER(slug)) WHERE is_active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tenants_active_domain ON tenants (LOWER(domain)) WHERE is_active AND domain IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS pages (
		id           BIGSERIAL PRIMARY KEY,
		tenant_id    BIGINT NOT NULL REFERENCES tenants (id),
		slug         VARCHAR(200) NOT NULL,
		title        VARCHAR(255) NOT NULL,
		body         TEXT NOT NULL DEFAULT '',
		is_published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (tenant_id, slug)
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		tenant_id     BIGINT NOT NULL REFERENCES tenants (id),
		setting_key   VARCHAR(200) NOT NULL,
		setting_value TEXT NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, setting_key)
	)`,
}

// Oracle 23ai accepts IF NOT EXISTS; ids come from sequences so inserts can read them
// back without RETURNING INTO.
var oracleSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS tenants_seq`,
	`CREATE SEQUENCE IF NOT EXISTS pages_seq`,
	`CREATE TABLE IF NOT EXISTS tenants (
		id          NUMBER(19) PRIMARY KEY,
		slug        VARCHAR2(100) NOT NULL,
		name        VARCHAR2(255) NOT NULL,
		domain      VARCHAR2(255),
		domains     VARCHAR2(4000) DEFAULT '[]' NOT NULL,
		is_active   NUMBER(1) DEFAULT 1 NOT NULL,
		template_id NUMBER(19),
		settings    VARCHAR2(4000) DEFAULT '{}' NOT NULL,
		created_at  TIMESTAMP DEFAULT SYSTIMESTAMP NOT NULL,
		updated_at  TIMESTAMP DEFAULT SYSTIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pages (
		id           NUMBER(19) PRIMARY KEY,
		tenant_id    NUMBER(19) NOT NULL REFERENCES tenants (id),
		slug         VARCHAR2(200) NOT NULL,
		title        VARCHAR2(255) NOT NULL,
		body         CLOB,
		is_published NUMBER(1) DEFAULT 0 NOT NULL,
		created_at   TIMESTAMP DEFAULT SYSTIMESTAMP NOT NULL,
		updated_at   TIMESTAMP DEFAULT SYSTIMESTAMP NOT NULL,
		CONSTRAINT pages_tenant_slug UNIQUE (tenant_id, slug)
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		tenant_id     NUMBER(19) NOT NULL REFERENCES tenants (id),
		setting_key   VARCHAR2(200) NOT NULL,
		setting_value VARCHAR2(4000) NOT NULL,
		updated_at    TIMESTAMP DEFAULT SYSTIMESTAMP NOT NULL,
		CONSTRAINT settings_pk PRIMARY KEY (tenant_id, setting_key)
	)`,
}

// Schema returns the DDL statements for vendor.
func Schema(vendor string) []string {
	if vendor == database.Oracle {
		return oracleSchema
	}
	return postgresSchema
}

// Migrate creates the tables when they do not exist. Statements are idempotent.
func Migrate(ctx context.Context, db database.Interface, log logger.Logger) error {
	stmts := Schema(db.Vendor())
	for i, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate statement %d: %w", i+1, err)
		}
	}
	log.Info().Str("vendor", db.Vendor()).Int("statements", len(stmts)).Msg("Database schema ready")
	return nil
}
