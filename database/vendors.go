package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/hyvewellness/tenantgate/config"
)

var (
	openPostgresDB = func(cfg *pgx.ConnConfig) *sql.DB {
		return stdlib.OpenDB(*cfg)
	}
	openOracleDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("oracle", dsn)
	}
)

func openPostgres(cfg *config.DatabaseConfig) (*sql.DB, error) {
	pgxConfig, err := pgx.ParseConfig(postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}
	return openPostgresDB(pgxConfig), nil
}

func postgresDSN(cfg *config.DatabaseConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}
	parts := []string{
		"host=" + quoteDSN(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		"user=" + quoteDSN(cfg.Username),
		"password=" + quoteDSN(cfg.Password),
		"dbname=" + quoteDSN(cfg.Database),
	}
	if cfg.SSLMode != "" {
		parts = append(parts, "sslmode="+cfg.SSLMode)
	}
	return strings.Join(parts, " ")
}

// quoteDSN quotes a keyword/value DSN value following libpq rules.
func quoteDSN(value string) string {
	if value == "" {
		return "''"
	}
	plain := true
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') &&
			(r < '0' || r > '9') && r != '.' && r != '_' && r != '-' {
			plain = false
			break
		}
	}
	if plain {
		return value
	}
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	return "'" + escaped + "'"
}

func openOracle(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := openOracleDB(oracleDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open Oracle connection: %w", err)
	}
	return db, nil
}

func oracleDSN(cfg *config.DatabaseConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}
	service := cfg.ServiceName
	if service == "" {
		service = cfg.Database
	}
	return go_ora.BuildUrl(cfg.Host, cfg.Port, service, cfg.Username, cfg.Password, nil)
}
