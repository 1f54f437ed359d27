package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	_ ShareRepository         = (*PostgresRepositories)(nil)
	_ ConnectionRepository    = (*PostgresRepositories)(nil)
	_ AlertRepository         = (*PostgresRepositories)(nil)
	_ ApiKeyRepository        = (*PostgresRepositories)(nil)
	_ ConfigHistoryRepository = (*PostgresRepositories)(nil)
	_ TemplateRepository      = (*PostgresRepositories)(nil)
)

// PostgresRepositories implements every repository interface against a
// single *sqlx.DB, matching the teacher's community/monitoring repository
// style of named-field scans rather than hand-rolled rows.Scan calls.
type PostgresRepositories struct {
	db *sqlx.DB
}

// NewPostgresRepositories wraps an already-established connection pool.
func NewPostgresRepositories(pool *ConnectionPool) *PostgresRepositories {
	return &PostgresRepositories{db: sqlx.NewDb(pool.DB(), "postgres")}
}

// CreateShare inserts a single share.
func (r *PostgresRepositories) CreateShare(ctx context.Context, share *ShareRow) error {
	query := `
		INSERT INTO shares (connection_id, job_id, extranonce2, ntime, nonce, difficulty, result, hash, submitted_at)
		VALUES (:connection_id, :job_id, :extranonce2, :ntime, :nonce, :difficulty, :result, :hash, NOW())
		RETURNING id, submitted_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, share)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&share.ID, &share.SubmittedAt); err != nil {
			return fmt.Errorf("failed to scan created share: %w", err)
		}
	}
	return rows.Err()
}

// CreateShareBatch inserts many shares in a single statement, for the
// throughput a busy pool needs at share-submission rate.
func (r *PostgresRepositories) CreateShareBatch(ctx context.Context, shares []*ShareRow) error {
	if len(shares) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO shares (connection_id, job_id, extranonce2, ntime, nonce, difficulty, result, hash, submitted_at) VALUES ")
	args := make([]interface{}, 0, len(shares)*8)
	for i, s := range shares {
		base := i * 8
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args, s.ConnectionID, s.JobID, s.Extranonce2, s.NTime, s.Nonce, s.Difficulty, s.Result, s.Hash)
	}

	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to batch insert shares: %w", err)
	}
	return nil
}

// RecordShare inserts share and increments the owning connection's
// total_shares/valid_shares counters in a single transaction, so a crash
// between the two can never leave one written without the other.
func (r *PostgresRepositories) RecordShare(ctx context.Context, share *ShareRow, valid bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin share transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO shares (connection_id, job_id, extranonce2, ntime, nonce, difficulty, result, hash, submitted_at)
		VALUES (:connection_id, :job_id, :extranonce2, :ntime, :nonce, :difficulty, :result, :hash, NOW())
		RETURNING id, submitted_at
	`
	rows, err := tx.NamedQuery(query, share)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	if rows.Next() {
		if err := rows.Scan(&share.ID, &share.SubmittedAt); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan created share: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	counterQuery := `UPDATE connections SET total_shares = total_shares + 1 WHERE id = $1`
	if valid {
		counterQuery = `UPDATE connections SET total_shares = total_shares + 1, valid_shares = valid_shares + 1 WHERE id = $1`
	}
	if _, err := tx.ExecContext(ctx, counterQuery, share.ConnectionID); err != nil {
		return fmt.Errorf("failed to increment connection counters: %w", err)
	}

	return tx.Commit()
}

// GetSharesByConnection returns the most recent shares for a connection.
func (r *PostgresRepositories) GetSharesByConnection(ctx context.Context, connectionID string, limit int) ([]*ShareRow, error) {
	query := `
		SELECT id, connection_id, job_id, extranonce2, ntime, nonce, difficulty, result, hash, submitted_at
		FROM shares WHERE connection_id = $1 ORDER BY submitted_at DESC LIMIT $2
	`
	var out []*ShareRow
	if err := r.db.SelectContext(ctx, &out, query, connectionID, limit); err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	return out, nil
}

// GetShareCount counts shares submitted by connectionID since the given time.
func (r *PostgresRepositories) GetShareCount(ctx context.Context, connectionID string, since time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM shares WHERE connection_id = $1 AND submitted_at >= $2`
	if err := r.db.GetContext(ctx, &count, query, connectionID, since); err != nil {
		return 0, fmt.Errorf("failed to count shares: %w", err)
	}
	return count, nil
}

// RecordConnection persists a connection's opening metadata.
func (r *PostgresRepositories) RecordConnection(ctx context.Context, conn *ConnectionRow) error {
	query := `
		INSERT INTO connections (id, remote_addr, protocol, worker_name, connected_at)
		VALUES (:id, :remote_addr, :protocol, :worker_name, :connected_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, conn)
	if err != nil {
		return fmt.Errorf("failed to record connection: %w", err)
	}
	return nil
}

// RecordDisconnect stamps a connection's close time.
func (r *PostgresRepositories) RecordDisconnect(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE connections SET disconnected_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to record disconnect: %w", err)
	}
	return nil
}

// GetConnectionByID retrieves one connection's history row.
func (r *PostgresRepositories) GetConnectionByID(ctx context.Context, id string) (*ConnectionRow, error) {
	c := &ConnectionRow{}
	query := `SELECT id, remote_addr, protocol, worker_name, connected_at, disconnected_at FROM connections WHERE id = $1`
	err := r.db.GetContext(ctx, c, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("connection not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return c, nil
}

// GetRecentConnections lists the most recently opened connections.
func (r *PostgresRepositories) GetRecentConnections(ctx context.Context, limit int) ([]*ConnectionRow, error) {
	query := `SELECT id, remote_addr, protocol, worker_name, connected_at, disconnected_at FROM connections ORDER BY connected_at DESC LIMIT $1`
	var out []*ConnectionRow
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	return out, nil
}

// CreateAlert persists an alert.
func (r *PostgresRepositories) CreateAlert(ctx context.Context, a *AlertRow) error {
	query := `
		INSERT INTO alerts (id, severity, component, message, created_at)
		VALUES (:id, :severity, :component, :message, NOW())
	`
	_, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetRecentAlerts lists the most recent alerts.
func (r *PostgresRepositories) GetRecentAlerts(ctx context.Context, limit int) ([]*AlertRow, error) {
	query := `SELECT id, severity, component, message, created_at FROM alerts ORDER BY created_at DESC LIMIT $1`
	var out []*AlertRow
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return out, nil
}

// CreateApiKey persists a new API key. Only the secret hash is stored.
func (r *PostgresRepositories) CreateApiKey(ctx context.Context, k *ApiKeyRow) error {
	query := `
		INSERT INTO api_keys (id, name, secret_hash, permissions, created_at, revoked)
		VALUES (:id, :name, :secret_hash, :permissions, NOW(), false)
	`
	_, err := r.db.NamedExecContext(ctx, query, k)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// RevokeApiKey marks a key revoked; revoked keys fail every future auth check.
func (r *PostgresRepositories) RevokeApiKey(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE api_keys SET revoked = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("api key not found")
	}
	return nil
}

// GetApiKeyByID retrieves one key by ID.
func (r *PostgresRepositories) GetApiKeyByID(ctx context.Context, id string) (*ApiKeyRow, error) {
	k := &ApiKeyRow{}
	query := `SELECT id, name, secret_hash, permissions, created_at, revoked FROM api_keys WHERE id = $1`
	err := r.db.GetContext(ctx, k, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("api key not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return k, nil
}

// GetApiKeyByHash retrieves one key by its hashed secret, used to
// authenticate X-Api-Key headers and the session-issuing endpoint without
// ever storing or comparing raw secrets.
func (r *PostgresRepositories) GetApiKeyByHash(ctx context.Context, secretHash string) (*ApiKeyRow, error) {
	k := &ApiKeyRow{}
	query := `SELECT id, name, secret_hash, permissions, created_at, revoked FROM api_keys WHERE secret_hash = $1`
	err := r.db.GetContext(ctx, k, query, secretHash)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("api key not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return k, nil
}

// ListApiKeys lists every key, revoked or not.
func (r *PostgresRepositories) ListApiKeys(ctx context.Context) ([]*ApiKeyRow, error) {
	var out []*ApiKeyRow
	query := `SELECT id, name, secret_hash, permissions, created_at, revoked FROM api_keys ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	return out, nil
}

// RecordConfigChange appends a configuration snapshot.
func (r *PostgresRepositories) RecordConfigChange(ctx context.Context, entry *ConfigHistoryRow) error {
	query := `
		INSERT INTO config_history (applied_at, applied_by, yaml_config)
		VALUES (NOW(), :applied_by, :yaml_config)
		RETURNING id, applied_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("failed to record config change: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&entry.ID, &entry.AppliedAt); err != nil {
			return fmt.Errorf("failed to scan recorded config change: %w", err)
		}
	}
	return rows.Err()
}

// GetLatestConfig returns the most recently applied config snapshot.
func (r *PostgresRepositories) GetLatestConfig(ctx context.Context) (*ConfigHistoryRow, error) {
	e := &ConfigHistoryRow{}
	query := `SELECT id, applied_at, applied_by, yaml_config FROM config_history ORDER BY applied_at DESC LIMIT 1`
	err := r.db.GetContext(ctx, e, query)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no config history recorded")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest config: %w", err)
	}
	return e, nil
}

// ListConfigHistory lists the most recent config snapshots.
func (r *PostgresRepositories) ListConfigHistory(ctx context.Context, limit int) ([]*ConfigHistoryRow, error) {
	query := `SELECT id, applied_at, applied_by, yaml_config FROM config_history ORDER BY applied_at DESC LIMIT $1`
	var out []*ConfigHistoryRow
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query config history: %w", err)
	}
	return out, nil
}

// SaveTemplate persists the current work template for restart recovery.
func (r *PostgresRepositories) SaveTemplate(ctx context.Context, t *TemplateRow) error {
	query := `
		INSERT INTO templates (job_id, height, prev_hash, fetched_at)
		VALUES (:job_id, :height, :prev_hash, :fetched_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, t)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// GetLatestTemplate returns the most recently fetched template.
func (r *PostgresRepositories) GetLatestTemplate(ctx context.Context) (*TemplateRow, error) {
	t := &TemplateRow{}
	query := `SELECT job_id, height, prev_hash, fetched_at FROM templates ORDER BY fetched_at DESC LIMIT 1`
	err := r.db.GetContext(ctx, t, query)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no template recorded")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest template: %w", err)
	}
	return t, nil
}

// GetTemplateByID retrieves one template by job ID.
func (r *PostgresRepositories) GetTemplateByID(ctx context.Context, jobID string) (*TemplateRow, error) {
	t := &TemplateRow{}
	query := `SELECT job_id, height, prev_hash, fetched_at FROM templates WHERE job_id = $1`
	err := r.db.GetContext(ctx, t, query, jobID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// ListTemplates lists the most recently fetched templates.
func (r *PostgresRepositories) ListTemplates(ctx context.Context, limit int) ([]*TemplateRow, error) {
	query := `SELECT job_id, height, prev_hash, fetched_at FROM templates ORDER BY fetched_at DESC LIMIT $1`
	var out []*TemplateRow
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	return out, nil
}
