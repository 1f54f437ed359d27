package database

import (
	"database/sql"
	"time"
)

// ConnectionRow is the persisted projection of a downstream connection,
// written on disconnect for historical/audit queries; the live connection
// state itself lives only in the stratum server's in-memory registry.
type ConnectionRow struct {
	ID             string       `json:"id" db:"id"`
	RemoteAddr     string       `json:"remote_addr" db:"remote_addr"`
	Protocol       string       `json:"protocol" db:"protocol"`
	WorkerName     string       `json:"worker_name" db:"worker_name"`
	TotalShares    int64        `json:"total_shares" db:"total_shares"`
	ValidShares    int64        `json:"valid_shares" db:"valid_shares"`
	ConnectedAt    time.Time    `json:"connected_at" db:"connected_at"`
	DisconnectedAt sql.NullTime `json:"disconnected_at" db:"disconnected_at"`
}

// ShareRow is a persisted submitted share.
type ShareRow struct {
	ID           int64     `json:"id" db:"id"`
	ConnectionID string    `json:"connection_id" db:"connection_id"`
	JobID        string    `json:"job_id" db:"job_id"`
	Extranonce2  string    `json:"extranonce2" db:"extranonce2"`
	NTime        int64     `json:"ntime" db:"ntime"`
	Nonce        int64     `json:"nonce" db:"nonce"`
	Difficulty   float64   `json:"difficulty" db:"difficulty"`
	Result       string    `json:"result" db:"result"`
	Hash         string    `json:"hash" db:"hash"`
	SubmittedAt  time.Time `json:"submitted_at" db:"submitted_at"`
}

// AlertRow is a persisted operator-facing alert.
type AlertRow struct {
	ID        string    `json:"id" db:"id"`
	Severity  string    `json:"severity" db:"severity"`
	Component string    `json:"component" db:"component"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ApiKeyRow is a persisted management-API credential. Only the secret hash
// is ever stored; the raw secret never reaches this layer.
type ApiKeyRow struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	SecretHash  string    `json:"secret_hash" db:"secret_hash"`
	Permissions string    `json:"permissions" db:"permissions"` // comma-joined
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	Revoked     bool      `json:"revoked" db:"revoked"`
}

// ConfigHistoryRow is one recorded configuration snapshot, applied whenever
// the daemon's live config changes (mode switch, reload, API-driven edit).
type ConfigHistoryRow struct {
	ID         int64     `json:"id" db:"id"`
	AppliedAt  time.Time `json:"applied_at" db:"applied_at"`
	AppliedBy  string    `json:"applied_by" db:"applied_by"`
	YAMLConfig string    `json:"yaml_config" db:"yaml_config"`
}

// TemplateRow is a persisted work template, kept for block-found audit
// trails and Solo-mode restart recovery.
type TemplateRow struct {
	JobID     string    `json:"job_id" db:"job_id"`
	Height    int64     `json:"height" db:"height"`
	PrevHash  string    `json:"prev_hash" db:"prev_hash"`
	FetchedAt time.Time `json:"fetched_at" db:"fetched_at"`
}
