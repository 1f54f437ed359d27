// Package domain holds the plain data types shared across the daemon:
// connections, shares, work templates, upstream pools, sessions and alerts.
package domain

import (
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Protocol identifies the wire protocol a downstream connection speaks.
type Protocol string

const (
	ProtocolUnknown Protocol = "unknown"
	ProtocolSV1     Protocol = "sv1"
	ProtocolSV2     Protocol = "sv2"
)

// HardwareClass buckets a connection's declared or inferred mining hardware.
// Used only as an initial vardiff seed; never authoritative over the
// configured min/max difficulty bounds.
type HardwareClass string

const (
	HardwareUnknown     HardwareClass = "unknown"
	HardwareCPU         HardwareClass = "cpu"
	HardwareGPU         HardwareClass = "gpu"
	HardwareFPGA        HardwareClass = "fpga"
	HardwareASIC        HardwareClass = "asic"
	HardwareOfficialASIC HardwareClass = "official_asic"
)

// BaseDifficulty returns a reasonable starting difficulty guess for the
// class. Pool mode's vardiff engine treats this as a seed, not a bound.
func (h HardwareClass) BaseDifficulty() float64 {
	switch h {
	case HardwareCPU:
		return 1
	case HardwareGPU:
		return 64
	case HardwareFPGA:
		return 512
	case HardwareASIC:
		return 8192
	case HardwareOfficialASIC:
		return 65536
	default:
		return 16
	}
}

// Mode identifies the daemon's operational mode.
type Mode string

const (
	ModeSolo  Mode = "solo"
	ModePool  Mode = "pool"
	ModeProxy Mode = "proxy"
	ModeClient Mode = "client"
)

// Connection represents one accepted downstream TCP connection, for the
// lifetime that connection is tracked by the stratum server.
type Connection struct {
	ID              string
	RemoteAddr      string
	Protocol        Protocol
	UserAgent       string
	HardwareClass   HardwareClass
	Authorized      bool
	WorkerName      string
	Difficulty      float64
	Extranonce1     string
	Extranonce2Size int
	SessionID       string
	ConnectedAt     time.Time
	LastActivity    time.Time
}

// NewConnection allocates a Connection with a fresh ID and timestamps set to
// now.
func NewConnection(remoteAddr string, now time.Time) *Connection {
	return &Connection{
		ID:           uuid.NewString(),
		RemoteAddr:   remoteAddr,
		Protocol:     ProtocolUnknown,
		ConnectedAt:  now,
		LastActivity: now,
	}
}

// ShareResult is the outcome of validating a submitted share.
type ShareResult string

const (
	ShareValid   ShareResult = "valid"
	ShareInvalid ShareResult = "invalid"
	ShareBlock   ShareResult = "block"
)

// Share represents one submitted proof-of-work attempt.
type Share struct {
	ID           int64
	ConnectionID string
	JobID        string
	Extranonce2  string
	NTime        uint32
	Nonce        uint32
	Difficulty   float64
	Result       ShareResult
	Hash         string
	SubmittedAt  time.Time
}

// DuplicateKey uniquely identifies a share within a job for duplicate
// detection, per (extranonce2, ntime, nonce).
func (s *Share) DuplicateKey() string {
	return s.Extranonce2 + "|" + strconv.FormatUint(uint64(s.NTime), 10) + "|" + strconv.FormatUint(uint64(s.Nonce), 10)
}

// WorkTemplate is a block template refreshed from the Bitcoin RPC client and
// used to build mining jobs.
type WorkTemplate struct {
	JobID           string
	PrevHash        string
	Height          int64
	Version         uint32
	Bits            string
	CurTime         uint32
	MinTime         uint32
	CoinbasePrefix  []byte
	CoinbaseSuffix  []byte
	RawTransactions [][]byte
	MerkleBranch    [][]byte
	Target          *big.Int
	FetchedAt       time.Time
}

// ExpiresWindow returns the [mintime, curtime+7200] acceptable ntime window
// for shares submitted against this template.
func (t *WorkTemplate) ExpiresWindow() (min, max uint32) {
	return t.MinTime, t.CurTime + 7200
}

// UpstreamPoolStatus tracks a proxy-mode upstream pool's health.
type UpstreamPoolStatus string

const (
	UpstreamHealthy   UpstreamPoolStatus = "healthy"
	UpstreamDegraded  UpstreamPoolStatus = "degraded"
	UpstreamDisabled  UpstreamPoolStatus = "disabled"
)

// UpstreamPool is one configured upstream pool endpoint for Proxy mode.
type UpstreamPool struct {
	Name            string
	Address         string
	Weight          int
	Status          UpstreamPoolStatus
	ConsecutiveFail int
	ActiveConns     int
	LastProbe       time.Time
}

// Session is an authenticated management-API session bound to an ApiKey.
type Session struct {
	ID        string
	ApiKeyID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session has passed its expiry as of now.
func (s *Session) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// Permission is one grantable management-API capability.
type Permission string

const (
	PermViewConnections  Permission = "view_connections"
	PermViewShares       Permission = "view_shares"
	PermViewMetrics      Permission = "view_metrics"
	PermManageConnections Permission = "manage_connections"
	PermManageConfig     Permission = "manage_config"
	PermAdminAccess      Permission = "admin_access"
	PermApiAccess        Permission = "api_access"
)

// ApiKey is a management-API credential. Only SecretHash is ever persisted;
// the raw secret is returned to the caller exactly once, at creation time.
type ApiKey struct {
	ID          string
	Name        string
	SecretHash  string
	Permissions []Permission
	CreatedAt   time.Time
	Revoked     bool
}

// HasPermission reports whether the key grants perm, honoring AdminAccess
// implying all permissions.
func (k *ApiKey) HasPermission(perm Permission) bool {
	for _, p := range k.Permissions {
		if p == PermAdminAccess || p == perm {
			return true
		}
	}
	return false
}

// AlertSeverity classifies an Alert's urgency.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is an operator-facing notification emitted by any subsystem
// (graceful degradation, upstream failover, block found, etc.).
type Alert struct {
	ID        string
	Severity  AlertSeverity
	Component string
	Message   string
	CreatedAt time.Time
}

// DaemonStatus is the read-mostly daemon-wide status snapshot. A new
// snapshot is built by the stats aggregator and swapped in atomically;
// readers never block a writer and never observe a partially updated view.
type DaemonStatus struct {
	Mode            Mode
	StartedAt       time.Time
	ConnectionCount int
	SV1Count        int
	SV2Count        int
}

// Uptime returns the daemon's uptime as of now.
func (d *DaemonStatus) Uptime(now time.Time) time.Duration { return now.Sub(d.StartedAt) }

// MiningStats is the read-mostly mining-activity snapshot, updated on the
// same cadence as DaemonStatus.
type MiningStats struct {
	PoolHashrate  float64
	SharesValid   int64
	SharesInvalid int64
	BlocksFound   int64
}
