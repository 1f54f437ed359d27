package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepositories is an in-memory implementation of every repository
// interface, used in tests and for a Postgres-less development run. It is
// not durable: state is lost on process exit.
type MemoryRepositories struct {
	mu sync.RWMutex

	shares      []*ShareRow
	connections map[string]*ConnectionRow
	alerts      []*AlertRow
	apiKeys     map[string]*ApiKeyRow
	configs     []*ConfigHistoryRow
	templates   []*TemplateRow

	nextShareID  int64
	nextConfigID int64
}

// NewMemoryRepositories builds an empty in-memory store.
func NewMemoryRepositories() *MemoryRepositories {
	return &MemoryRepositories{
		connections: make(map[string]*ConnectionRow),
		apiKeys:     make(map[string]*ApiKeyRow),
	}
}

func (m *MemoryRepositories) CreateShare(ctx context.Context, share *ShareRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextShareID++
	share.ID = m.nextShareID
	if share.SubmittedAt.IsZero() {
		share.SubmittedAt = time.Now()
	}
	m.shares = append(m.shares, share)
	return nil
}

func (m *MemoryRepositories) CreateShareBatch(ctx context.Context, shares []*ShareRow) error {
	for _, s := range shares {
		if err := m.CreateShare(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryRepositories) RecordShare(ctx context.Context, share *ShareRow, valid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextShareID++
	share.ID = m.nextShareID
	if share.SubmittedAt.IsZero() {
		share.SubmittedAt = time.Now()
	}
	m.shares = append(m.shares, share)

	if c, ok := m.connections[share.ConnectionID]; ok {
		c.TotalShares++
		if valid {
			c.ValidShares++
		}
	}
	return nil
}

func (m *MemoryRepositories) GetSharesByConnection(ctx context.Context, connectionID string, limit int) ([]*ShareRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ShareRow
	for i := len(m.shares) - 1; i >= 0 && len(out) < limit; i-- {
		if m.shares[i].ConnectionID == connectionID {
			out = append(out, m.shares[i])
		}
	}
	return out, nil
}

func (m *MemoryRepositories) GetShareCount(ctx context.Context, connectionID string, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, s := range m.shares {
		if s.ConnectionID == connectionID && !s.SubmittedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryRepositories) RecordConnection(ctx context.Context, conn *ConnectionRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID] = conn
	return nil
}

func (m *MemoryRepositories) RecordDisconnect(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return fmt.Errorf("connection not found")
	}
	c.DisconnectedAt = sql.NullTime{Time: at, Valid: true}
	return nil
}

func (m *MemoryRepositories) GetConnectionByID(ctx context.Context, id string) (*ConnectionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	if !ok {
		return nil, fmt.Errorf("connection not found")
	}
	return c, nil
}

func (m *MemoryRepositories) GetRecentConnections(ctx context.Context, limit int) ([]*ConnectionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*ConnectionRow, 0, len(m.connections))
	for _, c := range m.connections {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ConnectedAt.After(all[j].ConnectedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryRepositories) CreateAlert(ctx context.Context, a *AlertRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *MemoryRepositories) GetRecentAlerts(ctx context.Context, limit int) ([]*AlertRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*AlertRow
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out, nil
}

func (m *MemoryRepositories) CreateApiKey(ctx context.Context, k *ApiKeyRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.apiKeys[k.ID]; exists {
		return fmt.Errorf("api key already exists")
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	m.apiKeys[k.ID] = k
	return nil
}

func (m *MemoryRepositories) RevokeApiKey(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return fmt.Errorf("api key not found")
	}
	k.Revoked = true
	return nil
}

func (m *MemoryRepositories) GetApiKeyByID(ctx context.Context, id string) (*ApiKeyRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return nil, fmt.Errorf("api key not found")
	}
	return k, nil
}

func (m *MemoryRepositories) GetApiKeyByHash(ctx context.Context, secretHash string) (*ApiKeyRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.apiKeys {
		if k.SecretHash == secretHash {
			return k, nil
		}
	}
	return nil, fmt.Errorf("api key not found")
}

func (m *MemoryRepositories) ListApiKeys(ctx context.Context) ([]*ApiKeyRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ApiKeyRow, 0, len(m.apiKeys))
	for _, k := range m.apiKeys {
		out = append(out, k)
	}
	return out, nil
}

func (m *MemoryRepositories) RecordConfigChange(ctx context.Context, entry *ConfigHistoryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextConfigID++
	entry.ID = m.nextConfigID
	if entry.AppliedAt.IsZero() {
		entry.AppliedAt = time.Now()
	}
	m.configs = append(m.configs, entry)
	return nil
}

func (m *MemoryRepositories) GetLatestConfig(ctx context.Context) (*ConfigHistoryRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.configs) == 0 {
		return nil, fmt.Errorf("no config history recorded")
	}
	return m.configs[len(m.configs)-1], nil
}

func (m *MemoryRepositories) ListConfigHistory(ctx context.Context, limit int) ([]*ConfigHistoryRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ConfigHistoryRow
	for i := len(m.configs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.configs[i])
	}
	return out, nil
}

func (m *MemoryRepositories) SaveTemplate(ctx context.Context, t *TemplateRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = append(m.templates, t)
	return nil
}

func (m *MemoryRepositories) GetLatestTemplate(ctx context.Context) (*TemplateRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.templates) == 0 {
		return nil, fmt.Errorf("no template recorded")
	}
	return m.templates[len(m.templates)-1], nil
}

func (m *MemoryRepositories) GetTemplateByID(ctx context.Context, jobID string) (*TemplateRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.templates) - 1; i >= 0; i-- {
		if m.templates[i].JobID == jobID {
			return m.templates[i], nil
		}
	}
	return nil, fmt.Errorf("template not found")
}

func (m *MemoryRepositories) ListTemplates(ctx context.Context, limit int) ([]*TemplateRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*TemplateRow
	for i := len(m.templates) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.templates[i])
	}
	return out, nil
}
