// Package stratumserver implements the TCP accept loop, per-connection
// tasks, and the sharded connection registry the daemon uses at scale.
package stratumserver

import (
	"hash/fnv"
	"sync"

	"github.com/sv2d/sv2d/internal/domain"
)

const shardCount = 64

// Registry is a sharded, read-mostly map of active connections keyed by
// connection ID. Each shard is guarded by its own RWMutex so readers across
// different shards never contend, which matters at the connection counts
// this daemon is expected to scale to.
type Registry struct {
	shards [shardCount]*shard
}

type shard struct {
	mu    sync.RWMutex
	conns map[string]*domain.Connection
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[string]*domain.Connection)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Put registers a connection.
func (r *Registry) Put(conn *domain.Connection) {
	s := r.shardFor(conn.ID)
	s.mu.Lock()
	s.conns[conn.ID] = conn
	s.mu.Unlock()
}

// Get retrieves a connection by ID.
func (r *Registry) Get(id string) (*domain.Connection, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

// Remove drops a connection from the registry.
func (r *Registry) Remove(id string) {
	s := r.shardFor(id)
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// Count returns the total number of tracked connections across all shards.
func (r *Registry) Count() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.conns)
		s.mu.RUnlock()
	}
	return total
}

// CountByIP returns how many currently-tracked connections share remoteIP,
// used to enforce a per-IP connection cap.
func (r *Registry) CountByIP(remoteIP string) int {
	count := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, c := range s.conns {
			if c.RemoteAddr == remoteIP {
				count++
			}
		}
		s.mu.RUnlock()
	}
	return count
}

// Range calls f for every tracked connection. f must not call back into
// Put/Remove on the same Registry.
func (r *Registry) Range(f func(*domain.Connection)) {
	for _, s := range r.shards {
		s.mu.RLock()
		for _, c := range s.conns {
			f(c)
		}
		s.mu.RUnlock()
	}
}
