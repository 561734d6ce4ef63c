package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Per-file batch states.
const (
	Waiting    = "waiting"
	Converting = "converting"
	Success    = "success"
	Error      = "error"
)

// FileStatus is the progress record of one file in a batch.
type FileStatus struct {
	Name    string     `json:"name"`
	Status  string     `json:"status"`
	Message string     `json:"message,omitempty"`
	Output  string     `json:"output,omitempty"`
	Start   *time.Time `json:"start_time,omitempty"`
	End     *time.Time `json:"end_time,omitempty"`
}

// StatusStore persists file statuses grouped by batch id.
type StatusStore interface {
	Set(ctx context.Context, batchID string, st FileStatus) error
	Get(ctx context.Context, batchID, name string) (FileStatus, bool, error)
	List(ctx context.Context, batchID string) ([]FileStatus, error)
}

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewRedisStatusWithClient wraps an existing client.
func NewRedisStatusWithClient(c *redis.Client, namespace string, ttl time.Duration) *RedisStatus {
	if namespace == "" {
		namespace = "ebookconv"
	}
	return &RedisStatus{client: c, keyNS: namespace, ttl: ttl}
}

func (s *RedisStatus) key(batchID string) string {
	return fmt.Sprintf("%s:batch:%s:files", s.keyNS, batchID)
}

func (s *RedisStatus) Set(ctx context.Context, batchID string, st FileStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(batchID), st.Name, string(b))
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(batchID), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, batchID, name string) (FileStatus, bool, error) {
	v, err := s.client.HGet(ctx, s.key(batchID), name).Result()
	if err == redis.Nil {
		return FileStatus{}, false, nil
	}
	if err != nil {
		return FileStatus{}, false, err
	}
	var st FileStatus
	if err := json.Unmarshal([]byte(v), &st); err != nil {
		return FileStatus{}, false, fmt.Errorf("decode status %s: %w", name, err)
	}
	return st, true, nil
}

// List returns the batch's records ordered by file name.
func (s *RedisStatus) List(ctx context.Context, batchID string) ([]FileStatus, error) {
	res, err := s.client.HGetAll(ctx, s.key(batchID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]FileStatus, 0, len(res))
	for name, v := range res {
		var st FileStatus
		if err := json.Unmarshal([]byte(v), &st); err != nil {
			return nil, fmt.Errorf("decode status %s: %w", name, err)
		}
		out = append(out, st)
	}
	sortByName(out)
	return out, nil
}

// MemoryStatus keeps statuses in process memory.
type MemoryStatus struct {
	mu      sync.RWMutex
	batches map[string]map[string]FileStatus
}

func NewMemoryStatus() *MemoryStatus {
	return &MemoryStatus{batches: make(map[string]map[string]FileStatus)}
}

func (m *MemoryStatus) Set(_ context.Context, batchID string, st FileStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.batches[batchID]
	if !ok {
		files = make(map[string]FileStatus)
		m.batches[batchID] = files
	}
	files[st.Name] = st
	return nil
}

func (m *MemoryStatus) Get(_ context.Context, batchID, name string) (FileStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.batches[batchID][name]
	return st, ok, nil
}

func (m *MemoryStatus) List(_ context.Context, batchID string) ([]FileStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FileStatus, 0, len(m.batches[batchID]))
	for _, st := range m.batches[batchID] {
		out = append(out, st)
	}
	sortByName(out)
	return out, nil
}

func sortByName(s []FileStatus) {
	sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
}
