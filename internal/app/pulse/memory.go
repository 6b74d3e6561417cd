package pulse

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository used by tests and STORE_DRIVER=memory.
type MemoryRepository struct {
	mu       sync.Mutex
	byID     map[string]Record
	bySource map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     map[string]Record{},
		bySource: map[string]string{},
	}
}

func sourceKey(userID, sourceID string) string {
	return userID + "\xff" + sourceID
}

func (m *MemoryRepository) Create(_ context.Context, rec Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sourceKey(rec.UserID, rec.SourceID)
	if id, ok := m.bySource[key]; ok {
		return cloneRecord(m.byID[id]), false, nil
	}
	stored := cloneRecord(rec)
	m.byID[rec.ID] = stored
	m.bySource[key] = rec.ID
	return cloneRecord(stored), true, nil
}

func (m *MemoryRepository) FindOne(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryRepository) ListPending(_ context.Context, userID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range m.byID {
		if rec.UserID == userID && rec.Status == StatusPending {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepository) ConditionalUpdate(_ context.Context, u Update) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[u.ID]
	if !ok || rec.UserID != u.UserID || rec.Status != StatusPending || !u.Now.Before(rec.ExpiresAt) {
		return Record{}, false, nil
	}
	rec.Status = u.Status
	if !u.NextEligibleAt.IsZero() {
		rec.NextEligibleAt = u.NextEligibleAt
	}
	if len(u.Value) > 0 {
		rec.Value = append([]byte(nil), u.Value...)
	}
	if u.Status == StatusCompleted {
		at := u.Now
		rec.CompletedAt = &at
	}
	m.byID[u.ID] = rec
	return cloneRecord(rec), true, nil
}

func (m *MemoryRepository) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.byID {
		if rec.Status == StatusPending && !now.Before(rec.ExpiresAt) {
			rec.Status = StatusExpired
			m.byID[id] = rec
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) PurgeExpired(_ context.Context, before time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.byID {
		if limit > 0 && n >= int64(limit) {
			break
		}
		if rec.Status != StatusPending && !before.Before(rec.ExpiresAt) {
			delete(m.byID, id)
			delete(m.bySource, sourceKey(rec.UserID, rec.SourceID))
			n++
		}
	}
	return n, nil
}

func cloneRecord(rec Record) Record {
	if rec.Value != nil {
		rec.Value = append([]byte(nil), rec.Value...)
	}
	if rec.CompletedAt != nil {
		at := *rec.CompletedAt
		rec.CompletedAt = &at
	}
	return rec
}
