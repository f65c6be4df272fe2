package deadletter

import (
	"context"
	"sync"
	"time"
)

// DeadLetter records a message a consumer gave up on: the handler failed
// (or the envelope was malformed) and the configured policy routes the
// message here instead of silently dropping it.
type DeadLetter struct {
	Topic     string
	GroupID   string
	EventID   string
	EventType string
	Payload   []byte
	Reason    string
	FailedAt  time.Time
}

// Store is an append-only sink for dead letters.
type Store interface {
	Append(ctx context.Context, dl DeadLetter) error

	// List returns up to limit dead letters for a topic, oldest first.
	// An empty topic matches all topics; limit <= 0 means no cap.
	List(ctx context.Context, topic string, limit int) ([]DeadLetter, error)

	// Len returns the number of stored dead letters.
	Len(ctx context.Context) (int, error)
}

// MemoryStore is a goroutine-safe in-memory Store.
type MemoryStore struct {
	mu      sync.Mutex
	letters []DeadLetter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Append(ctx context.Context, dl DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, dl)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, topic string, limit int) ([]DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DeadLetter, 0, len(s.letters))
	for _, dl := range s.letters {
		if topic != "" && dl.Topic != topic {
			continue
		}
		out = append(out, dl)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.letters), nil
}
