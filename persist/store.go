package persist

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/storyflow-ai/storyflow/types"
)

// Storage keys. Each key holds one JSON-serialized collection.
const (
	KeyHistory   = "history"
	KeyBookmarks = "bookmarks"
	KeySettings  = "settings"
)

// historyDoc is the persisted shape of the session history. The active
// session is stored by id, not index, so eviction never corrupts it.
type historyDoc struct {
	Sessions []*types.Session `json:"sessions"`
	ActiveID string           `json:"active_id,omitempty"`
}

// EvictFunc removes exactly one logical item from a collection. The policy
// is swappable and independently testable from the retry loop.
type EvictFunc[T any] func(items []T) []T

// EvictOldestSession drops the session with the earliest creation time.
func EvictOldestSession(sessions []*types.Session) []*types.Session {
	return evictOldest(sessions, func(s *types.Session) time.Time { return s.CreatedAt })
}

// EvictOldestBookmark drops the bookmark with the earliest creation time.
func EvictOldestBookmark(items []*types.SavedItem) []*types.SavedItem {
	return evictOldest(items, func(i *types.SavedItem) time.Time { return i.CreatedAt })
}

func evictOldest[T any](items []T, createdAt func(T) time.Time) []T {
	if len(items) == 0 {
		return items
	}
	oldest := 0
	for i := 1; i < len(items); i++ {
		if createdAt(items[i]).Before(createdAt(items[oldest])) {
			oldest = i
		}
	}
	return append(items[:oldest:oldest], items[oldest+1:]...)
}

// Store persists history, bookmarks, and settings with eviction-and-retry
// on capacity failures.
type Store struct {
	kv            KV
	logger        *zap.Logger
	evictSession  EvictFunc[*types.Session]
	evictBookmark EvictFunc[*types.SavedItem]
	onEvict       func(collection string, emptied bool)
	now           func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithSessionEviction swaps the history eviction policy.
func WithSessionEviction(f EvictFunc[*types.Session]) Option {
	return func(s *Store) { s.evictSession = f }
}

// WithBookmarkEviction swaps the bookmark eviction policy.
func WithBookmarkEviction(f EvictFunc[*types.SavedItem]) Option {
	return func(s *Store) { s.evictBookmark = f }
}

// WithEvictionHook registers a callback fired once per evicted item and once
// more, with emptied set, when eviction exhausts a collection.
func WithEvictionHook(hook func(collection string, emptied bool)) Option {
	return func(s *Store) { s.onEvict = hook }
}

// WithClock overrides the time source used for bookmark expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a persistence store over the given KV backend. Oldest-
// first eviction is the default policy for both collections.
func NewStore(kv KV, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		kv:            kv,
		logger:        logger.With(zap.String("component", "persist")),
		evictSession:  EvictOldestSession,
		evictBookmark: EvictOldestBookmark,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveHistory serializes and stores the full session history. On a capacity
// failure it evicts the oldest session and retries; when eviction empties
// the collection it clears the key and reports success. Losing history to
// eviction is logged, never raised to the user.
func (s *Store) SaveHistory(ctx context.Context, sessions []*types.Session, activeID string) error {
	doc := historyDoc{Sessions: sessions, ActiveID: activeID}
	return s.saveWithEviction(ctx, KeyHistory,
		func() (any, int) { return doc, len(doc.Sessions) },
		func() { doc.Sessions = s.evictSession(doc.Sessions) },
	)
}

// LoadHistory returns the persisted sessions and active session id. A
// missing key yields an empty history.
func (s *Store) LoadHistory(ctx context.Context) ([]*types.Session, string, error) {
	data, err := s.kv.Get(ctx, KeyHistory)
	if errors.Is(err, ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	var doc historyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", err
	}
	return doc.Sessions, doc.ActiveID, nil
}

// SaveBookmarks persists the bookmark collection with the same
// evict-oldest-and-retry contract as SaveHistory.
func (s *Store) SaveBookmarks(ctx context.Context, items []*types.SavedItem) error {
	return s.saveWithEviction(ctx, KeyBookmarks,
		func() (any, int) { return items, len(items) },
		func() { items = s.evictBookmark(items) },
	)
}

// LoadBookmarks returns the persisted bookmarks minus any whose expiry has
// passed. When filtering removed anything, the filtered set is re-persisted
// immediately so expired entries do not survive another load.
func (s *Store) LoadBookmarks(ctx context.Context) ([]*types.SavedItem, error) {
	data, err := s.kv.Get(ctx, KeyBookmarks)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []*types.SavedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	now := s.now()
	kept := items[:0]
	for _, item := range items {
		if !item.Expired(now) {
			kept = append(kept, item)
		}
	}
	if len(kept) != len(items) {
		s.logger.Info("expired bookmarks dropped",
			zap.Int("dropped", len(items)-len(kept)),
			zap.Int("kept", len(kept)))
		if err := s.SaveBookmarks(ctx, kept); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

// SaveSettings persists user settings. Settings are tiny and have nothing to
// evict, so capacity failures propagate.
func (s *Store) SaveSettings(ctx context.Context, settings *types.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, KeySettings, data)
}

// LoadSettings returns the persisted settings, or nil when none are stored.
func (s *Store) LoadSettings(ctx context.Context) (*types.Settings, error) {
	data, err := s.kv.Get(ctx, KeySettings)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var settings types.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// saveWithEviction is the retry loop shared by all evictable collections:
// serialize, write, and on a capacity failure evict one item and try again.
// An emptied collection clears the key instead of looping forever.
func (s *Store) saveWithEviction(ctx context.Context, key string, snapshot func() (doc any, size int), evict func()) error {
	for {
		doc, size := snapshot()
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		err = s.kv.Set(ctx, key, data)
		if err == nil {
			return nil
		}
		if !IsCapacityError(err) {
			return err
		}

		if size == 0 {
			s.logger.Warn("storage capacity exhausted with nothing left to evict, clearing key",
				zap.String("key", key))
			if s.onEvict != nil {
				s.onEvict(key, true)
			}
			return s.kv.Delete(ctx, key)
		}

		s.logger.Warn("storage capacity exceeded, evicting oldest item",
			zap.String("key", key),
			zap.Int("remaining", size-1))
		evict()
		if s.onEvict != nil {
			s.onEvict(key, false)
		}
	}
}
