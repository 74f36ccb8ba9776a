package dedup

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Store remembers processed message IDs for a fixed expiry. It lives in
// memory only, so a restart forgets every ID.
type Store struct {
	ids *cache.Cache
}

// New creates a store whose entries expire after expiry.
func New(expiry time.Duration) *Store {
	return &Store{
		ids: cache.New(expiry, expiry),
	}
}

// Seen reports whether id was marked and has not yet expired.
func (s *Store) Seen(id string) bool {
	_, found := s.ids.Get(id)
	return found
}

// Mark records id as processed, restarting its expiry.
func (s *Store) Mark(id string) {
	s.ids.SetDefault(id, struct{}{})
}

// MarkIfNew marks id and returns true only for the first caller inside the
// expiry, so concurrent deliveries of one message cannot both pass.
func (s *Store) MarkIfNew(id string) bool {
	return s.ids.Add(id, struct{}{}, cache.DefaultExpiration) == nil
}

// Len returns the number of tracked IDs, expired ones included until the
// next janitor run.
func (s *Store) Len() int {
	return s.ids.ItemCount()
}
