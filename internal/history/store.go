// Package history keeps the list of completed downloads.
//
// The whole list lives in one named record (a file, a Redis key or a blob
// object) as a JSON array, newest first, capped at MaxEntries. History is a
// convenience: storage failures are logged and never reach the caller.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"dydownloader/internal/utils"
)

const (
	// MaxEntries is the number of entries kept.
	MaxEntries = 50

	// DefaultKey names the record holding the history.
	DefaultKey = "downloadHistory"
)

var log = utils.Component("HISTORY")

// ErrNotFound is returned by a Storage when the record does not exist yet.
var ErrNotFound = errors.New("history: record not found")

// Entry is one completed download.
type Entry struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Thumbnail string    `json:"thumbnail"`
	Format    string    `json:"format"`
	Date      time.Time `json:"date"`
}

// Storage reads and writes the serialized record.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Store is the download history.
type Store struct {
	storage Storage
	mu      sync.Mutex
}

// NewStore creates a store over storage.
func NewStore(storage Storage) *Store {
	return &Store{storage: storage}
}

// Append records entry as the most recent download.
func (s *Store) Append(ctx context.Context, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load(ctx)
	entries = append([]Entry{entry}, entries...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	if err := s.save(ctx, entries); err != nil {
		log.Error("Error saving history: %v", err)
		return
	}
	log.Info("Saved %q to history (%d entries)", entry.Title, len(entries))
}

// List returns the entries, newest first.
func (s *Store) List(ctx context.Context) []Entry {
	s.mu.Lock()
	entries := s.load(ctx)
	s.mu.Unlock()

	// Stored order is not trusted; it may have been written by another client.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(ctx, []Entry{}); err != nil {
		log.Error("Error clearing history: %v", err)
	}
}

// load returns the stored entries; a missing or unreadable record is empty.
func (s *Store) load(ctx context.Context) []Entry {
	if s.storage == nil {
		return []Entry{}
	}

	data, err := s.storage.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error("Error loading history: %v", err)
		}
		return []Entry{}
	}
	if len(data) == 0 {
		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Error("Error loading history: %v", err)
		return []Entry{}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

func (s *Store) save(ctx context.Context, entries []Entry) error {
	if s.storage == nil {
		return errors.New("history: no storage configured")
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.storage.Save(ctx, data)
}
