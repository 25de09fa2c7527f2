// Package session persists the conversation → agent-session mapping so
// conversations resume across process restarts.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"sigclaw/internal/models"

	"github.com/sirupsen/logrus"
)

// Store is a file-backed session mapping, written synchronously on every
// save. A missing or corrupted backing file is recovered by starting
// empty; construction never fails for that reason.
type Store struct {
	mu       sync.Mutex
	path     string
	records  map[string]models.SessionRecord
	logger   *logrus.Logger
}

// NewStore loads (or initializes) the store at path
func NewStore(path string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{
		path:    path,
		records: make(map[string]models.SessionRecord),
		logger:  logger,
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Failed to read session file, starting empty")
		}
		return
	}

	var records map[string]models.SessionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Session file is corrupted, starting empty")
		return
	}
	s.records = records

	s.logger.WithField("sessions", len(records)).Info("Loaded persisted sessions")
}

// Get returns the record for a conversation, if present
func (s *Store) Get(conversationID string) (models.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[conversationID]
	return record, ok
}

// Save overwrites the conversation's record and persists immediately.
// Write failures are logged and swallowed: losing a session id only
// costs conversation continuity, never a turn.
func (s *Store) Save(conversationID string, record models.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.LastActive.IsZero() {
		record.LastActive = time.Now().UTC()
	}
	s.records[conversationID] = record

	if err := s.persist(); err != nil {
		s.logger.WithError(err).WithField("conversation_id", conversationID).Error("Failed to persist sessions")
	}
}

// Remove deletes the conversation's record, typically after a resume
// attempt is known to be stale, and persists immediately.
func (s *Store) Remove(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[conversationID]; !ok {
		return
	}
	delete(s.records, conversationID)

	if err := s.persist(); err != nil {
		s.logger.WithError(err).WithField("conversation_id", conversationID).Error("Failed to persist sessions")
	}
}

// ListChatIDs returns all conversation ids with a persisted session
func (s *Store) ListChatIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of persisted sessions
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// persist writes the full mapping via tmp+rename so a crash mid-write
// never corrupts the previous file. Callers hold s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
