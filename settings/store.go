package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// MaskedAPIKey is the placeholder returned in safe views in place of stored
// secrets. A masked value sent back through an update preserves the stored key.
const MaskedAPIKey = "***"

// Store holds the settings document in memory and persists it wholesale to a
// JSON file. Reads are served from the in-memory copy; every mutation rewrites
// the whole file, backing up the previous version first.
type Store struct {
	path   string
	logger zerolog.Logger

	mu  sync.Mutex
	doc *Document
}

// NewStore loads the settings document from path, creating the default
// document if the file is missing. A file that fails to parse is moved aside
// to <path>.corrupted.backup and replaced with defaults.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.With().Str("component", "settings").Logger(),
	}

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	s.doc = doc
	return s, nil
}

func (s *Store) load() (*Document, error) {
	data, err := os.ReadFile(s.path) //#nosec 304 -- intentional file read for settings
	if os.IsNotExist(err) {
		s.logger.Info().Str("path", s.path).Msg("Settings file not found, creating defaults")
		doc := DefaultDocument()
		if err := s.write(doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings file %q: %w", s.path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		// Keep the corrupted document around for inspection and start over.
		backup := s.path + ".corrupted.backup"
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			return nil, fmt.Errorf("settings file %q is corrupted and could not be backed up: %w", s.path, renameErr)
		}
		s.logger.Warn().Err(err).Str("backup", backup).Msg("Settings file corrupted, backed up and recreated with defaults")
		fresh := DefaultDocument()
		if err := s.write(fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	}

	if doc.Servers == nil {
		doc.Servers = make(map[string]*ServerConfig)
	}
	if doc.Logging.Level == "" {
		doc.Logging.Level = "info"
	}
	s.logger.Debug().Int("servers", len(doc.Servers)).Msg("Loaded settings document")
	return &doc, nil
}

// write persists the document, backing up the previous file first.
func (s *Store) write(doc *Document) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.path+".backup"); err != nil {
			return fmt.Errorf("back up settings file: %w", err)
		}
	}

	doc.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

// Document returns a deep copy of the current document.
func (s *Store) Document() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Server returns a copy of one server config, or false if it is not registered.
func (s *Store) Server(id string) (*ServerConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.doc.Servers[id]
	if !ok {
		return nil, false
	}
	return srv.Clone(), true
}

// Servers returns copies of all registered server configs.
func (s *Store) Servers() map[string]*ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*ServerConfig, len(s.doc.Servers))
	for id, srv := range s.doc.Servers {
		out[id] = srv.Clone()
	}
	return out
}

// EnabledServers returns copies of the enabled server configs.
func (s *Store) EnabledServers() map[string]*ServerConfig {
	return lo.PickBy(s.Servers(), func(_ string, srv *ServerConfig) bool {
		return srv.Enabled
	})
}

// MainPageServers returns enabled servers flagged to contribute dashboard
// summary content.
func (s *Store) MainPageServers() map[string]*ServerConfig {
	return lo.PickBy(s.Servers(), func(_ string, srv *ServerConfig) bool {
		return srv.Enabled && srv.UseForMainPage
	})
}

// UpsertServer adds or replaces a server registration and persists the
// document.
func (s *Store) UpsertServer(srv *ServerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Servers[srv.ID] = srv.Clone()
	return s.write(s.doc)
}

// RemoveServer deletes a registration. Removing an unknown id is an error so
// the API can report it.
func (s *Store) RemoveServer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Servers[id]; !ok {
		return fmt.Errorf("server %q not found", id)
	}
	delete(s.doc.Servers, id)
	return s.write(s.doc)
}

// UpdateServer applies fn to the stored config for id and persists the result.
func (s *Store) UpdateServer(id string, fn func(*ServerConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.doc.Servers[id]
	if !ok {
		return fmt.Errorf("server %q not found", id)
	}
	fn(srv)
	return s.write(s.doc)
}

// Replace swaps in a whole new document, as posted by the settings API.
// Masked API keys are resolved against the stored secrets so a safe view can
// be round-tripped without losing credentials.
func (s *Store) Replace(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := doc.Clone()
	if incoming.Servers == nil {
		incoming.Servers = make(map[string]*ServerConfig)
	}
	for id, srv := range incoming.Servers {
		if srv.APIKey == MaskedAPIKey {
			if existing, ok := s.doc.Servers[id]; ok {
				srv.APIKey = existing.APIKey
			} else {
				srv.APIKey = ""
			}
		}
		if srv.ID == "" {
			srv.ID = id
		}
		if srv.ConnectionStatus == "" {
			srv.ConnectionStatus = StatusUnknown
		}
	}
	if incoming.Logging.Level == "" {
		incoming.Logging.Level = s.doc.Logging.Level
	}
	incoming.Version = s.doc.Version
	incoming.CreatedAt = s.doc.CreatedAt

	s.doc = incoming
	return s.write(s.doc)
}

// SafeView returns a copy of the document with API keys masked, suitable for
// returning to API clients.
func (s *Store) SafeView() *Document {
	doc := s.Document()
	for _, srv := range doc.Servers {
		if srv.APIKey != "" {
			srv.APIKey = MaskedAPIKey
		}
	}
	return doc
}

// LogLevel returns the persisted logging level.
func (s *Store) LogLevel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Logging.Level
}

// SetLogLevel persists a new logging level.
func (s *Store) SetLogLevel(level string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Logging.Level = level
	return s.write(s.doc)
}
