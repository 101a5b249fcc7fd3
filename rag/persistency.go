package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrSourceNotFound is returned for operations on an unregistered source.
var ErrSourceNotFound = errors.New("source not found")

// PageState records what was ingested from a page.
type PageState struct {
	Source     string    `json:"source,omitempty"`
	Hash       string    `json:"hash"`
	RecordIDs  []string  `json:"record_ids"`
	IngestedAt time.Time `json:"ingested_at"`
}

// ExternalSource represents a source that needs to be periodically updated
type ExternalSource struct {
	URL            string        `json:"url"`
	UpdateInterval time.Duration `json:"update_interval"`
	LastUpdate     time.Time     `json:"last_update"`
}

// IngestState is the persisted ingestion bookkeeping: the content hash of every
// ingested page and the registered external sources.
type IngestState struct {
	sync.Mutex
	path  string
	state ingestStateFile
}

type ingestStateFile struct {
	Pages   map[string]PageState `json:"pages"`
	Sources []ExternalSource     `json:"sources"`
}

func loadState(path string) (ingestStateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingestStateFile{}, err
	}

	state := ingestStateFile{}
	if err := json.Unmarshal(data, &state); err != nil {
		return ingestStateFile{}, err
	}
	if state.Pages == nil {
		state.Pages = map[string]PageState{}
	}
	return state, nil
}

// NewIngestState loads the state file at path, creating it when missing.
// An empty path keeps the state in memory only.
func NewIngestState(path string) (*IngestState, error) {
	s := &IngestState{
		path:  path,
		state: ingestStateFile{Pages: map[string]PageState{}},
	}
	if path == "" {
		return s, nil
	}

	if _, err := os.Stat(path); err != nil {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		s.Lock()
		defer s.Unlock()
		return s, s.save()
	}

	state, err := loadState(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load ingest state %s: %w", path, err)
	}
	s.state = state
	return s, nil
}

func (s *IngestState) save() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0644)
}

// ContentHash fingerprints page content.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Unchanged reports whether the page was already ingested with this content hash.
func (s *IngestState) Unchanged(url, hash string) bool {
	s.Lock()
	defer s.Unlock()

	p, ok := s.state.Pages[url]
	return ok && p.Hash == hash
}

// Page returns the state of an ingested page.
func (s *IngestState) Page(url string) (PageState, bool) {
	s.Lock()
	defer s.Unlock()

	p, ok := s.state.Pages[url]
	return p, ok
}

// MarkIngested records a page, the source it came from and the records created from it.
// An empty source keeps the one the page was first ingested with.
func (s *IngestState) MarkIngested(source, url, hash string, recordIDs []string) error {
	s.Lock()
	defer s.Unlock()

	if source == "" {
		source = s.state.Pages[url].Source
	}
	s.state.Pages[url] = PageState{
		Source:     source,
		Hash:       hash,
		RecordIDs:  recordIDs,
		IngestedAt: time.Now(),
	}
	return s.save()
}

// SourceRecordIDs returns the ids of every record ingested from a source.
func (s *IngestState) SourceRecordIDs(source string) []string {
	s.Lock()
	defer s.Unlock()

	var ids []string
	for _, p := range s.state.Pages {
		if p.Source == source {
			ids = append(ids, p.RecordIDs...)
		}
	}
	return ids
}

// ForgetSource drops the pages ingested from a source.
func (s *IngestState) ForgetSource(source string) error {
	s.Lock()
	defer s.Unlock()

	for url, p := range s.state.Pages {
		if p.Source == source {
			delete(s.state.Pages, url)
		}
	}
	return s.save()
}

// Pages returns the number of ingested pages.
func (s *IngestState) Pages() int {
	s.Lock()
	defer s.Unlock()

	return len(s.state.Pages)
}

// Reset forgets every ingested page, so the next run re-ingests everything.
func (s *IngestState) Reset() error {
	s.Lock()
	defer s.Unlock()

	s.state.Pages = map[string]PageState{}
	return s.save()
}

// ExternalSources returns a copy of the registered sources.
func (s *IngestState) ExternalSources() []ExternalSource {
	s.Lock()
	defer s.Unlock()

	out := make([]ExternalSource, len(s.state.Sources))
	copy(out, s.state.Sources)
	return out
}

// AddExternalSource registers a source, replacing one with the same URL.
func (s *IngestState) AddExternalSource(source ExternalSource) error {
	s.Lock()
	defer s.Unlock()

	for i, existing := range s.state.Sources {
		if existing.URL == source.URL {
			s.state.Sources[i] = source
			return s.save()
		}
	}
	s.state.Sources = append(s.state.Sources, source)
	return s.save()
}

// RemoveExternalSource unregisters a source.
func (s *IngestState) RemoveExternalSource(url string) error {
	s.Lock()
	defer s.Unlock()

	for i, existing := range s.state.Sources {
		if existing.URL == url {
			s.state.Sources = append(s.state.Sources[:i], s.state.Sources[i+1:]...)
			return s.save()
		}
	}
	return fmt.Errorf("%w: %s", ErrSourceNotFound, url)
}

// TouchExternalSource sets the last update time of a source.
func (s *IngestState) TouchExternalSource(url string, at time.Time) error {
	s.Lock()
	defer s.Unlock()

	for i, existing := range s.state.Sources {
		if existing.URL == url {
			s.state.Sources[i].LastUpdate = at
			return s.save()
		}
	}
	return fmt.Errorf("%w: %s", ErrSourceNotFound, url)
}
