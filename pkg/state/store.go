package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
)

// document is the on-disk shape of the state file
type document struct {
	SentIDs         []string            `json:"sent_ids"`
	SentByRecipient map[string][]string `json:"sent_ids_by_recipient"`
	LastRunTS       *float64            `json:"last_run_ts"`
	LastRunFiles    []string            `json:"last_run_files"`
	LastRunCaption  string              `json:"last_run_caption"`
}

// Store persists a DeliveryState as a JSON document
type Store struct {
	path   string
	logger logger.Logger
}

// NewStore creates a store for the state file at path
func NewStore(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{path: path, logger: log}
}

// Path returns the location of the state file
func (s *Store) Path() string {
	return s.path
}

// Exists checks if the state file exists
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the state file. It never fails: a missing, unreadable or
// structurally invalid document yields an empty state.
func (s *Store) Load() *DeliveryState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WarnWithFields("State file unreadable, starting empty", map[string]interface{}{
				"path":  s.path,
				"error": err.Error(),
			})
		}
		return New()
	}

	st, err := Decode(data)
	if err != nil {
		s.logger.WarnWithFields("State file invalid, starting empty", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return New()
	}

	s.logger.DebugWithFields("State loaded", map[string]interface{}{
		"sent_ids":   len(st.SentIDs),
		"recipients": len(st.SentByRecipient),
	})
	return st
}

// Save writes the state atomically: temp file, fsync, rename
func (s *Store) Save(st *DeliveryState) error {
	data, err := Encode(st)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeState, err, "failed to encode state")
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.Wrap(errs.ErrorTypeState, err, "failed to create state directory")
		}
	}

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeState, err, "failed to create temporary state file")
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeState, err, "failed to write state")
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeState, err, "failed to sync state file")
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeState, err, "failed to close state file")
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeState, err, "failed to replace state file")
	}

	s.logger.DebugWithFields("State saved", map[string]interface{}{
		"sent_ids":   len(st.SentIDs),
		"recipients": len(st.SentByRecipient),
	})
	return nil
}

// Encode renders the state document: sorted lists, two-space indent, trailing newline
func Encode(st *DeliveryState) ([]byte, error) {
	if st == nil {
		st = New()
	}
	doc := document{
		SentIDs:         sortedKeys(st.SentIDs),
		SentByRecipient: make(map[string][]string, len(st.SentByRecipient)),
		LastRunTS:       st.LastRunTS,
		LastRunFiles:    append([]string{}, st.LastRunFiles...),
		LastRunCaption:  st.LastRunCaption,
	}
	for rid, set := range st.SentByRecipient {
		doc.SentByRecipient[rid] = sortedKeys(set)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a state document. Missing keys take their empty values;
// a document of the wrong shape is an error.
func Decode(data []byte) (*DeliveryState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("state is not a JSON object: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("state is null")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("state has invalid fields: %w", err)
	}

	st := New()
	st.SentIDs = toSet(doc.SentIDs)
	for rid, ids := range doc.SentByRecipient {
		st.SentByRecipient[rid] = toSet(ids)
	}
	st.LastRunTS = doc.LastRunTS
	if doc.LastRunFiles != nil {
		st.LastRunFiles = doc.LastRunFiles
	}
	st.LastRunCaption = doc.LastRunCaption
	return st, nil
}
