package settings

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
)

// Store reads and writes the settings file
type Store struct {
	path   string
	logger logger.Logger
	now    func() time.Time
}

// NewStore creates a store for the settings file at path
func NewStore(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{path: path, logger: log, now: time.Now}
}

// Path returns the location of the settings file
func (s *Store) Path() string {
	return s.path
}

// Exists checks if the settings file exists
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the settings file. A missing or corrupt file behaves as an empty
// document. When the document has no recipients and a fallback name or phone
// is given, a single "default" recipient is synthesized from them.
func (s *Store) Load(fallbackName, fallbackPhone string) (*Document, error) {
	raw := map[string]any{}

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		var decoded any
		if jerr := json.Unmarshal(data, &decoded); jerr != nil {
			s.logger.WarnWithFields("Settings file is not valid JSON, using defaults", map[string]interface{}{
				"path":  s.path,
				"error": jerr.Error(),
			})
		} else if obj, ok := decoded.(map[string]any); ok {
			raw = obj
		}
	case os.IsNotExist(err):
	default:
		s.logger.WarnWithFields("Settings file unreadable, using defaults", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
	}

	doc := parseDocument(raw)
	if doc.UpdatedTS == 0 {
		doc.UpdatedTS = unixSeconds(s.now())
	}

	if len(doc.Recipients) == 0 && (fallbackName != "" || fallbackPhone != "") {
		doc.Recipients = []Recipient{defaultRecipient(fallbackName, fallbackPhone)}
	}

	s.logger.DebugWithFields("Settings loaded", map[string]interface{}{
		"path":       s.path,
		"recipients": len(doc.Recipients),
	})
	return doc, nil
}

// Save stamps UpdatedTS and writes the document atomically
func (s *Store) Save(doc *Document) error {
	doc.UpdatedTS = unixSeconds(s.now())
	if doc.Version == 0 {
		doc.Version = currentVersion
	}
	if doc.Recipients == nil {
		doc.Recipients = []Recipient{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errs.Wrap(errs.ErrorTypeValidation, err, "failed to encode settings")
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.Wrap(errs.ErrorTypeState, err, "failed to create settings directory")
		}
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, buf.Bytes(), 0644); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeState, err, "failed to write settings")
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeState, err, "failed to replace settings file")
	}

	s.logger.InfoWithFields("Settings saved", map[string]interface{}{
		"path":       s.path,
		"recipients": len(doc.Recipients),
	})
	return nil
}

func defaultRecipient(name, phone string) Recipient {
	name = strings.TrimSpace(name)
	display := name
	if display == "" {
		display = "Friend"
	}
	return Recipient{
		ID:                      DefaultRecipientID,
		DisplayName:             display,
		ContactName:             name,
		Phone:                   NormalizePhone(phone),
		Enabled:                 true,
		SendPosts:               true,
		SendStories:             true,
		SendCloseFriendsStories: false,
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
