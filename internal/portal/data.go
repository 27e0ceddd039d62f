package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Keys shared between scenarios
const (
	KeyProposalNumber = "numero_proposta"
	KeyBookingNumber  = "numero_booking"
)

// DataStore hands values produced by one scenario to the next ones. It is
// persisted as a flat JSON object so a later run can pick up where an
// earlier one stopped.
type DataStore struct {
	path string

	mu     sync.Mutex
	values map[string]any
}

// LoadDataStore reads path. A missing or malformed file starts empty.
func LoadDataStore(path string) *DataStore {
	s := &DataStore{path: path, values: map[string]any{}}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var values map[string]any
	if json.Unmarshal(data, &values) == nil && values != nil {
		s.values = values
	}
	return s
}

// Get returns the value under key as a string
func (s *DataStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	default:
		return fmt.Sprint(t), true
	}
}

// Decode unmarshals the value under key into out
func (s *DataStore) Decode(key string, out any) error {
	s.mu.Lock()
	v, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no %s recorded", key)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Set stores value and writes the file
func (s *DataStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.save()
}

func (s *DataStore) save() error {
	if s.path == "" {
		return errors.New("data store has no file")
	}
	data, err := json.MarshalIndent(s.values, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding scenario data: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing scenario data: %w", err)
	}
	return nil
}
