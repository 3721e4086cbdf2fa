package conversation

import (
	"encoding/json"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveToFile persists the session to a JSON file, enabling conversation
// continuity across runs. The node arena serializes as an id-keyed map.
func (s *Session) SaveToFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(s)
}

// LoadFromFile reads a session from a JSON or YAML file, dispatching on
// the file extension.
func LoadFromFile(filename string) (*Session, error) {
	if strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml") {
		return loadFromYAMLFile(filename)
	}
	return loadFromJSONFile(filename)
}

func loadFromJSONFile(filename string) (*Session, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var session Session
	if err := json.NewDecoder(f).Decode(&session); err != nil {
		return nil, err
	}
	normalizeLoaded(&session)
	return &session, nil
}

func loadFromYAMLFile(filename string) (*Session, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var session Session
	if err := yaml.NewDecoder(f).Decode(&session); err != nil {
		return nil, err
	}
	normalizeLoaded(&session)
	return &session, nil
}

func normalizeLoaded(s *Session) {
	if s.Nodes == nil {
		s.Nodes = map[NodeID]*MessageNode{}
	}
	if s.Selection == nil {
		s.Selection = map[NodeID]NodeID{}
	}
	s.RepairActiveLeaf()
}
