package models

import (
	"sort"
	"time"
)

// SnapshotField is one named state variable value
type SnapshotField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StateSnapshot holds named state-variable values in read order
type StateSnapshot struct {
	Label   string          `json:"label"`
	Block   uint64          `json:"block"`
	TakenAt time.Time       `json:"taken_at"`
	Fields  []SnapshotField `json:"fields"`
}

// Set records a value, replacing an existing field of the same name
func (s *StateSnapshot) Set(name, value string) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields[i].Value = value
			return
		}
	}
	s.Fields = append(s.Fields, SnapshotField{Name: name, Value: value})
}

// Get returns a field value and whether it exists
func (s *StateSnapshot) Get(name string) (string, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Keys returns field names in read order
func (s *StateSnapshot) Keys() []string {
	keys := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		keys = append(keys, f.Name)
	}
	return keys
}

// AddedKeys returns the sorted keys present in next but absent from prev
func AddedKeys(prev, next *StateSnapshot) []string {
	seen := make(map[string]struct{}, len(prev.Fields))
	for _, f := range prev.Fields {
		seen[f.Name] = struct{}{}
	}

	var added []string
	for _, f := range next.Fields {
		if _, ok := seen[f.Name]; !ok {
			added = append(added, f.Name)
		}
	}
	sort.Strings(added)
	return added
}
