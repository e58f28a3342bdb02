package authority

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the per-authority fallback address key in the registry file.
const DefaultKey = "default"

// FallbackRecipient is used when the city is not in the registry at all.
const FallbackRecipient = "mock.recipient@example.com"

// Format of a registry file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

var ErrDuplicateCity = errors.New("duplicate city key")

// Record is one civic authority: the emails it accepts per issue category plus a default.
type Record struct {
	City    string
	Emails  map[string]string
	Default string
}

// EmailFor returns the category address, falling back to the record default.
func (r *Record) EmailFor(category string) string {
	if email, ok := r.Emails[category]; ok && email != "" {
		return email
	}
	return r.Default
}

// MarshalJSON emits the record in the same shape as the registry file.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(r.Emails)+1)
	for k, v := range r.Emails {
		out[k] = v
	}
	if r.Default != "" {
		out[DefaultKey] = r.Default
	}
	return json.Marshal(out)
}

// Registry is an immutable, ordered city → authority table.
type Registry struct {
	records []*Record
	byCity  map[string]*Record
}

// FormatForPath picks the decoder from the file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and parses a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	}
	reg, err := Parse(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes registry data, keeping the key order of the document.
func Parse(data []byte, format Format) (*Registry, error) {
	var (
		records []*Record
		err     error
	)
	switch format {
	case FormatYAML:
		records, err = parseYAML(data)
	default:
		records, err = parseJSON(data)
	}
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		records: records,
		byCity:  make(map[string]*Record, len(records)),
	}
	for _, r := range records {
		if _, exists := reg.byCity[r.City]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCity, r.City)
		}
		reg.byCity[r.City] = r
	}
	return reg, nil
}

// parseJSON walks the top-level object token by token; a map would lose the key order.
func parseJSON(data []byte) ([]*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("registry must be a JSON object")
	}

	var records []*Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		city, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var emails map[string]string
		if err := dec.Decode(&emails); err != nil {
			return nil, fmt.Errorf("city %q: %w", city, err)
		}
		records = append(records, newRecord(city, emails))
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseYAML(data []byte) ([]*Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("registry must be a YAML mapping")
	}

	records := make([]*Record, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		city := root.Content[i].Value
		var emails map[string]string
		if err := root.Content[i+1].Decode(&emails); err != nil {
			return nil, fmt.Errorf("city %q: %w", city, err)
		}
		records = append(records, newRecord(city, emails))
	}
	return records, nil
}

func newRecord(city string, entries map[string]string) *Record {
	r := &Record{City: city, Emails: make(map[string]string, len(entries))}
	for k, v := range entries {
		if k == DefaultKey {
			r.Default = v
			continue
		}
		r.Emails[k] = v
	}
	return r
}

// Len returns the number of authorities.
func (r *Registry) Len() int {
	return len(r.records)
}

// Records returns the authorities in file order.
func (r *Registry) Records() []*Record {
	out := make([]*Record, len(r.records))
	copy(out, r.records)
	return out
}

// Lookup finds an authority by its exact registry key.
func (r *Registry) Lookup(city string) (*Record, bool) {
	rec, ok := r.byCity[city]
	return rec, ok
}

// Match returns the first authority, in file order, whose key contains place
// case-insensitively. Overlapping keys make the result depend on file order.
func (r *Registry) Match(place string) (*Record, bool) {
	place = strings.ToLower(strings.TrimSpace(place))
	if place == "" {
		return nil, false
	}
	for _, rec := range r.records {
		if strings.Contains(strings.ToLower(rec.City), place) {
			return rec, true
		}
	}
	return nil, false
}

// Recipient resolves the address for a category at a city: category address, then
// the authority default, then FallbackRecipient.
func (r *Registry) Recipient(city, category string) string {
	if rec, ok := r.Lookup(city); ok {
		if email := rec.EmailFor(category); email != "" {
			return email
		}
	}
	return FallbackRecipient
}
