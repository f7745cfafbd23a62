package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Report section names. The renderer and the quality validator both
// traverse reports through these keys.
const (
	SectionExecutiveSummary       = "executive_summary"
	SectionAvatar                 = "avatar_psicologico"
	SectionMentalDrivers          = "drivers_mentais"
	SectionObjections             = "analise_objecoes"
	SectionCompetition            = "analise_concorrencia"
	SectionMarketing              = "estrategias_marketing"
	SectionMarketData             = "dados_mercado"
	SectionRecommendations        = "recomendacoes_implementacao"
	SectionMetrics                = "metricas_acompanhamento"
	SectionMetadata               = "metadata"
	SectionDetailedImplementation = "plano_implementacao_detalhado"
)

// RequiredSections are the eight named sections every complete report carries.
var RequiredSections = []string{
	SectionAvatar,
	SectionMentalDrivers,
	SectionObjections,
	SectionMarketing,
	SectionCompetition,
	SectionMarketData,
	SectionRecommendations,
	SectionMetrics,
}

// GeneratedSections are the sections produced by provider calls.
var GeneratedSections = []string{
	SectionAvatar,
	SectionMentalDrivers,
	SectionObjections,
	SectionCompetition,
	SectionMarketing,
	SectionMarketData,
}

// Field is one key of a structured section.
type Field struct {
	Key   string
	Value string
}

// Section is a named report slot holding either plain text or an ordered
// set of fields. Sections are values: changing one means building a new
// Section and swapping it into the report with Report.With.
type Section struct {
	Name   string
	Text   string
	Fields []Field
}

// TextSection builds a plain-text section.
func TextSection(name, text string) Section {
	return Section{Name: name, Text: text}
}

// MapSection builds a structured section from alternating key/value pairs.
func MapSection(name string, kv ...string) Section {
	s := Section{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		s.Fields = append(s.Fields, Field{Key: kv[i], Value: kv[i+1]})
	}
	return s
}

// IsMapping reports whether the section is structured.
func (s Section) IsMapping() bool {
	return s.Fields != nil
}

// Value returns the value of key, if present.
func (s Section) Value(key string) (string, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Content returns the section's primary text: the plain text, or the
// "content" field of a structured section.
func (s Section) Content() string {
	if !s.IsMapping() {
		return s.Text
	}
	if v, ok := s.Value("content"); ok {
		return v
	}
	return ""
}

// AllText joins every value of the section with single spaces.
func (s Section) AllText() string {
	if !s.IsMapping() {
		return s.Text
	}
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Value
	}
	return strings.Join(parts, " ")
}

// WithField returns a copy of s with key set to value. Existing keys keep
// their position; new keys are appended.
func (s Section) WithField(key, value string) Section {
	out := Section{Name: s.Name, Text: s.Text, Fields: make([]Field, 0, len(s.Fields)+1)}
	replaced := false
	for _, f := range s.Fields {
		if f.Key == key {
			f.Value = value
			replaced = true
		}
		out.Fields = append(out.Fields, f)
	}
	if !replaced {
		out.Fields = append(out.Fields, Field{Key: key, Value: value})
	}
	return out
}

// MarshalJSON encodes a plain section as a string and a structured one as
// an object with keys in field order.
func (s Section) MarshalJSON() ([]byte, error) {
	if !s.IsMapping() {
		return json.Marshal(s.Text)
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts either a JSON string or a flat object of strings.
func (s *Section) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		s.Fields = nil
		return json.Unmarshal(data, &s.Text)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	s.Text = ""
	s.Fields = []Field{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("section: expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			value = string(raw)
		}
		s.Fields = append(s.Fields, Field{Key: key, Value: value})
	}
	return expectDelim(dec, '}')
}

// Report is the ordered set of sections produced by one analysis.
type Report struct {
	Sections []Section
}

// Get returns the named section.
func (r Report) Get(name string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Has reports whether the named section exists.
func (r Report) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the section names in order.
func (r Report) Names() []string {
	names := make([]string, len(r.Sections))
	for i, s := range r.Sections {
		names[i] = s.Name
	}
	return names
}

// With returns a new report where sec replaces the section of the same
// name, or is appended when no such section exists. r is not modified.
func (r Report) With(sec Section) Report {
	out := Report{Sections: make([]Section, 0, len(r.Sections)+1)}
	replaced := false
	for _, s := range r.Sections {
		if s.Name == sec.Name {
			s = sec
			replaced = true
		}
		out.Sections = append(out.Sections, s)
	}
	if !replaced {
		out.Sections = append(out.Sections, sec)
	}
	return out
}

// Text concatenates every section value, in order, separated by spaces.
func (r Report) Text() string {
	parts := make([]string, len(r.Sections))
	for i, s := range r.Sections {
		parts[i] = s.AllText()
	}
	return strings.Join(parts, " ")
}

// MarshalJSON encodes the report as an object keyed by section name.
func (r Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range r.Sections {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(s.Name)
		if err != nil {
			return nil, err
		}
		v, err := s.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a report object preserving section order.
func (r *Report) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		r.Sections = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	r.Sections = nil
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("report: expected section name, got %v", tok)
		}
		var sec Section
		if err := dec.Decode(&sec); err != nil {
			return fmt.Errorf("report: section %s: %w", name, err)
		}
		sec.Name = name
		r.Sections = append(r.Sections, sec)
	}
	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
