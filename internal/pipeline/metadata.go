package pipeline

import (
	"fmt"
	"regexp"

	"github.com/coursekit/coursekit/internal/buildlog"
	"github.com/coursekit/coursekit/internal/yamlutil"
)

// validID matches step and section identifiers.
var validID = regexp.MustCompile(`^[\w-]+$`)

// StepMetadata accumulates everything the renderer learns about one step:
// titles captured from headings, key/value fields from blockquote blocks,
// and the glossary/biography ids referenced by links.
type StepMetadata struct {
	CourseTitle  string
	SectionTitle string

	fields map[string]string

	gloss     []string
	glossSeen map[string]bool
	bios      []string
	biosSeen  map[string]bool
}

func NewStepMetadata() *StepMetadata {
	return &StepMetadata{
		fields:    map[string]string{},
		glossSeen: map[string]bool{},
		biosSeen:  map[string]bool{},
	}
}

// Field returns the value of a blockquote metadata field, or "".
func (m *StepMetadata) Field(key string) string {
	return m.fields[key]
}

// SetField stores a metadata field value.
func (m *StepMetadata) SetField(key, value string) {
	m.fields[key] = value
}

// MergeYAML parses a blockquote metadata block and merges its keys into the
// step fields. Non-string scalar values are stringified.
func (m *StepMetadata) MergeYAML(raw []byte) error {
	var data map[string]any
	if err := yamlutil.Unmarshal(raw, &data); err != nil {
		return err
	}
	for key, value := range data {
		m.fields[key] = fmt.Sprintf("%v", value)
	}
	return nil
}

// AddGloss records a glossary id referenced by this step. Order of first
// reference is preserved.
func (m *StepMetadata) AddGloss(id string) {
	if !m.glossSeen[id] {
		m.glossSeen[id] = true
		m.gloss = append(m.gloss, id)
	}
}

// AddBio records a biography id referenced by this step.
func (m *StepMetadata) AddBio(id string) {
	if !m.biosSeen[id] {
		m.biosSeen[id] = true
		m.bios = append(m.bios, id)
	}
}

// Gloss returns the referenced glossary ids in first-reference order.
func (m *StepMetadata) Gloss() []string { return m.gloss }

// Bios returns the referenced biography ids in first-reference order.
func (m *StepMetadata) Bios() []string { return m.bios }

// CheckID validates a step or section id, warning and returning "" when the
// id contains characters outside [\w-].
func CheckID(id, kind string, log *buildlog.Logger) string {
	if id == "" {
		return ""
	}
	if validID.MatchString(id) {
		return id
	}
	log.Warnf("invalid %s ID: %s", kind, id)
	return ""
}
