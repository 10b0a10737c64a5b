package constraint

import (
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Spec is the serialised form of a constraint, used by saved query files
// and JSON API requests. Unlike ParseParams, building from a Spec reports
// malformed input instead of dropping it.
type Spec struct {
	Kind      Kind      `json:"kind" yaml:"kind"`
	FieldID   string    `json:"field_id,omitempty" yaml:"field_id,omitempty"`
	Field     string    `json:"field" yaml:"field"`
	MatchType MatchType `json:"match_type,omitempty" yaml:"match_type,omitempty"`
	Slop      int       `json:"slop,omitempty" yaml:"slop,omitempty"`
	Operator  Operator  `json:"operator,omitempty" yaml:"operator,omitempty"`
	Text      string    `json:"text,omitempty" yaml:"text,omitempty"`
	Literals  []string  `json:"literals,omitempty" yaml:"literals,omitempty"`
	From      string    `json:"from,omitempty" yaml:"from,omitempty"`
	To        string    `json:"to,omitempty" yaml:"to,omitempty"`
	FactName  string    `json:"fact_name,omitempty" yaml:"fact_name,omitempty"`
	ValueOp   string    `json:"value_op,omitempty" yaml:"value_op,omitempty"`
	Value     string    `json:"value,omitempty" yaml:"value,omitempty"`
	ValueType ValueType `json:"value_type,omitempty" yaml:"value_type,omitempty"`
}

// File is a saved query: an ordered list of constraint specs.
type File struct {
	Constraints []Spec `yaml:"constraints" json:"constraints"`
}

// Build converts the spec into a validated Constraint.
func (s Spec) Build() (Constraint, error) {
	literals := append(SplitLines(s.Text), s.Literals...)

	var c Constraint
	switch s.Kind {
	case KindString:
		c = &StringConstraint{
			FieldID:   s.FieldID,
			Field:     s.Field,
			MatchType: s.MatchType,
			Slop:      s.Slop,
			Operator:  s.Operator,
			Literals:  literals,
		}
	case KindDateRange:
		c = &DateRangeConstraint{FieldID: s.FieldID, Field: s.Field, From: s.From, To: s.To}
	case KindFact:
		c = &FactConstraint{FieldID: s.FieldID, Field: s.Field, Operator: s.Operator, Literals: literals}
	case KindFactValue:
		c = &FactValueConstraint{
			FieldID:   s.FieldID,
			Field:     s.Field,
			FactName:  s.FactName,
			Operator:  s.Operator,
			ValueOp:   s.ValueOp,
			Value:     s.Value,
			ValueType: s.ValueType,
		}
	default:
		return nil, malformed(s.FieldID, "unknown kind %q", s.Kind)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromSpecs builds a Set from specs. Specs without a field ID are numbered
// by position, starting at 1.
func FromSpecs(specs []Spec) (Set, error) {
	set := make(Set, len(specs))
	for i, s := range specs {
		if s.FieldID == "" {
			s.FieldID = strconv.Itoa(i + 1)
		}
		if _, dup := set[s.FieldID]; dup {
			return nil, malformed(s.FieldID, "duplicate field id")
		}
		c, err := s.Build()
		if err != nil {
			return nil, err
		}
		set[s.FieldID] = c
	}
	return set, nil
}

// LoadFile reads a YAML (or JSON, which is valid YAML) query file.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "constraint: read query file")
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "constraint: parse query file")
	}
	set, err := FromSpecs(f.Constraints)
	if err != nil {
		return nil, eris.Wrapf(err, "constraint: query file %s", path)
	}
	return set, nil
}
