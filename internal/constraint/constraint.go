// Package constraint defines the typed search constraints a user builds in
// the search form, and the parsers that produce them from flat request
// parameters or saved YAML/JSON constraint files.
package constraint

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrMalformed is returned when a constraint group is incomplete or carries
// values the compiler cannot use. Callers drop such constraints.
var ErrMalformed = errors.New("malformed constraint")

// Kind identifies the constraint variant.
type Kind string

// Constraint kinds.
const (
	KindString    Kind = "string"
	KindDateRange Kind = "date"
	KindFact      Kind = "fact"
	KindFactValue Kind = "fact_val"
)

const maxSlop = 100

var dateLayouts = []string{"2006-01-02", "2006-01", "2006", time.RFC3339}

// MatchType is the engine query used for a string literal.
type MatchType string

// Match types.
const (
	MatchPlain        MatchType = "match"
	MatchPhrase       MatchType = "match_phrase"
	MatchPhrasePrefix MatchType = "match_phrase_prefix"
)

// Operator is the boolean occurrence a constraint group is placed under.
type Operator string

// Operators.
const (
	OpMust    Operator = "must"
	OpShould  Operator = "should"
	OpMustNot Operator = "must_not"
)

// ValueType selects whether a fact value is compared as a string or number.
type ValueType string

// Value types.
const (
	ValueStr ValueType = "str"
	ValueNum ValueType = "num"
)

// Constraint is one UI-rendered constraint row. The concrete types are
// StringConstraint, DateRangeConstraint, FactConstraint and
// FactValueConstraint.
type Constraint interface {
	Kind() Kind
	ID() string
	Validate() error
}

// StringConstraint matches newline-separated literals against a text field.
type StringConstraint struct {
	FieldID   string    `json:"field_id" yaml:"field_id"`
	Field     string    `json:"field" yaml:"field"`
	MatchType MatchType `json:"match_type" yaml:"match_type"`
	Slop      int       `json:"slop" yaml:"slop"`
	Operator  Operator  `json:"operator" yaml:"operator"`
	Literals  []string  `json:"literals" yaml:"literals"`
}

// DateRangeConstraint bounds a date field. Either bound may be empty.
type DateRangeConstraint struct {
	FieldID string `json:"field_id" yaml:"field_id"`
	Field   string `json:"field" yaml:"field"`
	From    string `json:"from" yaml:"from"`
	To      string `json:"to" yaml:"to"`
}

// FactConstraint requires (or excludes) documents carrying facts with the
// given names in a field.
type FactConstraint struct {
	FieldID  string   `json:"field_id" yaml:"field_id"`
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Literals []string `json:"literals" yaml:"literals"`
}

// FactValueConstraint compares the value of a named fact.
type FactValueConstraint struct {
	FieldID   string    `json:"field_id" yaml:"field_id"`
	Field     string    `json:"field" yaml:"field"`
	FactName  string    `json:"fact_name" yaml:"fact_name"`
	Operator  Operator  `json:"operator" yaml:"operator"`
	ValueOp   string    `json:"value_op" yaml:"value_op"`
	Value     string    `json:"value" yaml:"value"`
	ValueType ValueType `json:"value_type" yaml:"value_type"`
}

func (c *StringConstraint) Kind() Kind    { return KindString }
func (c *DateRangeConstraint) Kind() Kind { return KindDateRange }
func (c *FactConstraint) Kind() Kind      { return KindFact }
func (c *FactValueConstraint) Kind() Kind { return KindFactValue }

func (c *StringConstraint) ID() string    { return c.FieldID }
func (c *DateRangeConstraint) ID() string { return c.FieldID }
func (c *FactConstraint) ID() string      { return c.FieldID }
func (c *FactValueConstraint) ID() string { return c.FieldID }

// Validate checks the constraint and fills defaults (match type, operator).
func (c *StringConstraint) Validate() error {
	if c.Field == "" {
		return malformed(c.FieldID, "missing field")
	}
	if c.MatchType == "" {
		c.MatchType = MatchPlain
	}
	switch c.MatchType {
	case MatchPlain, MatchPhrase, MatchPhrasePrefix:
	default:
		return malformed(c.FieldID, "unknown match type %q", c.MatchType)
	}
	op, err := normalizeOperator(c.Operator)
	if err != nil {
		return malformed(c.FieldID, "%v", err)
	}
	c.Operator = op
	if c.Slop < 0 || c.Slop > maxSlop {
		return malformed(c.FieldID, "slop %d out of range", c.Slop)
	}
	c.Literals = cleanLiterals(c.Literals)
	if len(c.Literals) == 0 {
		return malformed(c.FieldID, "no literals")
	}
	return nil
}

// Validate checks that at least one bound is present and every bound parses
// as a date.
func (c *DateRangeConstraint) Validate() error {
	if c.Field == "" {
		return malformed(c.FieldID, "missing field")
	}
	c.From = strings.TrimSpace(c.From)
	c.To = strings.TrimSpace(c.To)
	if c.From == "" && c.To == "" {
		return malformed(c.FieldID, "empty date range")
	}
	for _, d := range []string{c.From, c.To} {
		if d != "" && !isDate(d) {
			return malformed(c.FieldID, "invalid date %q", d)
		}
	}
	return nil
}

// Validate checks the fact constraint and fills the default operator.
func (c *FactConstraint) Validate() error {
	if c.Field == "" {
		return malformed(c.FieldID, "missing field")
	}
	op, err := normalizeOperator(c.Operator)
	if err != nil {
		return malformed(c.FieldID, "%v", err)
	}
	c.Operator = op
	c.Literals = cleanLiterals(c.Literals)
	if len(c.Literals) == 0 {
		return malformed(c.FieldID, "no fact names")
	}
	return nil
}

// Validate checks the fact-value constraint. Ordering comparisons are only
// valid for numeric values.
func (c *FactValueConstraint) Validate() error {
	if c.Field == "" {
		return malformed(c.FieldID, "missing field")
	}
	c.FactName = strings.TrimSpace(c.FactName)
	if c.FactName == "" {
		return malformed(c.FieldID, "missing fact name")
	}
	op, err := normalizeOperator(c.Operator)
	if err != nil {
		return malformed(c.FieldID, "%v", err)
	}
	c.Operator = op
	if c.ValueType == "" {
		c.ValueType = ValueStr
	}
	if c.ValueOp == "" {
		c.ValueOp = "="
	}
	switch c.ValueType {
	case ValueStr:
		if c.ValueOp != "=" && c.ValueOp != "!=" {
			return malformed(c.FieldID, "operator %q not valid for string values", c.ValueOp)
		}
	case ValueNum:
		switch c.ValueOp {
		case "=", "!=", "<", "<=", ">", ">=":
		default:
			return malformed(c.FieldID, "unknown value operator %q", c.ValueOp)
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64); err != nil {
			return malformed(c.FieldID, "value %q is not a number", c.Value)
		}
	default:
		return malformed(c.FieldID, "unknown value type %q", c.ValueType)
	}
	return nil
}

// NumericValue returns the parsed numeric value. Only valid after Validate
// succeeded on a ValueNum constraint.
func (c *FactValueConstraint) NumericValue() float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	return f
}

// Set maps field IDs to their constraint.
type Set map[string]Constraint

// Ordered returns the constraints sorted by field ID. Numeric IDs sort
// numerically, so "2" precedes "10".
func (s Set) Ordered() []Constraint {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
	out := make([]Constraint, 0, len(ids))
	for _, id := range ids {
		out = append(out, s[id])
	}
	return out
}

func lessID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

// SplitLines splits newline-separated input into trimmed, non-blank literals.
func SplitLines(s string) []string {
	return cleanLiterals(strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n"))
}

func cleanLiterals(in []string) []string {
	var out []string
	for _, l := range in {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func normalizeOperator(op Operator) (Operator, error) {
	switch op {
	case "":
		return OpMust, nil
	case OpMust, OpShould, OpMustNot:
		return op, nil
	}
	return "", fmt.Errorf("unknown operator %q", op)
}

// isDate accepts the layouts the date picker produces plus engine date math
// ("now-1y").
func isDate(s string) bool {
	if strings.HasPrefix(s, "now") {
		return true
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func malformed(fieldID, format string, args ...any) error {
	return eris.Wrapf(ErrMalformed, "constraint %s: %s", fieldID, fmt.Sprintf(format, args...))
}
