package constraint

import (
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type family string

const (
	familyMatch     family = "match"
	familyDateRange family = "daterange"
	familyFact      family = "fact"
)

// paramKind is one recognised "<prefix>_<kind>_" key prefix. Longer
// prefixes are listed before shorter ones sharing a stem.
type paramKind struct {
	prefix string
	family family
	key    string
}

var paramKinds = []paramKind{
	{"match_field_", familyMatch, "field"},
	{"match_type_", familyMatch, "type"},
	{"match_slop_", familyMatch, "slop"},
	{"match_operator_", familyMatch, "operator"},
	{"match_txt_", familyMatch, "txt"},
	{"daterange_field_", familyDateRange, "field"},
	{"daterange_from_", familyDateRange, "from"},
	{"daterange_to_", familyDateRange, "to"},
	{"fact_constraint_type_", familyFact, "constraint_type"},
	{"fact_constraint_val_", familyFact, "constraint_val"},
	{"fact_constraint_op_", familyFact, "constraint_op"},
	{"fact_field_", familyFact, "field"},
	{"fact_txt_", familyFact, "txt"},
	{"fact_operator_", familyFact, "operator"},
}

type paramGroup struct {
	families map[family]bool
	values   map[string]string
}

func (g *paramGroup) get(key string) string { return g.values[key] }

// ParseParams groups flat request parameters named
// "<prefix>_<kind>_<field_id>" into one constraint per field ID. Unknown
// keys are ignored. Groups that mix constraint kinds or fail validation are
// dropped.
func ParseParams(params map[string]string) Set {
	groups := make(map[string]*paramGroup)
	for name, value := range params {
		pk, fieldID, ok := matchParam(name)
		if !ok {
			continue
		}
		g, exists := groups[fieldID]
		if !exists {
			g = &paramGroup{families: make(map[family]bool), values: make(map[string]string)}
			groups[fieldID] = g
		}
		g.families[pk.family] = true
		g.values[pk.key] = value
	}

	set := make(Set, len(groups))
	for fieldID, g := range groups {
		c := g.build(fieldID)
		if c == nil {
			zap.L().Debug("constraint: dropping mixed parameter group", zap.String("field_id", fieldID))
			continue
		}
		if err := c.Validate(); err != nil {
			zap.L().Debug("constraint: dropping malformed group",
				zap.String("field_id", fieldID),
				zap.Error(err),
			)
			continue
		}
		set[fieldID] = c
	}
	return set
}

// ParseValues is ParseParams over url.Values, using the first value of each
// key.
func ParseValues(values url.Values) Set {
	flat := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	return ParseParams(flat)
}

func matchParam(name string) (paramKind, string, bool) {
	for _, pk := range paramKinds {
		if strings.HasPrefix(name, pk.prefix) {
			fieldID := strings.TrimPrefix(name, pk.prefix)
			if fieldID == "" {
				return paramKind{}, "", false
			}
			return pk, fieldID, true
		}
	}
	return paramKind{}, "", false
}

func (g *paramGroup) build(fieldID string) Constraint {
	if len(g.families) != 1 {
		return nil
	}
	switch {
	case g.families[familyMatch]:
		slop := 0
		if s := strings.TrimSpace(g.get("slop")); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				// Out-of-range slop is rejected by Validate.
				n = -1
			}
			slop = n
		}
		return &StringConstraint{
			FieldID:   fieldID,
			Field:     g.get("field"),
			MatchType: MatchType(g.get("type")),
			Slop:      slop,
			Operator:  Operator(g.get("operator")),
			Literals:  SplitLines(g.get("txt")),
		}
	case g.families[familyDateRange]:
		return &DateRangeConstraint{
			FieldID: fieldID,
			Field:   g.get("field"),
			From:    g.get("from"),
			To:      g.get("to"),
		}
	case g.families[familyFact]:
		if g.hasAny("constraint_type", "constraint_val", "constraint_op") {
			return &FactValueConstraint{
				FieldID:   fieldID,
				Field:     g.get("field"),
				FactName:  g.get("txt"),
				Operator:  Operator(g.get("operator")),
				ValueOp:   g.get("constraint_op"),
				Value:     g.get("constraint_val"),
				ValueType: ValueType(g.get("constraint_type")),
			}
		}
		return &FactConstraint{
			FieldID:  fieldID,
			Field:    g.get("field"),
			Operator: Operator(g.get("operator")),
			Literals: SplitLines(g.get("txt")),
		}
	}
	return nil
}

func (g *paramGroup) hasAny(keys ...string) bool {
	for _, k := range keys {
		if _, ok := g.values[k]; ok {
			return true
		}
	}
	return false
}
