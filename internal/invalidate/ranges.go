package invalidate

import (
	"strings"

	"github.com/cadabra-cache/cadabra/internal/analysis"
)

// bound is one end of an interval constraint.
type bound struct {
	value     analysis.Value
	inclusive bool
}

// constraint is either a point set (equality, IN) or an interval; a nil
// lower or upper bound is unbounded on that side.
type constraint struct {
	points []analysis.Value
	lower  *bound
	upper  *bound
}

// conditionsDisjoint reports whether some column constrained on both sides
// has provably non-overlapping constraints. Values compare as exact decimals
// when both are numeric and lexicographically when both are strings, which
// covers ISO date and time strings; incomparable pairs count as overlapping.
func conditionsDisjoint(cached, write []analysis.Condition) bool {
	cachedCols := constraintsByColumn(cached)
	writeCols := constraintsByColumn(write)
	for col, cc := range cachedCols {
		wc, ok := writeCols[col]
		if !ok {
			continue
		}
		disjoint := true
		for _, a := range cc {
			for _, b := range wc {
				if constraintsOverlap(a, b) {
					disjoint = false
				}
			}
		}
		if disjoint {
			return true
		}
	}
	return false
}

func constraintsByColumn(conds []analysis.Condition) map[string][]constraint {
	out := make(map[string][]constraint)
	for _, cond := range conds {
		if cond.Value == nil {
			continue
		}
		col := strings.ToLower(cond.Column)
		value := *cond.Value
		switch cond.Operator {
		case analysis.OpEq:
			out[col] = append(out[col], constraint{points: []analysis.Value{value}})
		case analysis.OpIn:
			if len(value.ListVal) > 0 {
				out[col] = append(out[col], constraint{points: value.ListVal})
			}
		case analysis.OpGt:
			out[col] = append(out[col], constraint{lower: &bound{value: value}})
		case analysis.OpGe:
			out[col] = append(out[col], constraint{lower: &bound{value: value, inclusive: true}})
		case analysis.OpLt:
			out[col] = append(out[col], constraint{upper: &bound{value: value}})
		case analysis.OpLe:
			out[col] = append(out[col], constraint{upper: &bound{value: value, inclusive: true}})
		case analysis.OpBetween:
			if len(value.ListVal) == 2 {
				out[col] = append(out[col], constraint{
					lower: &bound{value: value.ListVal[0], inclusive: true},
					upper: &bound{value: value.ListVal[1], inclusive: true},
				})
			}
		}
	}
	return out
}

func constraintsOverlap(a, b constraint) bool {
	switch {
	case a.points != nil && b.points != nil:
		for _, pa := range a.points {
			for _, pb := range b.points {
				c, ok := cmpValues(pa, pb)
				if !ok || c == 0 {
					return true
				}
			}
		}
		return false
	case a.points != nil:
		return anyPointInRange(a.points, b)
	case b.points != nil:
		return anyPointInRange(b.points, a)
	default:
		return !below(a.upper, b.lower) && !below(b.upper, a.lower)
	}
}

func anyPointInRange(points []analysis.Value, r constraint) bool {
	for _, p := range points {
		in, ok := pointInRange(p, r)
		if !ok || in {
			return true
		}
	}
	return false
}

func pointInRange(p analysis.Value, r constraint) (in, ok bool) {
	if r.lower != nil {
		c, ok := cmpValues(p, r.lower.value)
		if !ok {
			return false, false
		}
		if c < 0 || (c == 0 && !r.lower.inclusive) {
			return false, true
		}
	}
	if r.upper != nil {
		c, ok := cmpValues(p, r.upper.value)
		if !ok {
			return false, false
		}
		if c > 0 || (c == 0 && !r.upper.inclusive) {
			return false, true
		}
	}
	return true, true
}

// below reports whether the interval ending at hi lies strictly under the
// interval starting at lo. Touching endpoints separate unless both are
// inclusive.
func below(hi, lo *bound) bool {
	if hi == nil || lo == nil {
		return false
	}
	c, ok := cmpValues(hi.value, lo.value)
	if !ok {
		return false
	}
	if c < 0 {
		return true
	}
	return c == 0 && !(hi.inclusive && lo.inclusive)
}

func cmpValues(a, b analysis.Value) (int, bool) {
	da, aNumeric := a.Numeric()
	db, bNumeric := b.Numeric()
	if aNumeric && bNumeric {
		return da.Cmp(db), true
	}
	if aNumeric || bNumeric {
		return 0, false
	}
	if a.Kind == analysis.ValueString && b.Kind == analysis.ValueString {
		return strings.Compare(a.StrVal, b.StrVal), true
	}
	return 0, false
}
