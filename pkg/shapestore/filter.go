package shapestore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// Filter decides whether a record belongs to a query result. An error fails
// only the record being evaluated; the store logs it and skips the record.
type Filter interface {
	Evaluate(r *Record) (bool, error)
}

// SpatialPredicate is implemented by filters that constrain a geometry
// property to an envelope. The store uses it to pick index candidates when
// the predicate is the root of a query's filter.
type SpatialPredicate interface {
	Filter
	SpatialExtent() (property string, env Envelope)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(r *Record) (bool, error)

// Evaluate calls f.
func (f FilterFunc) Evaluate(r *Record) (bool, error) { return f(r) }

// BBoxFilter matches records whose geometry envelope intersects Envelope.
type BBoxFilter struct {
	Property string
	Envelope Envelope
}

// BBox matches records whose geometry intersects env.
func BBox(env Envelope) *BBoxFilter {
	return &BBoxFilter{Property: GeometryProperty, Envelope: env}
}

// SpatialExtent implements SpatialPredicate.
func (f *BBoxFilter) SpatialExtent() (string, Envelope) { return f.Property, f.Envelope }

// Evaluate implements Filter. The envelope must be in the record's CRS.
func (f *BBoxFilter) Evaluate(r *Record) (bool, error) {
	if f.Property != "" && f.Property != GeometryProperty {
		v, ok := r.Property(f.Property)
		g, isGeom := v.(*Geometry)
		if !ok || !isGeom || g == nil {
			return false, nil
		}
		return f.Envelope.Intersects(EnvelopeFromBound(g.Bound(), r.Envelope.CRS)), nil
	}
	if !SameCRS(f.Envelope.CRS, r.Envelope.CRS) {
		return false, fmt.Errorf("bbox in %s against record in %s: %w",
			f.Envelope.CRS, r.Envelope.CRS, storeerr.ErrUnsupportedQuery)
	}
	return f.Envelope.Intersects(r.Envelope), nil
}

func (f *BBoxFilter) String() string {
	return fmt.Sprintf("BBOX(%s, %s)", f.Property, f.Envelope)
}

// Operator is a binary comparison operator.
type Operator string

// Comparison operators.
const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "<>"
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

// ParseOperator accepts the operator symbols and "!=".
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return op, nil
	case "!=":
		return OpNotEqual, nil
	}
	return "", fmt.Errorf("operator %q: %w", s, storeerr.ErrUnsupportedQuery)
}

// ComparisonFilter compares an attribute with a literal. Records whose
// attribute is missing or null never match.
type ComparisonFilter struct {
	Property string
	Op       Operator
	Value    any
}

// Compare returns a filter applying op to the named attribute and value.
func Compare(property string, op Operator, value any) *ComparisonFilter {
	return &ComparisonFilter{Property: property, Op: op, Value: value}
}

// PropertyIsEqualTo matches records whose attribute equals value.
func PropertyIsEqualTo(property string, value any) *ComparisonFilter {
	return Compare(property, OpEqual, value)
}

// Evaluate implements Filter.
func (f *ComparisonFilter) Evaluate(r *Record) (bool, error) {
	v, ok := r.Attribute(f.Property)
	if !ok || v == nil || f.Value == nil {
		return false, nil
	}
	c, comparable := compareValues(v, f.Value)
	if !comparable {
		switch f.Op {
		case OpEqual:
			return false, nil
		case OpNotEqual:
			return true, nil
		}
		return false, fmt.Errorf("compare %s %T %s %T: %w", f.Property, v, f.Op, f.Value, storeerr.ErrUnsupportedQuery)
	}
	switch f.Op {
	case OpEqual:
		return c == 0, nil
	case OpNotEqual:
		return c != 0, nil
	case OpLess:
		return c < 0, nil
	case OpLessEqual:
		return c <= 0, nil
	case OpGreater:
		return c > 0, nil
	case OpGreaterEqual:
		return c >= 0, nil
	}
	return false, fmt.Errorf("operator %q: %w", f.Op, storeerr.ErrUnsupportedQuery)
}

func (f *ComparisonFilter) String() string {
	return fmt.Sprintf("%s %s %v", f.Property, f.Op, f.Value)
}

// compareValues orders an attribute value against a literal. Strings given
// for numeric, boolean or date attributes are parsed first.
func compareValues(attr, lit any) (int, bool) {
	switch a := attr.(type) {
	case string:
		s, ok := lit.(string)
		if !ok {
			s = fmt.Sprint(lit)
		}
		return strings.Compare(a, s), true
	case bool:
		b, ok := toBool(lit)
		if !ok {
			return 0, false
		}
		switch {
		case a == b:
			return 0, true
		case !a:
			return -1, true
		}
		return 1, true
	case time.Time:
		t, ok := toTime(lit)
		if !ok {
			return 0, false
		}
		return a.Compare(t), true
	}
	a, ok := toFloat(attr)
	if !ok {
		return 0, false
	}
	b, ok := toFloat(lit)
	if !ok {
		return 0, false
	}
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	}
	return 0, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		p, err := strconv.ParseBool(strings.TrimSpace(b))
		return p, err == nil
	}
	return false, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{"2006-01-02", "20060102", time.RFC3339} {
			if p, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return p, true
			}
		}
	}
	return time.Time{}, false
}

// LikeFilter matches string attributes against a pattern where * matches
// any run of characters and ? matches one. A backslash escapes the next
// character.
type LikeFilter struct {
	Property  string
	Pattern   string
	MatchCase bool
	re        *regexp.Regexp
}

// PropertyIsLike returns a case-sensitive pattern filter.
func PropertyIsLike(property, pattern string) *LikeFilter {
	return newLike(property, pattern, true)
}

// PropertyIsLikeFold returns a case-insensitive pattern filter.
func PropertyIsLikeFold(property, pattern string) *LikeFilter {
	return newLike(property, pattern, false)
}

func newLike(property, pattern string, matchCase bool) *LikeFilter {
	var b strings.Builder
	if !matchCase {
		b.WriteString("(?i)")
	}
	b.WriteString("^(?s:")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '*':
			b.WriteString(".*")
		case r == '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		b.WriteString(`\\`)
	}
	b.WriteString(")$")
	return &LikeFilter{
		Property:  property,
		Pattern:   pattern,
		MatchCase: matchCase,
		re:        regexp.MustCompile(b.String()),
	}
}

// Evaluate implements Filter. Non-string values are matched by their
// decimal or textual form.
func (f *LikeFilter) Evaluate(r *Record) (bool, error) {
	v, ok := r.Attribute(f.Property)
	if !ok || v == nil {
		return false, nil
	}
	s, isString := v.(string)
	if !isString {
		s = fmt.Sprint(v)
	}
	return f.re.MatchString(s), nil
}

// NullFilter matches records whose attribute is null or absent.
type NullFilter struct {
	Property string
}

// PropertyIsNull returns a NullFilter.
func PropertyIsNull(property string) *NullFilter { return &NullFilter{Property: property} }

// Evaluate implements Filter.
func (f *NullFilter) Evaluate(r *Record) (bool, error) {
	v, ok := r.Property(f.Property)
	return !ok || v == nil, nil
}

// AndFilter matches when every operand matches. An empty And matches
// everything.
type AndFilter struct{ Operands []Filter }

// And combines filters conjunctively.
func And(filters ...Filter) *AndFilter { return &AndFilter{Operands: filters} }

// Evaluate implements Filter. Evaluation stops at the first non-match.
func (f *AndFilter) Evaluate(r *Record) (bool, error) {
	for _, op := range f.Operands {
		ok, err := op.Evaluate(r)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// OrFilter matches when any operand matches.
type OrFilter struct{ Operands []Filter }

// Or combines filters disjunctively.
func Or(filters ...Filter) *OrFilter { return &OrFilter{Operands: filters} }

// Evaluate implements Filter. Evaluation stops at the first match.
func (f *OrFilter) Evaluate(r *Record) (bool, error) {
	for _, op := range f.Operands {
		ok, err := op.Evaluate(r)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// NotFilter negates its operand.
type NotFilter struct{ Operand Filter }

// Not negates f.
func Not(f Filter) *NotFilter { return &NotFilter{Operand: f} }

// Evaluate implements Filter.
func (f *NotFilter) Evaluate(r *Record) (bool, error) {
	ok, err := f.Operand.Evaluate(r)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// IDFilter matches records by id. At the root of a query it replaces the
// index lookup.
type IDFilter struct {
	ids *roaring.Bitmap
}

// IDs matches the given record ids. Ids below 1 are ignored.
func IDs(ids ...int) *IDFilter {
	bm := roaring.New()
	for _, id := range ids {
		if id > 0 {
			bm.Add(uint32(id))
		}
	}
	return &IDFilter{ids: bm}
}

// IDBitmap matches the ids in bm. The bitmap is copied.
func IDBitmap(bm *roaring.Bitmap) *IDFilter {
	return &IDFilter{ids: bm.Clone()}
}

// Evaluate implements Filter.
func (f *IDFilter) Evaluate(r *Record) (bool, error) {
	return r.ID > 0 && f.ids.Contains(uint32(r.ID)), nil
}

// Len returns the number of ids.
func (f *IDFilter) Len() int { return int(f.ids.GetCardinality()) }

// IDs returns the ids in ascending order.
func (f *IDFilter) IDs() []int {
	out := make([]int, 0, f.ids.GetCardinality())
	it := f.ids.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}
