package shapestore

import (
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *Record {
	return &Record{
		ID:       7,
		TypeName: "roads",
		Envelope: NewEnvelope(0, 0, 2, 2, CRS84),
		Attributes: map[string]any{
			"NAME":   "Main Street",
			"LANES":  int64(4),
			"WIDTH":  float64(12.5),
			"PAVED":  true,
			"BUILT":  time.Date(1998, 6, 1, 0, 0, 0, 0, time.UTC),
			"REMARK": nil,
		},
	}
}

func TestComparisonFilter(t *testing.T) {
	t.Parallel()

	r := testRecord()
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"string equal", PropertyIsEqualTo("NAME", "Main Street"), true},
		{"string less", Compare("NAME", OpLess, "Oak"), true},
		{"int equal", PropertyIsEqualTo("LANES", 4), true},
		{"int from string", Compare("LANES", OpGreaterEqual, "4"), true},
		{"float greater", Compare("WIDTH", OpGreater, 12), true},
		{"float not equal", Compare("WIDTH", OpNotEqual, 12.5), false},
		{"bool", PropertyIsEqualTo("PAVED", "true"), true},
		{"date", Compare("BUILT", OpLess, "2000-01-01"), true},
		{"date equal", PropertyIsEqualTo("BUILT", "19980601"), true},
		{"missing attribute", PropertyIsEqualTo("SPEED", 30), false},
		{"null attribute", Compare("REMARK", OpNotEqual, "x"), false},
		{"incomparable equal", PropertyIsEqualTo("LANES", "four"), false},
		{"incomparable not equal", Compare("LANES", OpNotEqual, "four"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.filter.Evaluate(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Compare("LANES", OpLess, "four").Evaluate(r)
	require.ErrorIs(t, err, ErrUnsupportedQuery)
}

func TestParseOperator(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Operator{
		"=": OpEqual, "<>": OpNotEqual, "!=": OpNotEqual,
		" <= ": OpLessEqual, ">": OpGreater,
	} {
		got, err := ParseOperator(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOperator("~")
	require.ErrorIs(t, err, ErrUnsupportedQuery)
}

func TestLikeFilter(t *testing.T) {
	t.Parallel()

	r := testRecord()
	tests := []struct {
		filter *LikeFilter
		want   bool
	}{
		{PropertyIsLike("NAME", "Main*"), true},
		{PropertyIsLike("NAME", "main*"), false},
		{PropertyIsLikeFold("NAME", "main*"), true},
		{PropertyIsLike("NAME", "Ma?n Street"), true},
		{PropertyIsLike("NAME", "Main"), false},
		{PropertyIsLike("NAME", "Main.Street"), false},
		{PropertyIsLike("LANES", "4"), true},
		{PropertyIsLike("REMARK", "*"), false},
	}
	for _, tt := range tests {
		got, err := tt.filter.Evaluate(r)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s LIKE %s", tt.filter.Property, tt.filter.Pattern)
	}

	r.Attributes["NAME"] = "100*"
	ok, err := PropertyIsLike("NAME", `100\*`).Evaluate(r)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = PropertyIsLike("NAME", `100\*`).Evaluate(&Record{Attributes: map[string]any{"NAME": "1000"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNullFilter(t *testing.T) {
	t.Parallel()

	r := testRecord()
	for prop, want := range map[string]bool{
		"REMARK":         true,
		"MISSING":        true,
		"NAME":           false,
		GeometryProperty: true,
	} {
		got, err := PropertyIsNull(prop).Evaluate(r)
		require.NoError(t, err)
		assert.Equal(t, want, got, prop)
	}
}

func TestLogicalFilters(t *testing.T) {
	t.Parallel()

	r := testRecord()
	yes := PropertyIsEqualTo("NAME", "Main Street")
	no := PropertyIsEqualTo("LANES", 2)
	broken := FilterFunc(func(*Record) (bool, error) { return false, ErrUnsupportedQuery })

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty and", And(), true},
		{"and", And(yes, no), false},
		{"or", Or(no, yes), true},
		{"empty or", Or(), false},
		{"not", Not(no), true},
		{"nested", And(yes, Not(Or(no, PropertyIsNull("NAME")))), true},
		{"and stops at first miss", And(no, broken), false},
		{"or stops at first match", Or(yes, broken), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.filter.Evaluate(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Not(broken).Evaluate(r)
	require.ErrorIs(t, err, ErrUnsupportedQuery)
	_, err = Or(no, broken).Evaluate(r)
	require.ErrorIs(t, err, ErrUnsupportedQuery)
}

func TestBBoxFilter(t *testing.T) {
	t.Parallel()

	r := testRecord()

	ok, err := BBox(NewEnvelope(1, 1, 5, 5, EPSG4326)).Evaluate(r)
	require.NoError(t, err)
	assert.True(t, ok, "same CRS family")

	ok, err = BBox(NewEnvelope(3, 3, 5, 5, CRS84)).Evaluate(r)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = BBox(NewEnvelope(1, 1, 5, 5, EPSG3857)).Evaluate(r)
	require.ErrorIs(t, err, ErrUnsupportedQuery)

	other := &BBoxFilter{Property: "OUTLINE", Envelope: NewEnvelope(0, 0, 1, 1, "")}
	ok, err = other.Evaluate(r)
	require.NoError(t, err)
	assert.False(t, ok, "non-geometry property")

	prop, env := BBox(NewEnvelope(0, 0, 1, 1, "")).SpatialExtent()
	assert.Equal(t, GeometryProperty, prop)
	assert.Equal(t, 1.0, env.MaxX)
}

func TestIDFilter(t *testing.T) {
	t.Parallel()

	f := IDs(9, 3, 0, -1, 3, 7)
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, []int{3, 7, 9}, f.IDs())

	ok, err := f.Evaluate(testRecord())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Evaluate(&Record{ID: 4})
	require.NoError(t, err)
	assert.False(t, ok)

	bm := roaring.BitmapOf(1, 2)
	g := IDBitmap(bm)
	bm.Add(3)
	assert.Equal(t, []int{1, 2}, g.IDs(), "bitmap is copied")
}
