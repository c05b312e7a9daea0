package shapestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewQueryDefaults(t *testing.T) {
	t.Parallel()

	q := NewQuery()
	assert.Empty(t, q.TypeNames())
	assert.Nil(t, q.Filter())
	assert.Empty(t, q.SortBy())
	assert.Equal(t, Unbounded, q.MaxRecords())
	assert.Empty(t, q.CRS())
	assert.Empty(t, q.Hints())
	assert.False(t, q.GeometriesSuppressed())
	assert.Nil(t, q.Properties())
	assert.False(t, q.eager())

	_, ok := q.LooseBBox()
	assert.False(t, ok)
	_, ok = q.PrefilterEnvelope(GeometryProperty)
	assert.False(t, ok)
}

func TestQueryHints(t *testing.T) {
	t.Parallel()

	q := NewQuery(
		WithScale(25000),
		WithResolution(2.5),
		WithoutGeometries(),
		WithProperties("NAME", "AREA"),
		WithMaxRecords(-5),
		WithHint("VENDOR", "x"),
	)
	assert.Equal(t, 25000.0, q.Scale())
	assert.Equal(t, 2.5, q.Resolution())
	assert.True(t, q.GeometriesSuppressed())
	assert.Equal(t, []string{"NAME", "AREA"}, q.Properties())
	assert.Equal(t, Unbounded, q.MaxRecords())

	v, ok := q.Hint("VENDOR")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	hints := q.Hints()
	delete(hints, "VENDOR")
	_, ok = q.Hint("VENDOR")
	assert.True(t, ok, "Hints returns a copy")

	assert.True(t, NewQuery(WithEagerEvaluation()).eager())
	assert.True(t, NewQuery(WithSortBy(SortKey{Property: "NAME"})).eager())
}

func TestPrefilterEnvelope(t *testing.T) {
	t.Parallel()

	loose := NewEnvelope(0, 0, 1, 1, "")
	box := NewEnvelope(5, 5, 6, 6, "")

	tests := []struct {
		name string
		q    *Query
		want Envelope
		ok   bool
	}{
		{"loose bbox wins", NewQuery(WithLooseBBox(loose), WithFilter(BBox(box))), loose, true},
		{"root bbox", NewQuery(WithFilter(BBox(box))), box, true},
		{"query crs applied", NewQuery(WithCRS(EPSG3857), WithFilter(BBox(box))), box.WithCRS(EPSG3857), true},
		{"nested bbox ignored", NewQuery(WithFilter(And(BBox(box)))), Envelope{}, false},
		{"other property", NewQuery(WithFilter(&BBoxFilter{Property: "OUTLINE", Envelope: box})), Envelope{}, false},
		{"attribute filter", NewQuery(WithFilter(PropertyIsNull("NAME"))), Envelope{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.q.PrefilterEnvelope(GeometryProperty)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSortKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SortKey{Property: "NAME"}, ParseSortKey("NAME"))
	assert.Equal(t, SortKey{Property: "NAME"}, ParseSortKey("NAME:asc"))
	assert.Equal(t, SortKey{Property: "AREA", Descending: true}, ParseSortKey(" AREA : DESC"))
}
