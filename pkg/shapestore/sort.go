package shapestore

import "slices"

// sortRecords orders records by keys. Null and missing values sort before
// any value; ties keep candidate order.
func sortRecords(records []*Record, keys []SortKey) {
	slices.SortStableFunc(records, func(a, b *Record) int {
		for _, k := range keys {
			c := compareAttr(a, b, k.Property)
			if k.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareAttr(a, b *Record, name string) int {
	va, _ := a.Attribute(name)
	vb, _ := b.Attribute(name)
	switch {
	case va == nil && vb == nil:
		return 0
	case va == nil:
		return -1
	case vb == nil:
		return 1
	}
	if c, ok := compareValues(va, vb); ok {
		return c
	}
	return 0
}
