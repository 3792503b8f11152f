package cmp

// SliceEq checks two slices hold the same values in the same order.
func SliceEq[T comparable](a []T, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for nth, va := range a {
		if va != b[nth] {
			return false
		}
	}
	return true
}

// SliceContentEq checks two slices hold the same values, ignoring order.
//
// Duplicated values count: {a, a, b} != {a, b, b}.
func SliceContentEq[T comparable](a []T, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	rest := make(map[T]int, len(a))
	for _, va := range a {
		rest[va] += 1
	}
	for _, vb := range b {
		n, ok := rest[vb]
		if !ok || n <= 0 {
			return false
		}
		rest[vb] = n - 1
	}
	return true
}

// MapEq checks two maps hold the same key-value pairs.
func MapEq[K comparable, V comparable](a map[K]V, b map[K]V) bool {
	if len(a) != len(b) {
		return false
	}
	for ka, va := range a {
		vb, ok := b[ka]
		if !ok || vb != va {
			return false
		}
	}
	return true
}
