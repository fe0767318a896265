// Package format holds small shaping helpers for handler text.
package format

// Deref returns the pointed-to value, or def for nil. Optional task
// fields are nullable columns, so handlers deref them constantly.
func Deref[T any](p *T, def T) T {
	if p != nil {
		return *p
	}
	return def
}
