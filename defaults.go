package opscache

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Coalesce is coalesce for the sibling packages that share the same
// zero-value-means-default convention for their Options.
func Coalesce[T comparable](v, def T) T { return coalesce(v, def) }
