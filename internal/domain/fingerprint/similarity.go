package fingerprint

// Tanimoto returns |a∩b| / |a∪b|, or 0 when both are empty.
func Tanimoto(a, b *Fingerprint) float64 {
	if a == nil || b == nil {
		return 0
	}
	union := a.bits.UnionCardinality(b.bits)
	if union == 0 {
		return 0
	}
	return float64(a.bits.IntersectionCardinality(b.bits)) / float64(union)
}
