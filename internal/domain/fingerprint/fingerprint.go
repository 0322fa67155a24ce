// Package fingerprint computes the 881-bit PubChem substructure fingerprint
// of an annotated molecule graph.
package fingerprint

import (
	"github.com/bits-and-blooms/bitset"
)

// Size is the number of bits in a PubChem substructure fingerprint.
const Size = 881

// Fingerprint is one molecule's bit vector. Bits are set only by the engine;
// a Fingerprint handed to callers is read-only.
type Fingerprint struct {
	bits *bitset.BitSet
}

func newFingerprint() *Fingerprint {
	return &Fingerprint{bits: bitset.New(Size)}
}

func newBitVector() *bitset.BitSet {
	return bitset.New(Size)
}

func (f *Fingerprint) set(index int) {
	if index >= 0 && index < Size {
		f.bits.Set(uint(index))
	}
}

func (f *Fingerprint) merge(other *bitset.BitSet) {
	f.bits.InPlaceUnion(other)
}

// Has reports whether bit index is set. Out of range indexes report false.
func (f *Fingerprint) Has(index int) bool {
	if f == nil || index < 0 || index >= Size {
		return false
	}
	return f.bits.Test(uint(index))
}

// HasKey reports whether the bit named name is set.
func (f *Fingerprint) HasKey(name string) (bool, error) {
	k, err := Lookup(name)
	if err != nil {
		return false, err
	}
	return f.Has(k.Index), nil
}

// Count returns the number of set bits.
func (f *Fingerprint) Count() int {
	if f == nil {
		return 0
	}
	return int(f.bits.Count())
}

// OnBits returns the indexes of set bits in ascending order.
func (f *Fingerprint) OnBits() []int {
	if f == nil {
		return nil
	}
	out := make([]int, 0, f.bits.Count())
	for i, ok := f.bits.NextSet(0); ok && i < Size; i, ok = f.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// Keys returns the catalogue entries of set bits in ascending order.
func (f *Fingerprint) Keys() []Key {
	on := f.OnBits()
	out := make([]Key, len(on))
	for i, idx := range on {
		out[i] = catalogue().keys[idx]
	}
	return out
}

// SectionOnBits returns the set bits that fall in section s.
func (f *Fingerprint) SectionOnBits(s Section) []int {
	first, last := s.Range()
	var out []int
	for _, i := range f.OnBits() {
		if i >= first && i <= last {
			out = append(out, i)
		}
	}
	return out
}

// Equal reports whether both fingerprints have the same bits set.
func (f *Fingerprint) Equal(other *Fingerprint) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.bits.Equal(other.bits)
}

// Clone returns an independent copy.
func (f *Fingerprint) Clone() *Fingerprint {
	return &Fingerprint{bits: f.bits.Clone()}
}
