package fingerprint

import (
	"fmt"
	"sync"

	"github.com/turtacn/pcfp/pkg/errors"
)

// Section is one of the seven blocks of the PubChem layout.
type Section uint8

const (
	SectionElementCounts Section = iota + 1
	SectionRings
	SectionAtomPairs
	SectionNeighbors
	SectionNeighborhoods
	SectionPaths
	SectionRingSubstitution
)

var sectionInfo = map[Section]struct {
	name        string
	first, last int
}{
	SectionElementCounts:    {"hierarchic element counts", 0, 114},
	SectionRings:            {"rings in a canonical ESSSR ring set", 115, 262},
	SectionAtomPairs:        {"simple atom pairs", 263, 326},
	SectionNeighbors:        {"simple atom nearest neighbors", 327, 415},
	SectionNeighborhoods:    {"detailed atom neighborhoods", 416, 459},
	SectionPaths:            {"simple SMARTS patterns", 460, 712},
	SectionRingSubstitution: {"complex SMARTS patterns", 713, 880},
}

// Sections lists every section in layout order.
func Sections() []Section {
	return []Section{
		SectionElementCounts, SectionRings, SectionAtomPairs, SectionNeighbors,
		SectionNeighborhoods, SectionPaths, SectionRingSubstitution,
	}
}

func (s Section) String() string {
	if info, ok := sectionInfo[s]; ok {
		return info.name
	}
	return fmt.Sprintf("Section(%d)", uint8(s))
}

// Range returns the first and last bit index of the section, inclusive.
func (s Section) Range() (first, last int) {
	info := sectionInfo[s]
	return info.first, info.last
}

// Key names one bit of the layout.
type Key struct {
	Index   int     `json:"index"`
	Name    string  `json:"name"`
	Section Section `json:"section"`
}

type keyCatalogue struct {
	keys    []Key
	byName  map[string]int
	// aliases maps the bare-symbol spelling of section 6 names to their bit.
	aliases map[string]int
}

var (
	catalogueOnce sync.Once
	keyTable      *keyCatalogue
)

func catalogue() *keyCatalogue {
	catalogueOnce.Do(func() {
		keyTable = buildCatalogue()
	})
	return keyTable
}

// buildCatalogue concatenates the per-section name tables. The tables are
// static, so a size or uniqueness mismatch is a programming error.
func buildCatalogue() *keyCatalogue {
	parts := []struct {
		section Section
		names   []string
	}{
		{SectionElementCounts, elementKeyNames()},
		{SectionRings, ringKeyNames()},
		{SectionAtomPairs, atomPairNames[:]},
		{SectionNeighbors, neighborPatternNames[:]},
		{SectionNeighborhoods, neighborhoodPatternNames[:]},
		{SectionPaths, pathKeyNames()},
		{SectionRingSubstitution, ringSubstitutionKeyNames()},
	}
	c := &keyCatalogue{keys: make([]Key, 0, Size), byName: make(map[string]int, Size), aliases: map[string]int{}}
	for _, p := range parts {
		first, last := p.section.Range()
		if len(p.names) != last-first+1 || len(c.keys) != first {
			panic(fmt.Sprintf("fingerprint: section %q has %d names at offset %d, want %d at %d",
				p.section, len(p.names), len(c.keys), last-first+1, first))
		}
		for _, name := range p.names {
			if prev, dup := c.byName[name]; dup {
				panic(fmt.Sprintf("fingerprint: key %q defined at %d and %d", name, prev, len(c.keys)))
			}
			c.byName[name] = len(c.keys)
			if p.section == SectionPaths {
				if alt := plainPathName(name); alt != name {
					c.aliases[alt] = len(c.keys)
				}
			}
			c.keys = append(c.keys, Key{Index: len(c.keys), Name: name, Section: p.section})
		}
	}
	return c
}

// AllKeys returns a copy of the full catalogue in bit order.
func AllKeys() []Key {
	return append([]Key(nil), catalogue().keys...)
}

// SectionKeys returns the catalogue entries of one section.
func SectionKeys(s Section) []Key {
	if _, ok := sectionInfo[s]; !ok {
		return nil
	}
	first, last := s.Range()
	return append([]Key(nil), catalogue().keys[first:last+1]...)
}

// KeyAt returns the catalogue entry for bit index.
func KeyAt(index int) (Key, error) {
	if index < 0 || index >= Size {
		return Key{}, errors.New(errors.ErrCodeUnknownFingerprintKey, "fingerprint bit index out of range").
			WithDetail(fmt.Sprintf("%d", index))
	}
	return catalogue().keys[index], nil
}

// Lookup returns the catalogue entry named name. Section 6 names also
// resolve when hydrogen and arsenic are written as bare symbols, e.g.
// "N:C-S-H" for "N:C-S-[#1]".
func Lookup(name string) (Key, error) {
	c := catalogue()
	idx, ok := c.byName[name]
	if !ok {
		idx, ok = c.aliases[name]
	}
	if !ok {
		return Key{}, errors.New(errors.ErrCodeUnknownFingerprintKey, "unknown fingerprint key").WithDetail(name)
	}
	return c.keys[idx], nil
}

// mustIndex resolves a static name used by the extractors themselves.
func mustIndex(name string) int {
	k, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return k.Index
}
