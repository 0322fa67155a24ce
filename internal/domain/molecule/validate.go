package molecule

import (
	"fmt"

	"github.com/turtacn/pcfp/pkg/errors"
)

// MalformedGraphError reports an upstream contract violation: the graph
// cannot be fingerprinted without producing silently wrong bits.
type MalformedGraphError struct {
	Entity string
	ID     int
	Reason string
}

func (e *MalformedGraphError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Entity, e.ID, e.Reason)
}

// malformed returns a MalformedGraphError carried by an AppError so callers
// can match either errors.IsCode(err, ErrCodeMalformedGraph) or errors.As.
func malformed(entity string, id int, format string, args ...interface{}) error {
	cause := &MalformedGraphError{Entity: entity, ID: id, Reason: fmt.Sprintf(format, args...)}
	return errors.Wrap(cause, errors.ErrCodeMalformedGraph, errors.DefaultMessageForCode(errors.ErrCodeMalformedGraph)).
		WithDetail(cause.Error())
}

// MalformedError reports a structural problem found outside Validate, such
// as a supplied walk that does not follow the graph's bonds.
func MalformedError(entity string, id int, format string, args ...interface{}) error {
	return malformed(entity, id, format, args...)
}

// IsMalformedGraph reports whether err carries a MalformedGraphError.
func IsMalformedGraph(err error) bool {
	var mg *MalformedGraphError
	return errors.As(err, &mg)
}

// Validate checks every cross reference of the graph. It returns the first
// violation found, scanning atoms, bonds, rings and ring sets in that order.
func (g *Graph) Validate() error {
	if g == nil {
		return malformed("graph", 0, "nil graph")
	}
	nAtoms, nRings := len(g.Atoms), len(g.Rings)

	for i := range g.Atoms {
		a := &g.Atoms[i]
		if int(a.ID) != i {
			return malformed("atom", i, "id %d does not match arena index", a.ID)
		}
		if !IsKnownElement(a.Element) {
			return malformed("atom", i, "unknown element %q", a.Element)
		}
		if a.InRing && len(a.SharedRingIDs) == 0 {
			return malformed("atom", i, "flagged in ring but has no shared ring ids")
		}
		for _, r := range a.SharedRingIDs {
			if int(r) < 0 || int(r) >= nRings {
				return malformed("atom", i, "references unknown ring %d", r)
			}
			if !g.Rings[r].Contains(a.ID) {
				return malformed("atom", i, "lists ring %d which does not contain it", r)
			}
		}
	}

	for i := range g.Bonds {
		b := &g.Bonds[i]
		if int(b.ID) != i {
			return malformed("bond", i, "id %d does not match arena index", b.ID)
		}
		if int(b.Begin) < 0 || int(b.Begin) >= nAtoms || int(b.End) < 0 || int(b.End) >= nAtoms {
			return malformed("bond", i, "references unknown atom (%d, %d)", b.Begin, b.End)
		}
		if b.Begin == b.End {
			return malformed("bond", i, "self loop on atom %d", b.Begin)
		}
		if !b.Order.Valid() {
			return malformed("bond", i, "invalid bond order %s", b.Order)
		}
	}

	for i := range g.Rings {
		r := &g.Rings[i]
		if int(r.ID) != i {
			return malformed("ring", i, "id %d does not match arena index", r.ID)
		}
		if len(r.Atoms) < 3 {
			return malformed("ring", i, "has %d members, need at least 3", len(r.Atoms))
		}
		for _, a := range r.Atoms {
			if int(a) < 0 || int(a) >= nAtoms {
				return malformed("ring", i, "references unknown atom %d", a)
			}
			if !g.Atoms[a].InRing {
				return malformed("ring", i, "member atom %d is not flagged in ring", a)
			}
		}
		for a, outside := range r.Outside {
			if !r.Contains(a) {
				return malformed("ring", i, "outside atoms keyed by non-member %d", a)
			}
			for _, o := range outside {
				if int(o) < 0 || int(o) >= nAtoms {
					return malformed("ring", i, "outside atom %d of member %d is unknown", o, a)
				}
			}
		}
	}

	owner := make([]int, nRings)
	for i := range owner {
		owner[i] = -1
	}
	for i := range g.RingSets {
		s := &g.RingSets[i]
		if int(s.ID) != i {
			return malformed("ring set", i, "id %d does not match arena index", s.ID)
		}
		for _, r := range s.Rings {
			if int(r) < 0 || int(r) >= nRings {
				return malformed("ring set", i, "references unknown ring %d", r)
			}
			if owner[r] >= 0 {
				return malformed("ring set", i, "ring %d already belongs to ring set %d", r, owner[r])
			}
			owner[r] = i
		}
	}
	for r, o := range owner {
		if o < 0 {
			return malformed("ring", r, "belongs to no ring set")
		}
	}
	return nil
}
