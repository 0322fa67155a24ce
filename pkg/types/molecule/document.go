// Package molecule defines the JSON molecule document accepted by the HTTP
// API, the worker and the CLI. A Document is plain data; Build turns it into
// the graph the fingerprint engine reads.
package molecule

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strconv"

	domain "github.com/turtacn/pcfp/internal/domain/molecule"
	"github.com/turtacn/pcfp/pkg/errors"
)

// MaxDocumentAtoms bounds the heavy atoms a single document may carry.
const MaxDocumentAtoms = 1000

// Atom is one heavy atom with its implicit hydrogen count.
type Atom struct {
	Element   string `json:"element"`
	Hydrogens int    `json:"hydrogens,omitempty"`
}

// Bond joins two atoms by their index in Atoms.
type Bond struct {
	Begin int    `json:"begin"`
	End   int    `json:"end"`
	Order string `json:"order"`
}

// Document is the wire form of a molecule. Rings are perceived upstream and
// supplied as atom indices in ring order.
type Document struct {
	ID      string         `json:"id,omitempty"`
	Atoms   []Atom         `json:"atoms"`
	Bonds   []Bond         `json:"bonds"`
	Rings   [][]int        `json:"rings,omitempty"`
	Formula map[string]int `json:"formula,omitempty"`
}

// Validate performs the checks that do not need a graph.
func (d *Document) Validate() error {
	if d == nil {
		return errors.InvalidParam("molecule document is required")
	}
	if len(d.Atoms) == 0 {
		return errors.New(errors.ErrCodeMoleculeInvalidFormat, "molecule document has no atoms")
	}
	if len(d.Atoms) > MaxDocumentAtoms {
		return errors.Newf(errors.ErrCodeMoleculeInvalidFormat, "molecule document has %d atoms, limit is %d", len(d.Atoms), MaxDocumentAtoms)
	}
	return nil
}

// Build converts the document into a validated graph.
func (d *Document) Build() (*domain.Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	b := domain.NewBuilder()
	for _, a := range d.Atoms {
		b.AddAtom(a.Element, a.Hydrogens)
	}
	for _, bd := range d.Bonds {
		order, err := domain.ParseBondOrder(bd.Order)
		if err != nil {
			return nil, err
		}
		b.AddBond(domain.AtomID(bd.Begin), domain.AtomID(bd.End), order)
	}
	for _, ring := range d.Rings {
		members := make([]domain.AtomID, len(ring))
		for i, a := range ring {
			members[i] = domain.AtomID(a)
		}
		b.AddRing(members...)
	}
	if len(d.Formula) > 0 {
		b.SetFormula(domain.Formula(d.Formula))
	}
	return b.Build()
}

// Digest is the hex sha256 of the document's canonical JSON with the ID
// cleared, so identical structures submitted under different ids share a
// cache entry.
func (d *Document) Digest() (string, error) {
	if d == nil {
		return "", errors.InvalidParam("molecule document is required")
	}
	canon := *d
	canon.ID = ""
	data, err := json.Marshal(canon)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "marshal molecule document")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ParseDocument decodes a single JSON document, rejecting unknown fields.
func ParseDocument(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMoleculeParsingFailed, "decode molecule document")
	}
	return &doc, nil
}

// ReadDocuments reads either one JSON array of documents or NDJSON, one
// document per line. Blank lines are skipped.
func ReadDocuments(r io.Reader) ([]*Document, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMoleculeParsingFailed, "read molecule documents")
	}
	if first == '[' {
		var docs []*Document
		if err := json.NewDecoder(br).Decode(&docs); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMoleculeParsingFailed, "decode molecule document array")
		}
		return docs, nil
	}

	var docs []*Document
	dec := json.NewDecoder(br)
	dec.DisallowUnknownFields()
	for line := 1; ; line++ {
		var doc Document
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMoleculeParsingFailed, "decode molecule document").
				WithDetail("document " + strconv.Itoa(line))
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c, br.UnreadByte()
	}
}
