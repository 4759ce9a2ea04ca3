// Package export writes finished runs as YAML documents.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/roadgen/internal/database"
	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

// ErrMalformed is returned for documents whose rows or prototypes do not fit together.
var ErrMalformed = errors.New("malformed run document")

// RunYAML is the exported form of a run. Rows hold prototype ids in
// row-major order, wfc.Unresolved for cells that never collapsed.
type RunYAML struct {
	ID                   string                         `yaml:"id,omitempty"`
	Seed                 int64                          `yaml:"seed"`
	UniqueEdgeCount      int                            `yaml:"unique_edge_count"`
	Width                int                            `yaml:"width"`
	Policy               string                         `yaml:"policy"`
	Status               string                         `yaml:"status"`
	Steps                int                            `yaml:"steps"`
	Commits              int                            `yaml:"commits"`
	MaskedContradictions int                            `yaml:"masked_contradictions"`
	Attempts             int                            `yaml:"attempts"`
	Fingerprint          string                         `yaml:"fingerprint,omitempty"`
	Rows                 [][]int                        `yaml:"rows"`
	Prototypes           map[int][wfc.NumDirections]int `yaml:"prototypes"`
}

// FromRun builds a document from a stored run. Only prototypes that appear
// in the grid are listed.
func FromRun(run *database.Run, cells []database.RunCell, cat *wfc.Catalog) (*RunYAML, error) {
	if run.Width <= 0 || len(cells) != run.Width*run.Width {
		return nil, fmt.Errorf("%w: %d cells for width %d", ErrMalformed, len(cells), run.Width)
	}

	doc := &RunYAML{
		ID:                   run.ID,
		Seed:                 run.Seed,
		UniqueEdgeCount:      run.UniqueEdgeCount,
		Width:                run.Width,
		Policy:               run.Policy,
		Status:               run.Status,
		Steps:                run.Steps,
		Commits:              run.Commits,
		MaskedContradictions: run.MaskedContradictions,
		Attempts:             run.Attempts,
		Fingerprint:          run.Fingerprint,
		Rows:                 make([][]int, run.Width),
		Prototypes:           make(map[int][wfc.NumDirections]int),
	}

	for y := range doc.Rows {
		doc.Rows[y] = make([]int, run.Width)
	}
	for _, c := range cells {
		if c.CellID < 0 || c.CellID >= len(cells) {
			return nil, fmt.Errorf("%w: cell id %d", ErrMalformed, c.CellID)
		}
		doc.Rows[c.CellID/run.Width][c.CellID%run.Width] = c.PrototypeID
		if c.PrototypeID == wfc.Unresolved {
			continue
		}
		if _, seen := doc.Prototypes[c.PrototypeID]; seen {
			continue
		}
		edges, err := cat.Edges(wfc.PrototypeID(c.PrototypeID))
		if err != nil {
			return nil, err
		}
		var e [wfc.NumDirections]int
		for d, v := range edges {
			e[d] = int(v)
		}
		doc.Prototypes[c.PrototypeID] = e
	}
	return doc, nil
}

// FromGenerator builds a document from a generator's current grid.
func FromGenerator(gen *wfc.Generator, status string) (*RunYAML, error) {
	run, cells := database.NewRun(gen, status)
	doc, err := FromRun(run, cells, gen.Catalog())
	if err != nil {
		return nil, err
	}
	doc.ID = ""
	return doc, nil
}

// Validate checks the document's shape and that adjacent resolved cells
// share edge values according to its prototype table.
func (doc *RunYAML) Validate() error {
	if err := doc.checkShape(); err != nil {
		return err
	}

	for y, row := range doc.Rows {
		for x, p := range row {
			if p == wfc.Unresolved {
				continue
			}
			if x+1 < doc.Width && row[x+1] != wfc.Unresolved {
				if doc.Prototypes[p][wfc.East] != doc.Prototypes[row[x+1]][wfc.West] {
					return fmt.Errorf("%w: (%d,%d) east edge", wfc.ErrInconsistent, x, y)
				}
			}
			if y+1 < doc.Width && doc.Rows[y+1][x] != wfc.Unresolved {
				if doc.Prototypes[p][wfc.South] != doc.Prototypes[doc.Rows[y+1][x]][wfc.North] {
					return fmt.Errorf("%w: (%d,%d) south edge", wfc.ErrInconsistent, x, y)
				}
			}
		}
	}
	return nil
}

// checkShape verifies the row layout and that every resolved cell's
// prototype is listed
func (doc *RunYAML) checkShape() error {
	if doc.Width <= 0 || len(doc.Rows) != doc.Width {
		return fmt.Errorf("%w: %d rows for width %d", ErrMalformed, len(doc.Rows), doc.Width)
	}
	for y, row := range doc.Rows {
		if len(row) != doc.Width {
			return fmt.Errorf("%w: row %d has %d cells", ErrMalformed, y, len(row))
		}
		for x, p := range row {
			if p == wfc.Unresolved {
				continue
			}
			if _, ok := doc.Prototypes[p]; !ok {
				return fmt.Errorf("%w: cell (%d,%d) uses unlisted prototype %d", ErrMalformed, x, y, p)
			}
		}
	}
	return nil
}

// WriteRunYAML encodes doc with a header comment, one flow-style row per line
// and prototypes sorted by id.
func WriteRunYAML(w io.Writer, doc *RunYAML) error {
	fmt.Fprintf(w, "# Road grid %dx%d - %d edge values\n", doc.Width, doc.Width, doc.UniqueEdgeCount)
	fmt.Fprintf(w, "# Generated with seed: %d\n", doc.Seed)
	fmt.Fprintf(w, "# Status: %s\n\n", doc.Status)

	ordered := orderedRunYAML{
		ID:                   doc.ID,
		Seed:                 doc.Seed,
		UniqueEdgeCount:      doc.UniqueEdgeCount,
		Width:                doc.Width,
		Policy:               doc.Policy,
		Status:               doc.Status,
		Steps:                doc.Steps,
		Commits:              doc.Commits,
		MaskedContradictions: doc.MaskedContradictions,
		Attempts:             doc.Attempts,
		Fingerprint:          doc.Fingerprint,
		Rows:                 rowsNode(doc.Rows),
		Prototypes:           prototypesNode(doc.Prototypes),
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&ordered); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// WriteRunYAMLFile writes doc to path.
func WriteRunYAMLFile(path string, doc *RunYAML) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteRunYAML(f, doc)
}

// ReadRunYAML decodes and validates a document.
func ReadRunYAML(r io.Reader) (*RunYAML, error) {
	var doc RunYAML
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode YAML: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReadRunYAMLFile reads a document from path.
func ReadRunYAMLFile(path string) (*RunYAML, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRunYAML(f)
}

type orderedRunYAML struct {
	ID                   string    `yaml:"id,omitempty"`
	Seed                 int64     `yaml:"seed"`
	UniqueEdgeCount      int       `yaml:"unique_edge_count"`
	Width                int       `yaml:"width"`
	Policy               string    `yaml:"policy"`
	Status               string    `yaml:"status"`
	Steps                int       `yaml:"steps"`
	Commits              int       `yaml:"commits"`
	MaskedContradictions int       `yaml:"masked_contradictions"`
	Attempts             int       `yaml:"attempts"`
	Fingerprint          string    `yaml:"fingerprint,omitempty"`
	Rows                 yaml.Node `yaml:"rows"`
	Prototypes           yaml.Node `yaml:"prototypes"`
}

func intSeq(values []int) *yaml.Node {
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range values {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)})
	}
	return node
}

func rowsNode(rows [][]int) yaml.Node {
	node := yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range rows {
		node.Content = append(node.Content, intSeq(row))
	}
	return node
}

func prototypesNode(protos map[int][wfc.NumDirections]int) yaml.Node {
	ids := make([]int, 0, len(protos))
	for id := range protos {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	node := yaml.Node{Kind: yaml.MappingNode}
	for _, id := range ids {
		edges := protos[id]
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(id)},
			intSeq(edges[:]),
		)
	}
	return node
}
