package export

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

// Tile symbols used by WriteASCII
const (
	SymbolUnresolved = '?'
	SymbolEmpty      = '.'
	SymbolDeadEnd    = 'o'
	SymbolStraight   = '='
	SymbolBend       = 'L'
	SymbolJunction   = 'T'
	SymbolCrossing   = '+'
)

// WriteASCII draws a run as a road map. Each cell is five characters wide and
// three tall: a road arm leaves the cell wherever its edge value is walkable
// and a neighbour exists in that direction. Inconsistent runs are drawn as
// they are.
//
//	  |
//	-[+]-
//	  |
func WriteASCII(w io.Writer, doc *RunYAML, walkable []wfc.EdgeValue, legend bool) error {
	if err := doc.checkShape(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Road Map (Seed: %d, %dx%d, Status: %s)\n", doc.Seed, doc.Width, doc.Width, doc.Status)
	fmt.Fprintln(bw, "----------------------------------------")

	for y, row := range doc.Rows {
		var top, mid, bottom []byte
		for x, p := range row {
			open := doc.openArms(x, y, p, walkable)
			top = append(top, arm(open[wfc.North], "  |  ")...)
			bottom = append(bottom, arm(open[wfc.South], "  |  ")...)

			mid = append(mid, arm(open[wfc.West], "-")...)
			mid = append(mid, '[', tileSymbol(p, open), ']')
			mid = append(mid, arm(open[wfc.East], "-")...)
		}
		for _, line := range [][]byte{top, mid, bottom} {
			bw.Write(line)
			bw.WriteByte('\n')
		}
	}

	if legend {
		bw.WriteString(asciiLegend)
	}
	return bw.Flush()
}

const asciiLegend = `
Legend:
  [+] crossing     [T] junction     [=] straight
  [L] bend         [o] dead end     [.] no road
  [?] unresolved
`

// openArms reports the walkable edges of the cell at (x, y) that lead to
// another cell
func (doc *RunYAML) openArms(x, y, proto int, walkable []wfc.EdgeValue) [wfc.NumDirections]bool {
	var open [wfc.NumDirections]bool
	if proto == wfc.Unresolved {
		return open
	}
	edges := doc.Prototypes[proto]
	for _, d := range wfc.AllDirections() {
		dx, dy := d.Offset()
		nx, ny := x+dx, y+dy
		if nx < 0 || ny < 0 || nx >= doc.Width || ny >= doc.Width {
			continue
		}
		open[d] = slices.Contains(walkable, wfc.EdgeValue(edges[d]))
	}
	return open
}

func arm(open bool, s string) []byte {
	if open {
		return []byte(s)
	}
	return []byte(strings.Repeat(" ", len(s)))
}

func tileSymbol(proto int, open [wfc.NumDirections]bool) byte {
	if proto == wfc.Unresolved {
		return SymbolUnresolved
	}

	n := 0
	for _, o := range open {
		if o {
			n++
		}
	}
	switch n {
	case 0:
		return SymbolEmpty
	case 1:
		return SymbolDeadEnd
	case 2:
		if open[wfc.North] == open[wfc.South] {
			return SymbolStraight
		}
		return SymbolBend
	case 3:
		return SymbolJunction
	default:
		return SymbolCrossing
	}
}
