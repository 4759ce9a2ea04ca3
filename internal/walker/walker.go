// Package walker moves agents along the open edges of a generated grid.
package walker

import (
	"fmt"
	"slices"

	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

// State is a walker's movement state
type State int

const (
	Idle   State = iota // At a cell centre, choosing the next cell
	Moving              // Travelling towards the next cell
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Moving:
		return "moving"
	default:
		return "unknown"
	}
}

const (
	// DefaultSpeed is the fraction of a cell covered per tick
	DefaultSpeed = 0.01
)

// DefaultWalkable lists the edge values treated as open road
var DefaultWalkable = []wfc.EdgeValue{1, 5}

// Config controls how bots move
type Config struct {
	Walkable []wfc.EdgeValue `yaml:"walkable"`
	Speed    float64         `yaml:"speed"`
}

// DefaultConfig returns the reference walker settings
func DefaultConfig() Config {
	return Config{
		Walkable: slices.Clone(DefaultWalkable),
		Speed:    DefaultSpeed,
	}
}

// Validate checks that bots configured this way can make progress
func (c Config) Validate() error {
	if c.Speed <= 0 || c.Speed > 1 {
		return fmt.Errorf("walker speed must be in (0, 1], got %v", c.Speed)
	}
	return nil
}

// Bot follows open edges from cell to cell.
// A bot never crosses the grid boundary and only reverses when it has no
// other way out.
type Bot struct {
	X, Y         int     // Current cell
	NextX, NextY int     // Target cell while Moving
	Progress     float64 // Fraction of the way to the target
	Heading      wfc.Direction
	Speed        float64

	walkable []wfc.EdgeValue
	state    State
	moved    bool // Heading is meaningful
	cells    int  // Cells entered
}

// NewBot places a bot at (x, y)
func NewBot(x, y int, cfg Config) *Bot {
	return &Bot{
		X:        x,
		Y:        y,
		NextX:    x,
		NextY:    y,
		Speed:    cfg.Speed,
		walkable: slices.Clone(cfg.Walkable),
	}
}

// State returns the bot's movement state
func (b *Bot) State() State {
	return b.state
}

// CellsVisited returns how many cells the bot has entered
func (b *Bot) CellsVisited() int {
	return b.cells
}

// Position returns the interpolated position in cell units
func (b *Bot) Position() (float64, float64) {
	if b.state != Moving {
		return float64(b.X), float64(b.Y)
	}
	ox := float64(b.X) + float64(b.NextX-b.X)*b.Progress
	oy := float64(b.Y) + float64(b.NextY-b.Y)*b.Progress
	return ox, oy
}

// Tick advances the bot by one step
func (b *Bot) Tick(g *wfc.Grid, rng wfc.Rand) error {
	switch b.state {
	case Idle:
		return b.depart(g, rng)
	case Moving:
		b.Progress += b.Speed
		if b.Progress > 1 {
			b.X, b.Y = b.NextX, b.NextY
			b.Progress = 0
			b.cells++
			b.state = Idle
		}
		return nil
	default:
		return fmt.Errorf("bot in unknown state %d", b.state)
	}
}

// depart picks the next cell. A bot with no open edge stays Idle.
func (b *Bot) depart(g *wfc.Grid, rng wfc.Rand) error {
	id, err := g.CellAt(b.X, b.Y)
	if err != nil {
		return err
	}
	options, err := b.OpenDirections(g, id)
	if err != nil {
		return err
	}
	if len(options) == 0 {
		return nil
	}

	if b.moved && len(options) > 1 {
		back := b.Heading.Opposite()
		options = slices.DeleteFunc(options, func(d wfc.Direction) bool { return d == back })
	}

	d := options[rng.Intn(len(options))]
	next, _, err := g.Neighbor(id, d)
	if err != nil {
		return err
	}
	cell, err := g.Cell(next)
	if err != nil {
		return err
	}

	b.Heading = d
	b.moved = true
	b.NextX, b.NextY = cell.X, cell.Y
	b.Progress = 0
	b.state = Moving
	return nil
}

// OpenDirections returns the directions out of cell id whose edge on the
// cell's tile is walkable and which lead to another cell
func (b *Bot) OpenDirections(g *wfc.Grid, id wfc.CellID) ([]wfc.Direction, error) {
	proto, ok, err := TileAt(g, id)
	if err != nil || !ok {
		return nil, err
	}
	edges, err := g.Catalog().Edges(proto)
	if err != nil {
		return nil, err
	}

	var open []wfc.Direction
	for _, d := range wfc.AllDirections() {
		if !slices.Contains(b.walkable, edges[d]) {
			continue
		}
		if _, ok, _ := g.Neighbor(id, d); ok {
			open = append(open, d)
		}
	}
	return open, nil
}

// TileAt returns the tile a walker sees in a cell: the lowest remaining
// candidate. ok is false for a cell with no candidates.
func TileAt(g *wfc.Grid, id wfc.CellID) (wfc.PrototypeID, bool, error) {
	set, err := g.Candidates(id)
	if err != nil {
		return 0, false, err
	}
	p, ok := set.First()
	return p, ok, nil
}
