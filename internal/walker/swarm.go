package walker

import (
	"context"
	"fmt"

	"github.com/lawnchairsociety/roadgen/internal/logger"
	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

// Swarm ticks a group of bots over the same grid
type Swarm struct {
	grid *wfc.Grid
	rng  wfc.Rand
	bots []*Bot
}

// NewSwarm places count bots on random cells of g
func NewSwarm(g *wfc.Grid, count int, cfg Config, rng wfc.Rand) (*Swarm, error) {
	if count < 0 {
		return nil, fmt.Errorf("bot count must not be negative, got %d", count)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Swarm{grid: g, rng: rng, bots: make([]*Bot, 0, count)}
	for i := 0; i < count; i++ {
		x, y := rng.Intn(g.Width), rng.Intn(g.Width)
		s.bots = append(s.bots, NewBot(x, y, cfg))
	}
	return s, nil
}

// Add places an extra bot
func (s *Swarm) Add(b *Bot) {
	s.bots = append(s.bots, b)
}

// Bots returns the bots in placement order
func (s *Swarm) Bots() []*Bot {
	return s.bots
}

// Tick advances every bot once
func (s *Swarm) Tick() error {
	for i, b := range s.bots {
		if err := b.Tick(s.grid, s.rng); err != nil {
			return fmt.Errorf("bot %d: %w", i, err)
		}
	}
	return nil
}

// Run ticks the swarm n times and returns the total number of cells entered
func (s *Swarm) Run(ctx context.Context, ticks int) (int, error) {
	for t := 0; t < ticks; t++ {
		if err := ctx.Err(); err != nil {
			return s.visited(), err
		}
		if err := s.Tick(); err != nil {
			return s.visited(), err
		}
	}

	visited := s.visited()
	logger.Debug("Swarm finished", "bots", len(s.bots), "ticks", ticks, "cells_entered", visited)
	return visited, nil
}

func (s *Swarm) visited() int {
	n := 0
	for _, b := range s.bots {
		n += b.cells
	}
	return n
}
