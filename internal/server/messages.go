package server

import (
	"encoding/hex"

	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

// Message types sent over /ws
const (
	MessageStart   = "start"
	MessageFrame   = "frame"
	MessageSummary = "summary"
)

// ControlStop is the text message a client sends to end its stream early
const ControlStop = "stop"

// Message is one JSON document on a frame stream. Exactly one of Start,
// Frame or Summary is set, matching Type.
type Message struct {
	Type    string     `json:"type"`
	Start   *Start     `json:"start,omitempty"`
	Frame   *wfc.Frame `json:"frame,omitempty"`
	Outcome string     `json:"outcome,omitempty"`
	Summary *Summary   `json:"summary,omitempty"`
}

// Start describes the run and carries the prototype table renderers need.
type Start struct {
	Seed            int64                               `json:"seed"`
	UniqueEdgeCount int                                 `json:"unique_edge_count"`
	Width           int                                 `json:"width"`
	Policy          string                              `json:"policy"`
	Prototypes      [][wfc.NumDirections]wfc.EdgeValue `json:"prototypes"`
	Frame           wfc.Frame                           `json:"frame"`
}

// Summary closes a stream.
type Summary struct {
	RunID                string   `json:"run_id,omitempty"`
	Status               string   `json:"status"`
	Steps                int      `json:"steps"`
	Commits              int      `json:"commits"`
	MaskedContradictions int      `json:"masked_contradictions"`
	FirstContradiction   *int     `json:"first_contradiction,omitempty"`
	Violations           []string `json:"violations,omitempty"`
	Fingerprint          string   `json:"fingerprint"`
	Error                string   `json:"error,omitempty"`
}

func newStart(gen *wfc.Generator) (*Start, error) {
	cat := gen.Catalog()
	protos := make([][wfc.NumDirections]wfc.EdgeValue, cat.Len())
	for i := range protos {
		edges, err := cat.Edges(wfc.PrototypeID(i))
		if err != nil {
			return nil, err
		}
		protos[i] = edges
	}

	opts := gen.Options()
	return &Start{
		Seed:            opts.Seed,
		UniqueEdgeCount: opts.UniqueEdgeCount,
		Width:           gen.Grid().Width,
		Policy:          opts.Policy.String(),
		Prototypes:      protos,
		Frame:           gen.Frame(),
	}, nil
}

func newSummary(gen *wfc.Generator, status string) *Summary {
	stats := gen.Stats()
	fp := gen.Grid().Fingerprint()

	sum := &Summary{
		Status:               status,
		Steps:                stats.Steps,
		Commits:              stats.Commits,
		MaskedContradictions: stats.MaskedContradictions,
		Fingerprint:          hex.EncodeToString(fp[:]),
	}
	if stats.MaskedContradictions > 0 {
		cell := int(stats.FirstContradiction)
		sum.FirstContradiction = &cell
	}
	for _, v := range wfc.Validate(gen.Grid()) {
		sum.Violations = append(sum.Violations, v.String())
	}
	if err := gen.Err(); err != nil {
		sum.Error = err.Error()
	}
	return sum
}
