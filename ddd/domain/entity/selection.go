package entity

import "clipforge/ddd/domain/vo"

// SelectionRange is a single [start, end) interval chosen by the Selector,
// tagged with the strategy that produced it.
type SelectionRange struct {
	Start  float64             `json:"start"`
	End    float64             `json:"end"`
	Method vo.SelectionMethod  `json:"method"`
	Reason string              `json:"reason,omitempty"`
}

func (r SelectionRange) Duration() float64 {
	return r.End - r.Start
}

func (r SelectionRange) Overlaps(other SelectionRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Selection is the Selector's output: a chronologically ordered, pairwise
// non-overlapping list of ranges.
type Selection struct {
	Ranges []SelectionRange `json:"ranges"`
}

// ClipOutput is one uploaded rendered clip.
type ClipOutput struct {
	FileName      string         `json:"file_name"`
	RemoteLocator string         `json:"remote_locator"`
	DurationSec   float64        `json:"duration_sec"`
	Segment       SelectionRange `json:"segment"`
	Method        vo.SelectionMethod `json:"method"`
}
