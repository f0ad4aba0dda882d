package domain

// Stage is a state of the per-request pipeline. Transitions only move forward.
type Stage string

const (
	StageReceived    Stage = "received"
	StageQuerying    Stage = "querying"
	StageAggregating Stage = "aggregating"
	StageRendering   Stage = "rendering"
	StageComposing   Stage = "composing"
	StageExporting   Stage = "exporting"
	StageComplete    Stage = "complete"
	StageFailed      Stage = "failed"
)

var stageOrder = map[Stage]int{
	StageReceived:    0,
	StageQuerying:    1,
	StageAggregating: 2,
	StageRendering:   3,
	StageComposing:   4,
	StageExporting:   5,
	StageComplete:    6,
	StageFailed:      6,
}

func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// CanAdvance reports whether a transition from s to next is allowed.
func (s Stage) CanAdvance(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return stageOrder[next] > stageOrder[s]
}
