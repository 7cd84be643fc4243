package project

import "math"

// Progress status labels, from least to most complete.
const (
	ProgressNotStarted     = "Not Started"
	ProgressInitialStage   = "Initial Stage"
	ProgressInProgress     = "In Progress"
	ProgressAlmostComplete = "Almost Complete"
	ProgressCompleted      = "Completed"
)

// Progress summarizes how many workflow milestones a project has reached.
// It is derived from the current project snapshot on every call and never
// persisted, so it is always consistent with the latest data.
type Progress struct {
	Percentage     int            `json:"percentage"`
	Status         string         `json:"status"`
	CompletedSteps int            `json:"completed_steps"`
	TotalSteps     int            `json:"total_steps"`
	Steps          []ProgressStep `json:"steps"`
}

type ProgressStep struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// Snapshot carries the workflow records a progress computation derives from.
type Snapshot struct {
	Approvals    []Approval
	Supervisions []Supervision
	Selections   []Group
	Submissions  []Submission
	Reviews      []Review
}

func (s Snapshot) anySelectionCompleted() bool {
	for _, sel := range s.Selections {
		if sel.IsCompleted {
			return true
		}
	}
	return false
}

// ComputeProgress builds the fixed ordered milestone checklist and maps the
// completion ratio to a percentage and a status label.
func ComputeProgress(snap Snapshot) Progress {
	steps := []ProgressStep{
		{Name: "Approval received", Completed: len(snap.Approvals) > 0},
		{Name: "Supervisor assigned", Completed: len(snap.Supervisions) > 0},
		{Name: "Students selected", Completed: len(snap.Selections) > 0},
		{Name: "Work submitted", Completed: len(snap.Submissions) > 0},
		{Name: "Reviews received", Completed: len(snap.Reviews) > 0},
		{Name: "Selection completed", Completed: snap.anySelectionCompleted()},
	}

	var completed int
	for _, step := range steps {
		if step.Completed {
			completed++
		}
	}

	pct := int(math.Round(100 * float64(completed) / float64(len(steps))))
	return Progress{
		Percentage:     pct,
		Status:         progressStatus(pct),
		CompletedSteps: completed,
		TotalSteps:     len(steps),
		Steps:          steps,
	}
}

func progressStatus(pct int) string {
	switch {
	case pct == 0:
		return ProgressNotStarted
	case pct < 30:
		return ProgressInitialStage
	case pct < 70:
		return ProgressInProgress
	case pct < 100:
		return ProgressAlmostComplete
	default:
		return ProgressCompleted
	}
}
