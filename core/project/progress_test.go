package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeProgress(t *testing.T) {
	apr := Approval{Status: ApprovalApproved}
	sup := Supervision{ResponseFromInd: IndustryResponse{Status: ResponseApproved}}
	sel := Group{GroupLeader: "lead@test.test"}
	selDone := Group{GroupLeader: "lead@test.test", IsCompleted: true}
	sub := Submission{Title: "Milestone 1"}
	rev := Review{Rating: 4}

	tests := []struct {
		name          string
		snap          Snapshot
		wantCompleted int
		wantPct       int
		wantStatus    string
	}{
		{
			name:       "empty snapshot",
			snap:       Snapshot{},
			wantPct:    0,
			wantStatus: ProgressNotStarted,
		},
		{
			name:          "approval only",
			snap:          Snapshot{Approvals: []Approval{apr}},
			wantCompleted: 1,
			wantPct:       17,
			wantStatus:    ProgressInitialStage,
		},
		{
			name:          "two steps",
			snap:          Snapshot{Approvals: []Approval{apr}, Supervisions: []Supervision{sup}},
			wantCompleted: 2,
			wantPct:       33,
			wantStatus:    ProgressInProgress,
		},
		{
			name: "three steps is half way",
			snap: Snapshot{
				Approvals:    []Approval{apr},
				Supervisions: []Supervision{sup},
				Selections:   []Group{sel},
			},
			wantCompleted: 3,
			wantPct:       50,
			wantStatus:    ProgressInProgress,
		},
		{
			name: "four steps",
			snap: Snapshot{
				Approvals:    []Approval{apr},
				Supervisions: []Supervision{sup},
				Selections:   []Group{sel},
				Submissions:  []Submission{sub},
			},
			wantCompleted: 4,
			wantPct:       67,
			wantStatus:    ProgressInProgress,
		},
		{
			name: "five steps",
			snap: Snapshot{
				Approvals:    []Approval{apr},
				Supervisions: []Supervision{sup},
				Selections:   []Group{sel},
				Submissions:  []Submission{sub},
				Reviews:      []Review{rev},
			},
			wantCompleted: 5,
			wantPct:       83,
			wantStatus:    ProgressAlmostComplete,
		},
		{
			name: "all steps",
			snap: Snapshot{
				Approvals:    []Approval{apr},
				Supervisions: []Supervision{sup},
				Selections:   []Group{selDone},
				Submissions:  []Submission{sub},
				Reviews:      []Review{rev},
			},
			wantCompleted: 6,
			wantPct:       100,
			wantStatus:    ProgressCompleted,
		},
		{
			name: "incomplete selection does not complete last step",
			snap: Snapshot{
				Approvals:    []Approval{apr, {Status: ApprovalRejected}},
				Supervisions: []Supervision{sup},
				Selections:   []Group{sel, sel},
				Submissions:  []Submission{sub},
				Reviews:      []Review{rev},
			},
			wantCompleted: 5,
			wantPct:       83,
			wantStatus:    ProgressAlmostComplete,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeProgress(tt.snap)
			assert.Equal(t, tt.wantCompleted, got.CompletedSteps)
			assert.Equal(t, 6, got.TotalSteps)
			assert.Equal(t, tt.wantPct, got.Percentage)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Len(t, got.Steps, 6)
		})
	}
}

func TestProgressStatus(t *testing.T) {
	tests := []struct {
		pct  int
		want string
	}{
		{0, ProgressNotStarted},
		{17, ProgressInitialStage},
		{29, ProgressInitialStage},
		{30, ProgressInProgress},
		{50, ProgressInProgress},
		{69, ProgressInProgress},
		{70, ProgressAlmostComplete},
		{99, ProgressAlmostComplete},
		{100, ProgressCompleted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, progressStatus(tt.pct))
	}
}
