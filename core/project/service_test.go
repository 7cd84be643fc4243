package project

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/fyplink/backend/core"
	"github.com/fyplink/backend/core/user"
)

// fakeRepo is an in-memory Repository enforcing the same uniqueness rules as
// the database schema.
type fakeRepo struct {
	projects     map[string]Project
	approvals    []Approval
	supervisions []Supervision
	selections   []Group
	submissions  []Submission
	reviews      []Review
}

var _ Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{projects: make(map[string]Project)}
}

func (r *fakeRepo) CreateProject(_ context.Context, prj Project) (Project, error) {
	prj.ID = uuid.New().String()
	r.projects[prj.ID] = prj
	return prj, nil
}

func (r *fakeRepo) GetProject(_ context.Context, id string) (Project, error) {
	prj, ok := r.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return prj, nil
}

func (r *fakeRepo) QueryProjects(_ context.Context, _ *QueryFilter, _ []core.DBOrdering) ([]Project, error) {
	prjs := make([]Project, 0, len(r.projects))
	for _, prj := range r.projects {
		prjs = append(prjs, prj)
	}
	return prjs, nil
}

func (r *fakeRepo) UpdateProject(_ context.Context, prj Project) (Project, error) {
	if _, ok := r.projects[prj.ID]; !ok {
		return Project{}, ErrNotFound
	}
	r.projects[prj.ID] = prj
	return prj, nil
}

func (r *fakeRepo) CreateApproval(_ context.Context, apr Approval) (Approval, error) {
	for _, a := range r.approvals {
		if a.ProjectID != apr.ProjectID {
			continue
		}
		if a.TeacherID == apr.TeacherID {
			return Approval{}, ErrApprovalExists
		}
		if strings.EqualFold(a.University, apr.University) {
			return Approval{}, ErrUniversityDecided
		}
	}
	apr.ID = uuid.New().String()
	r.approvals = append(r.approvals, apr)
	return apr, nil
}

func (r *fakeRepo) UpdateApproval(_ context.Context, apr Approval) (Approval, error) {
	for i, a := range r.approvals {
		if a.ID == apr.ID {
			r.approvals[i] = apr
			return apr, nil
		}
	}
	return Approval{}, ErrApprovalNotFound
}

func (r *fakeRepo) GetApproval(_ context.Context, projectID, teacherID string) (Approval, error) {
	for _, a := range r.approvals {
		if a.ProjectID == projectID && a.TeacherID == teacherID {
			return a, nil
		}
	}
	return Approval{}, ErrApprovalNotFound
}

func (r *fakeRepo) GetUniversityApproval(_ context.Context, projectID, university string) (Approval, error) {
	for _, a := range r.approvals {
		if a.ProjectID == projectID && strings.EqualFold(a.University, university) {
			return a, nil
		}
	}
	return Approval{}, ErrApprovalNotFound
}

func (r *fakeRepo) QueryApprovals(_ context.Context, projectID string) ([]Approval, error) {
	var aprs []Approval
	for _, a := range r.approvals {
		if a.ProjectID == projectID {
			aprs = append(aprs, a)
		}
	}
	return aprs, nil
}

func (r *fakeRepo) CreateSupervision(_ context.Context, sup Supervision) (Supervision, error) {
	for _, s := range r.supervisions {
		if s.ProjectID == sup.ProjectID && s.TeacherID == sup.TeacherID {
			return Supervision{}, ErrSupervisionExists
		}
	}
	sup.ID = uuid.New().String()
	r.supervisions = append(r.supervisions, sup)
	return sup, nil
}

func (r *fakeRepo) GetSupervision(_ context.Context, projectID, teacherID string) (Supervision, error) {
	for _, s := range r.supervisions {
		if s.ProjectID == projectID && s.TeacherID == teacherID {
			return s, nil
		}
	}
	return Supervision{}, ErrSupervisionNotFound
}

func (r *fakeRepo) QuerySupervisions(_ context.Context, projectID string) ([]Supervision, error) {
	var sups []Supervision
	for _, s := range r.supervisions {
		if s.ProjectID == projectID {
			sups = append(sups, s)
		}
	}
	return sups, nil
}

func (r *fakeRepo) ApproveSupervision(_ context.Context, projectID, teacherID, comments string) (Supervision, error) {
	for _, s := range r.supervisions {
		if s.ProjectID == projectID && s.Approved() && s.TeacherID != teacherID {
			return Supervision{}, ErrSupervisorTaken
		}
	}
	return r.UpdateSupervisionResponse(nil, projectID, teacherID, ResponseApproved, comments)
}

func (r *fakeRepo) UpdateSupervisionResponse(_ context.Context, projectID, teacherID, status, comments string) (Supervision, error) {
	for i, s := range r.supervisions {
		if s.ProjectID == projectID && s.TeacherID == teacherID {
			s.ResponseFromInd = IndustryResponse{Status: status, Comments: comments}
			s.UpdatedAt = time.Now().UTC()
			r.supervisions[i] = s
			return s, nil
		}
	}
	return Supervision{}, ErrSupervisionNotFound
}

func (r *fakeRepo) DeleteSupervision(_ context.Context, projectID, teacherID string) error {
	for i, s := range r.supervisions {
		if s.ProjectID == projectID && s.TeacherID == teacherID {
			r.supervisions = append(r.supervisions[:i], r.supervisions[i+1:]...)
			return nil
		}
	}
	return ErrSupervisionNotFound
}

func (r *fakeRepo) CreateSelection(_ context.Context, sel Group) (Group, error) {
	sel.ID = uuid.New().String()
	r.selections = append(r.selections, sel)
	return sel, nil
}

func (r *fakeRepo) QuerySelections(_ context.Context, projectID string) ([]Group, error) {
	var sels []Group
	for _, s := range r.selections {
		if s.ProjectID == projectID {
			sels = append(sels, s)
		}
	}
	return sels, nil
}

func (r *fakeRepo) CreateSubmission(_ context.Context, sub Submission) (Submission, error) {
	sub.ID = uuid.New().String()
	r.submissions = append(r.submissions, sub)
	return sub, nil
}

func (r *fakeRepo) QuerySubmissions(_ context.Context, projectID string) ([]Submission, error) {
	var subs []Submission
	for _, s := range r.submissions {
		if s.ProjectID == projectID {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

func (r *fakeRepo) CreateReview(_ context.Context, rev Review) (Review, error) {
	rev.ID = uuid.New().String()
	r.reviews = append(r.reviews, rev)
	return rev, nil
}

func (r *fakeRepo) QueryReviews(_ context.Context, projectID string) ([]Review, error) {
	var revs []Review
	for _, rv := range r.reviews {
		if rv.ProjectID == projectID {
			revs = append(revs, rv)
		}
	}
	return revs, nil
}

// test fixtures

func testIndustry() user.User {
	return user.User{ID: uuid.New().String(), Name: "Acme Rep", Email: "rep@acme.test", Roles: []string{user.RoleIndustry}}
}

func testTeacher(uni string) user.User {
	id := uuid.New().String()
	return user.User{
		ID:         id,
		Name:       "Prof " + id[:8],
		Email:      id[:8] + "@uni.test",
		University: uni,
		Roles:      []string{user.RoleTeacher},
	}
}

func testStudent() user.User {
	id := uuid.New().String()
	return user.User{
		ID:    id,
		Name:  "Student " + id[:8],
		Email: id[:8] + "@students.test",
		Roles: []string{user.RoleStudent},
	}
}

func testProject(t *testing.T, svc *Service, owner user.User) Project {
	t.Helper()
	prj, err := svc.Create(context.Background(), owner, NewProject{
		Title:               "Smart Irrigation",
		IndustryName:        "Acme",
		StartDate:           time.Now().UTC(),
		EndDate:             time.Now().UTC().Add(90 * 24 * time.Hour),
		MaxGroups:           2,
		MaxStudentsPerGroup: 4,
	})
	if err != nil {
		t.Fatalf("creating project: %v", err)
	}
	return prj
}

func TestServiceSubmitApproval(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)

	owner := testIndustry()
	prj := testProject(t, svc, owner)
	teacher := testTeacher("MIT")
	na := NewApproval{Status: ApprovalApproved, Comments: "Strong proposal"}

	t.Run("industry cannot review", func(t *testing.T) {
		_, err := svc.SubmitApproval(ctx, owner, prj.ID, na)
		assert.Equal(t, ErrNotTeacher, errors.Cause(err))
	})

	t.Run("teacher without university cannot review", func(t *testing.T) {
		_, err := svc.SubmitApproval(ctx, testTeacher(""), prj.ID, na)
		assert.Equal(t, ErrNotTeacher, errors.Cause(err))
	})

	t.Run("teacher reviews once", func(t *testing.T) {
		apr, err := svc.SubmitApproval(ctx, teacher, prj.ID, na)
		assert.NoError(t, err)
		assert.Equal(t, ApprovalApproved, apr.Status)
		assert.Equal(t, "MIT", apr.University)
		assert.Equal(t, teacher.ID, apr.TeacherID)

		_, err = svc.SubmitApproval(ctx, teacher, prj.ID, na)
		assert.Equal(t, ErrApprovalExists, errors.Cause(err))
	})

	t.Run("first decision wins per university", func(t *testing.T) {
		_, err := svc.SubmitApproval(ctx, testTeacher("MIT"), prj.ID, na)
		assert.Equal(t, ErrUniversityDecided, errors.Cause(err))

		// another university is unaffected
		_, err = svc.SubmitApproval(ctx, testTeacher("Stanford"), prj.ID, na)
		assert.NoError(t, err)
	})

	t.Run("expired project rejects reviews", func(t *testing.T) {
		expired := testProject(t, svc, owner)
		expired.Duration.EndDate = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
		_, err := repo.UpdateProject(ctx, expired)
		assert.NoError(t, err)

		_, err = svc.SubmitApproval(ctx, testTeacher("Oxford"), expired.ID, na)
		assert.Equal(t, ErrProjectExpired, errors.Cause(err))
		assert.Contains(t, err.Error(), "Jan 15, 2026")
	})
}

func TestServiceEditApproval(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeRepo(), nil, nil)

	prj := testProject(t, svc, testIndustry())
	teacher := testTeacher("MIT")
	decided := testTeacher("Stanford")

	_, err := svc.SubmitApproval(ctx, teacher, prj.ID, NewApproval{Status: ApprovalNeedMoreInfo, Comments: "Scope unclear"})
	assert.NoError(t, err)
	_, err = svc.SubmitApproval(ctx, decided, prj.ID, NewApproval{Status: ApprovalRejected, Comments: "Out of scope"})
	assert.NoError(t, err)

	t.Run("final decisions are immutable", func(t *testing.T) {
		_, err := svc.EditApproval(ctx, decided, prj.ID, EditApproval{Status: ApprovalApproved, Comments: "Changed my mind"})
		assert.Equal(t, ErrApprovalNotEditable, errors.Cause(err))
	})

	t.Run("needMoreInfo may be revised", func(t *testing.T) {
		apr, err := svc.EditApproval(ctx, teacher, prj.ID, EditApproval{Status: ApprovalApproved, Comments: "Scope clarified"})
		assert.NoError(t, err)
		assert.Equal(t, ApprovalApproved, apr.Status)
		assert.Equal(t, "Scope clarified", apr.Comments)

		// the revision is final too
		_, err = svc.EditApproval(ctx, teacher, prj.ID, EditApproval{Status: ApprovalRejected, Comments: "No"})
		assert.Equal(t, ErrApprovalNotEditable, errors.Cause(err))
	})

	t.Run("no approval to edit", func(t *testing.T) {
		_, err := svc.EditApproval(ctx, testTeacher("Oxford"), prj.ID, EditApproval{Status: ApprovalApproved, Comments: "Hi"})
		assert.Equal(t, ErrApprovalNotFound, errors.Cause(err))
	})
}

func TestServiceTeacherApproval(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeRepo(), nil, nil)

	prj := testProject(t, svc, testIndustry())
	teacher := testTeacher("MIT")

	t.Run("absent decision reads as pending", func(t *testing.T) {
		apr, err := svc.TeacherApproval(ctx, prj.ID, teacher.ID)
		assert.NoError(t, err)
		assert.Equal(t, ApprovalPending, apr.Status)
		assert.False(t, apr.Decided())
	})

	t.Run("submitted decision is returned", func(t *testing.T) {
		_, err := svc.SubmitApproval(ctx, teacher, prj.ID, NewApproval{Status: ApprovalRejected, Comments: "Too broad"})
		assert.NoError(t, err)

		apr, err := svc.TeacherApproval(ctx, prj.ID, teacher.ID)
		assert.NoError(t, err)
		assert.Equal(t, ApprovalRejected, apr.Status)

		uniApr, err := svc.UniversityDecision(ctx, prj.ID, "mit")
		assert.NoError(t, err)
		assert.Equal(t, apr.ID, uniApr.ID)
	})
}

func TestServiceSupervisionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeRepo(), nil, nil)

	owner := testIndustry()
	prj := testProject(t, svc, owner)
	first := testTeacher("MIT")
	second := testTeacher("Stanford")

	sup1, err := svc.RegisterSupervision(ctx, first, prj.ID)
	assert.NoError(t, err)
	assert.Equal(t, ResponsePending, sup1.ResponseFromInd.Status)
	_, err = svc.RegisterSupervision(ctx, second, prj.ID)
	assert.NoError(t, err)

	t.Run("duplicate registration", func(t *testing.T) {
		_, err := svc.RegisterSupervision(ctx, first, prj.ID)
		assert.Equal(t, ErrSupervisionExists, errors.Cause(err))
	})

	t.Run("only the owner decides", func(t *testing.T) {
		_, err := svc.DecideSupervision(ctx, first, prj.ID, SupervisionDecision{TeacherID: first.ID, Decision: ResponseApproved})
		assert.Equal(t, ErrNotProjectOwner, errors.Cause(err))
	})

	t.Run("approve fills the single slot", func(t *testing.T) {
		sup, err := svc.DecideSupervision(ctx, owner, prj.ID, SupervisionDecision{TeacherID: first.ID, Decision: ResponseApproved})
		assert.NoError(t, err)
		assert.True(t, sup.Approved())
		assert.Equal(t, DefaultApproveComments, sup.ResponseFromInd.Comments)

		_, err = svc.DecideSupervision(ctx, owner, prj.ID, SupervisionDecision{TeacherID: second.ID, Decision: ResponseApproved})
		assert.Equal(t, ErrSupervisorTaken, errors.Cause(err))
	})

	t.Run("rejecting the approved supervisor frees the slot", func(t *testing.T) {
		sup, err := svc.DecideSupervision(ctx, owner, prj.ID, SupervisionDecision{TeacherID: first.ID, Decision: ResponseRejected})
		assert.NoError(t, err)
		assert.Equal(t, ResponseRejected, sup.ResponseFromInd.Status)
		assert.Equal(t, RejectComments, sup.ResponseFromInd.Comments)

		sup, err = svc.DecideSupervision(ctx, owner, prj.ID, SupervisionDecision{TeacherID: second.ID, Decision: ResponseApproved})
		assert.NoError(t, err)
		assert.True(t, sup.Approved())
	})

	t.Run("the queue is only visible to the owner", func(t *testing.T) {
		_, err := svc.QuerySupervisions(ctx, first, prj.ID, nil)
		assert.Equal(t, ErrNotProjectOwner, errors.Cause(err))

		_, err = svc.QuerySupervisions(ctx, testStudent(), prj.ID, nil)
		assert.Equal(t, ErrNotProjectOwner, errors.Cause(err))

		otherRep := user.User{ID: uuid.New().String(), Email: "rep@other.test", Roles: []string{user.RoleIndustry}}
		_, err = svc.QuerySupervisions(ctx, otherRep, prj.ID, nil)
		assert.Equal(t, ErrNotProjectOwner, errors.Cause(err)) // another rep is not the owner

		sups, err := svc.QuerySupervisions(ctx, owner, prj.ID, nil)
		assert.NoError(t, err)
		assert.Len(t, sups, 2)
	})

	t.Run("a teacher reads their own registration only", func(t *testing.T) {
		sup, err := svc.GetSupervision(ctx, first, prj.ID, first.ID)
		assert.NoError(t, err)
		assert.Equal(t, first.ID, sup.TeacherID)

		_, err = svc.GetSupervision(ctx, first, prj.ID, second.ID)
		assert.Equal(t, ErrNotProjectOwner, errors.Cause(err))

		sup, err = svc.GetSupervision(ctx, owner, prj.ID, second.ID)
		assert.NoError(t, err)
		assert.Equal(t, second.ID, sup.TeacherID)
	})

	t.Run("owner deletes a supervision", func(t *testing.T) {
		err := svc.DeleteSupervision(ctx, owner, prj.ID, first.ID)
		assert.NoError(t, err)
		sups, err := svc.QuerySupervisions(ctx, owner, prj.ID, nil)
		assert.NoError(t, err)
		assert.Len(t, sups, 1)
	})
}

func TestServiceQuerySupervisionsFilter(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeRepo(), nil, nil)

	owner := testIndustry()
	prj := testProject(t, svc, owner)
	ada := user.User{ID: uuid.New().String(), Name: "Ada Lovelace", Email: "ada@mit.test", University: "MIT", Roles: []string{user.RoleTeacher}}
	alan := user.User{ID: uuid.New().String(), Name: "Alan Turing", Email: "alan@mit.test", University: "MIT", Roles: []string{user.RoleTeacher}}
	grace := user.User{ID: uuid.New().String(), Name: "Grace Hopper", Email: "grace@yale.test", University: "Yale", Roles: []string{user.RoleTeacher}}
	for _, tch := range []user.User{ada, alan, grace} {
		_, err := svc.RegisterSupervision(ctx, tch, prj.ID)
		assert.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter *SupervisionFilter
		want   int
	}{
		{name: "no filter", filter: nil, want: 3},
		{name: "university only", filter: &SupervisionFilter{University: "mit"}, want: 2},
		{name: "search only", filter: &SupervisionFilter{Search: "ada"}, want: 1},
		{name: "both must match", filter: &SupervisionFilter{University: "MIT", Search: "grace"}, want: 0},
		{name: "both match", filter: &SupervisionFilter{University: "MIT", Search: "turing"}, want: 1},
		{name: "search matches email", filter: &SupervisionFilter{Search: "yale.test"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sups, err := svc.QuerySupervisions(ctx, owner, prj.ID, tt.filter)
			assert.NoError(t, err)
			assert.Len(t, sups, tt.want)
		})
	}
}

func TestServiceProgress(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeRepo(), nil, nil)

	owner := testIndustry()
	prj := testProject(t, svc, owner)

	prog, err := svc.Progress(ctx, prj.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, prog.Percentage)
	assert.Equal(t, ProgressNotStarted, prog.Status)

	student := testStudent()

	_, err = svc.SubmitApproval(ctx, testTeacher("MIT"), prj.ID, NewApproval{Status: ApprovalApproved, Comments: "ok"})
	assert.NoError(t, err)
	teacher := testTeacher("Stanford")
	_, err = svc.RegisterSupervision(ctx, teacher, prj.ID)
	assert.NoError(t, err)
	_, err = svc.DecideSupervision(ctx, owner, prj.ID, SupervisionDecision{TeacherID: teacher.ID, Decision: ResponseApproved})
	assert.NoError(t, err)
	sel, err := svc.RecordSelection(ctx, student, prj.ID, NewSelection{GroupMembers: []string{student.Email}})
	assert.NoError(t, err)
	assert.Equal(t, student.Email, sel.GroupLeader)

	prog, err = svc.Progress(ctx, prj.ID)
	assert.NoError(t, err)
	assert.Equal(t, 3, prog.CompletedSteps)
	assert.Equal(t, 50, prog.Percentage)
	assert.Equal(t, ProgressInProgress, prog.Status)

	// submission + review + completed selection close out the checklist
	sub, err := svc.RecordSubmission(ctx, student, prj.ID, NewSubmission{SelectionID: sel.ID, Title: "Final Report"})
	assert.NoError(t, err)
	assert.Equal(t, student.Email, sub.SubmittedBy)
	rev, err := svc.RecordReview(ctx, teacher, prj.ID, NewReview{SubmissionID: sub.ID, Rating: 4, Comments: "Well done"})
	assert.NoError(t, err)
	assert.Equal(t, teacher.ID, rev.ReviewerID)
	_, err = svc.RecordSelection(ctx, student, prj.ID, NewSelection{GroupMembers: []string{student.Email}, IsCompleted: true})
	assert.NoError(t, err)

	prog, err = svc.Progress(ctx, prj.ID)
	assert.NoError(t, err)
	assert.Equal(t, 6, prog.CompletedSteps)
	assert.Equal(t, 100, prog.Percentage)
	assert.Equal(t, ProgressCompleted, prog.Status)

	t.Run("only students record selections and submissions", func(t *testing.T) {
		_, err := svc.RecordSelection(ctx, teacher, prj.ID, NewSelection{GroupMembers: []string{student.Email}})
		assert.Equal(t, ErrNotStudent, errors.Cause(err))
		_, err = svc.RecordSubmission(ctx, owner, prj.ID, NewSubmission{Title: "nope"})
		assert.Equal(t, ErrNotStudent, errors.Cause(err))
	})

	t.Run("only teachers record reviews", func(t *testing.T) {
		_, err := svc.RecordReview(ctx, student, prj.ID, NewReview{Rating: 5})
		assert.Equal(t, ErrNotTeacher, errors.Cause(err))
	})

	t.Run("unknown project", func(t *testing.T) {
		_, err := svc.Progress(ctx, uuid.New().String())
		assert.Equal(t, ErrNotFound, errors.Cause(err))
	})
}

func TestNewApprovalValidation(t *testing.T) {
	tests := []struct {
		name    string
		na      NewApproval
		wantErr bool
	}{
		{name: "valid", na: NewApproval{Status: ApprovalApproved, Comments: "Solid plan"}},
		{name: "missing comments", na: NewApproval{Status: ApprovalApproved}, wantErr: true},
		{name: "whitespace comments", na: NewApproval{Status: ApprovalRejected, Comments: "   "}, wantErr: true},
		{name: "unknown status", na: NewApproval{Status: "maybe", Comments: "hmm"}, wantErr: true},
		{name: "pending is not submittable", na: NewApproval{Status: ApprovalPending, Comments: "later"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.na.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
