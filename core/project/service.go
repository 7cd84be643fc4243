package project

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/fyplink/backend/core"
	"github.com/fyplink/backend/core/user"
)

var (
	// errors
	ErrNotFound            = errors.New("project not found")
	ErrApprovalNotFound    = errors.New("approval not found")
	ErrSupervisionNotFound = errors.New("supervision not found")
	ErrProjectExpired      = errors.New("project has expired")
	ErrNotProjectOwner     = errors.New("only the project owner may perform this action")
	ErrNotTeacher          = errors.New("only teachers with a university affiliation may perform this action")
	ErrNotStudent          = errors.New("only students may perform this action")
	ErrApprovalExists      = errors.New("you have already reviewed this project")
	ErrUniversityDecided   = errors.New("a teacher from this university has already reviewed this project")
	ErrApprovalNotEditable = errors.New("approval can only be edited while more information is requested")
	ErrSupervisorTaken     = errors.New("a supervisor has already been approved for this project")
	ErrSupervisionExists   = errors.New("you have already registered to supervise this project")
)

// workflow event names
const (
	EventApprovalSubmitted   = "project.approval.submitted"
	EventApprovalEdited      = "project.approval.edited"
	EventSupervisionOffered  = "project.supervision.offered"
	EventSupervisionApproved = "project.supervision.approved"
	EventSupervisionRejected = "project.supervision.rejected"
	EventSupervisionDeleted  = "project.supervision.deleted"
)

type (
	Repository interface {
		CreateProject(ctx context.Context, prj Project) (Project, error)
		GetProject(ctx context.Context, id string) (Project, error)
		// QueryProjects applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of
		// Project.Title, Project.Description or Project.IndustryName.
		QueryProjects(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Project, error)
		UpdateProject(ctx context.Context, prj Project) (Project, error)

		// CreateApproval persists a teacher's decision. It fails with
		// ErrApprovalExists when the teacher already decided, and with
		// ErrUniversityDecided when another teacher of the same university
		// decided first (first writer wins); both are enforced atomically.
		CreateApproval(ctx context.Context, apr Approval) (Approval, error)
		UpdateApproval(ctx context.Context, apr Approval) (Approval, error)
		GetApproval(ctx context.Context, projectID, teacherID string) (Approval, error)
		GetUniversityApproval(ctx context.Context, projectID, university string) (Approval, error)
		QueryApprovals(ctx context.Context, projectID string) ([]Approval, error)

		CreateSupervision(ctx context.Context, sup Supervision) (Supervision, error)
		GetSupervision(ctx context.Context, projectID, teacherID string) (Supervision, error)
		QuerySupervisions(ctx context.Context, projectID string) ([]Supervision, error)
		// ApproveSupervision conditionally marks a supervision approved; it
		// fails with ErrSupervisorTaken when the project already has an
		// approved supervision (at most one at any time, enforced atomically).
		ApproveSupervision(ctx context.Context, projectID, teacherID, comments string) (Supervision, error)
		UpdateSupervisionResponse(ctx context.Context, projectID, teacherID, status, comments string) (Supervision, error)
		DeleteSupervision(ctx context.Context, projectID, teacherID string) error

		CreateSelection(ctx context.Context, sel Group) (Group, error)
		QuerySelections(ctx context.Context, projectID string) ([]Group, error)
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		QuerySubmissions(ctx context.Context, projectID string) ([]Submission, error)
		CreateReview(ctx context.Context, rev Review) (Review, error)
		QueryReviews(ctx context.Context, projectID string) ([]Review, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, actor user.User, np NewProject) (Project, error)
		GetByID(ctx context.Context, id string) (Project, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Project, error)
		Update(ctx context.Context, actor user.User, id string, up UpdateProject) (Project, error)
		Progress(ctx context.Context, projectID string) (Progress, error)

		SubmitApproval(ctx context.Context, actor user.User, projectID string, na NewApproval) (Approval, error)
		EditApproval(ctx context.Context, actor user.User, projectID string, ea EditApproval) (Approval, error)
		TeacherApproval(ctx context.Context, projectID, teacherID string) (Approval, error)
		UniversityDecision(ctx context.Context, projectID, university string) (Approval, error)

		RegisterSupervision(ctx context.Context, actor user.User, projectID string) (Supervision, error)
		GetSupervision(ctx context.Context, actor user.User, projectID, teacherID string) (Supervision, error)
		QuerySupervisions(ctx context.Context, actor user.User, projectID string, filter *SupervisionFilter) ([]Supervision, error)
		DecideSupervision(ctx context.Context, actor user.User, projectID string, sd SupervisionDecision) (Supervision, error)
		DeleteSupervision(ctx context.Context, actor user.User, projectID, teacherID string) error

		RecordSelection(ctx context.Context, actor user.User, projectID string, ns NewSelection) (Group, error)
		RecordSubmission(ctx context.Context, actor user.User, projectID string, ns NewSubmission) (Submission, error)
		RecordReview(ctx context.Context, actor user.User, projectID string, nr NewReview) (Review, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		events  core.EventPublisher
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, events core.EventPublisher) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, events: events}
}

func (svc *Service) Create(ctx context.Context, actor user.User, np NewProject) (Project, error) {
	if !actor.IsIndustry() {
		return Project{}, ErrNotProjectOwner
	}

	now := time.Now().UTC()
	prj := Project{
		Title:               np.Title,
		Description:         np.Description,
		ProjectType:         np.ProjectType,
		DifficultyLevel:     np.DifficultyLevel,
		Status:              StatusActive,
		IndustryName:        np.IndustryName,
		RepresentativeID:    core.CleanString(actor.Email, true /* lower */),
		Duration:            Duration{StartDate: np.StartDate.UTC(), EndDate: np.EndDate.UTC()},
		MaxGroups:           np.MaxGroups,
		MaxStudentsPerGroup: np.MaxStudentsPerGroup,
		RequiredSkills:      np.RequiredSkills,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	return svc.repo.CreateProject(ctx, prj)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Project, error) {
	return svc.repo.GetProject(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Project, error) {
	return svc.repo.QueryProjects(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, actor user.User, id string, up UpdateProject) (Project, error) {
	prj, err := svc.repo.GetProject(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if !prj.OwnedBy(actor) {
		return Project{}, ErrNotProjectOwner
	}

	if up.Title != "" {
		prj.Title = up.Title
	}
	if up.Description != "" {
		prj.Description = up.Description
	}
	if up.ProjectType != "" {
		prj.ProjectType = up.ProjectType
	}
	if up.DifficultyLevel != "" {
		prj.DifficultyLevel = up.DifficultyLevel
	}
	if up.Status != "" {
		prj.Status = up.Status
	}
	if !up.StartDate.IsZero() {
		prj.Duration.StartDate = up.StartDate.UTC()
	}
	if !up.EndDate.IsZero() {
		prj.Duration.EndDate = up.EndDate.UTC()
	}
	if up.MaxGroups > 0 {
		prj.MaxGroups = up.MaxGroups
	}
	if up.MaxStudentsPerGroup > 0 {
		prj.MaxStudentsPerGroup = up.MaxStudentsPerGroup
	}
	if up.RequiredSkills != nil {
		prj.RequiredSkills = up.RequiredSkills
	}
	prj.UpdatedAt = time.Now().UTC()

	return svc.repo.UpdateProject(ctx, prj)
}

// Progress recomputes the project's milestone checklist from the latest
// records; nothing is persisted.
func (svc *Service) Progress(ctx context.Context, projectID string) (Progress, error) {
	if _, err := svc.repo.GetProject(ctx, projectID); err != nil {
		return Progress{}, err
	}

	var snap Snapshot
	var err error
	if snap.Approvals, err = svc.repo.QueryApprovals(ctx, projectID); err != nil {
		return Progress{}, errors.Wrap(err, "querying approvals")
	}
	if snap.Supervisions, err = svc.repo.QuerySupervisions(ctx, projectID); err != nil {
		return Progress{}, errors.Wrap(err, "querying supervisions")
	}
	if snap.Selections, err = svc.repo.QuerySelections(ctx, projectID); err != nil {
		return Progress{}, errors.Wrap(err, "querying selections")
	}
	if snap.Submissions, err = svc.repo.QuerySubmissions(ctx, projectID); err != nil {
		return Progress{}, errors.Wrap(err, "querying submissions")
	}
	if snap.Reviews, err = svc.repo.QueryReviews(ctx, projectID); err != nil {
		return Progress{}, errors.Wrap(err, "querying reviews")
	}
	return ComputeProgress(snap), nil
}

// SubmitApproval records a teacher's first decision on a project. One
// decision per teacher, one per university (first writer wins); both are
// enforced by the repository, not by a read-then-write check.
func (svc *Service) SubmitApproval(ctx context.Context, actor user.User, projectID string, na NewApproval) (Approval, error) {
	if !actor.IsTeacher() || actor.University == "" {
		return Approval{}, ErrNotTeacher
	}

	prj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return Approval{}, err
	}
	if prj.Expired() {
		return Approval{}, expiredErr(prj)
	}

	now := time.Now().UTC()
	apr := Approval{
		ProjectID:  projectID,
		TeacherID:  actor.ID,
		FullName:   actor.Name,
		University: actor.University,
		Status:     na.Status,
		Comments:   na.Comments,
		ActionAt:   now,
		CreatedAt:  now,
	}
	apr, err = svc.repo.CreateApproval(ctx, apr)
	if err != nil {
		return Approval{}, err
	}

	svc.publish(ctx, EventApprovalSubmitted, actor.Email, map[string]interface{}{
		"project_id": projectID,
		"university": apr.University,
		"status":     apr.Status,
	})
	return apr, nil
}

// EditApproval replaces the author's decision; only permitted while the
// current status is needMoreInfo.
func (svc *Service) EditApproval(ctx context.Context, actor user.User, projectID string, ea EditApproval) (Approval, error) {
	prj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return Approval{}, err
	}
	if prj.Expired() {
		return Approval{}, expiredErr(prj)
	}

	apr, err := svc.repo.GetApproval(ctx, projectID, actor.ID)
	if err != nil {
		return Approval{}, err
	}
	if !apr.Editable() {
		return Approval{}, ErrApprovalNotEditable
	}

	apr.Status = ea.Status
	apr.Comments = ea.Comments
	apr.ActionAt = time.Now().UTC()
	apr, err = svc.repo.UpdateApproval(ctx, apr)
	if err != nil {
		return Approval{}, err
	}

	svc.publish(ctx, EventApprovalEdited, actor.Email, map[string]interface{}{
		"project_id": projectID,
		"university": apr.University,
		"status":     apr.Status,
	})
	return apr, nil
}

// TeacherApproval returns the teacher's own decision on a project. A teacher
// who never submitted gets an explicit pending record rather than an error.
func (svc *Service) TeacherApproval(ctx context.Context, projectID, teacherID string) (Approval, error) {
	apr, err := svc.repo.GetApproval(ctx, projectID, teacherID)
	if err != nil {
		if errors.Cause(err) == ErrApprovalNotFound {
			return Approval{ProjectID: projectID, TeacherID: teacherID, Status: ApprovalPending}, nil
		}
		return Approval{}, err
	}
	return apr, nil
}

// UniversityDecision returns the effective decision produced by any teacher
// of the given university, if one exists.
func (svc *Service) UniversityDecision(ctx context.Context, projectID, university string) (Approval, error) {
	return svc.repo.GetUniversityApproval(ctx, projectID, university)
}

// RegisterSupervision records a teacher's intent to supervise a project; the
// owner's response starts out pending.
func (svc *Service) RegisterSupervision(ctx context.Context, actor user.User, projectID string) (Supervision, error) {
	if !actor.IsTeacher() || actor.University == "" {
		return Supervision{}, ErrNotTeacher
	}
	if _, err := svc.repo.GetProject(ctx, projectID); err != nil {
		return Supervision{}, err
	}

	now := time.Now().UTC()
	sup := Supervision{
		ProjectID:       projectID,
		TeacherID:       actor.ID,
		FullName:        actor.Name,
		Email:           actor.Email,
		University:      actor.University,
		ResponseFromInd: IndustryResponse{Status: ResponsePending},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	sup, err := svc.repo.CreateSupervision(ctx, sup)
	if err != nil {
		return Supervision{}, err
	}

	svc.publish(ctx, EventSupervisionOffered, actor.Email, map[string]interface{}{
		"project_id": projectID,
		"university": sup.University,
	})
	return sup, nil
}

// QuerySupervisions lists a project's supervision queue. The queue carries
// teacher names and emails, so it is only visible to the owning industry
// representative (and admins).
func (svc *Service) QuerySupervisions(ctx context.Context, actor user.User, projectID string, filter *SupervisionFilter) ([]Supervision, error) {
	prj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !prj.OwnedBy(actor) && !actor.IsAdmin() {
		return nil, ErrNotProjectOwner
	}

	sups, err := svc.repo.QuerySupervisions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return sups, nil
	}
	filter.Clean()

	filtered := make([]Supervision, 0, len(sups))
	for _, sup := range sups {
		if filter.Match(sup) {
			filtered = append(filtered, sup)
		}
	}
	return filtered, nil
}

// DecideSupervision applies the project owner's approve/reject call. Approval
// is subject to the single-approved-supervisor rule; rejection is always
// permitted, including on a currently approved record (this frees the slot,
// with no cascade to the project itself).
func (svc *Service) DecideSupervision(ctx context.Context, actor user.User, projectID string, sd SupervisionDecision) (Supervision, error) {
	prj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return Supervision{}, err
	}
	if !prj.OwnedBy(actor) {
		return Supervision{}, ErrNotProjectOwner
	}

	var sup Supervision
	var event string
	switch sd.Decision {
	case ResponseApproved:
		comments := sd.Comments
		if comments == "" {
			comments = DefaultApproveComments
		}
		sup, err = svc.repo.ApproveSupervision(ctx, projectID, sd.TeacherID, comments)
		event = EventSupervisionApproved
	case ResponseRejected:
		sup, err = svc.repo.UpdateSupervisionResponse(ctx, projectID, sd.TeacherID, ResponseRejected, RejectComments)
		event = EventSupervisionRejected
	default:
		return Supervision{}, core.NewValidationError(errors.New("unknown decision"),
			core.FieldError{Field: "decision", Error: "must be one of approved, rejected"})
	}
	if err != nil {
		return Supervision{}, err
	}

	svc.publish(ctx, event, actor.Email, map[string]interface{}{
		"project_id": projectID,
		"teacher_id": sup.TeacherID,
	})
	svc.notifyTeacher(prj, sup)
	return sup, nil
}

// GetSupervision returns a single registration; visible to the project owner,
// admins and the registered teacher themselves.
func (svc *Service) GetSupervision(ctx context.Context, actor user.User, projectID, teacherID string) (Supervision, error) {
	prj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return Supervision{}, err
	}
	if !prj.OwnedBy(actor) && !actor.IsAdmin() && actor.ID != teacherID {
		return Supervision{}, ErrNotProjectOwner
	}
	return svc.repo.GetSupervision(ctx, projectID, teacherID)
}

func (svc *Service) DeleteSupervision(ctx context.Context, actor user.User, projectID, teacherID string) error {
	prj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !prj.OwnedBy(actor) {
		return ErrNotProjectOwner
	}

	if err = svc.repo.DeleteSupervision(ctx, projectID, teacherID); err != nil {
		return err
	}
	svc.publish(ctx, EventSupervisionDeleted, actor.Email, map[string]interface{}{
		"project_id": projectID,
		"teacher_id": teacherID,
	})
	return nil
}

// RecordSelection records a student group's selection of the project; a
// progress signal read by the aggregator, never mutated afterwards.
func (svc *Service) RecordSelection(ctx context.Context, actor user.User, projectID string, ns NewSelection) (Group, error) {
	if !actor.IsStudent() {
		return Group{}, ErrNotStudent
	}
	if _, err := svc.repo.GetProject(ctx, projectID); err != nil {
		return Group{}, err
	}

	leader := ns.GroupLeader
	if leader == "" {
		leader = core.CleanString(actor.Email, true /* lower */)
	}
	return svc.repo.CreateSelection(ctx, Group{
		ProjectID:    projectID,
		GroupLeader:  leader,
		GroupMembers: ns.GroupMembers,
		IsCompleted:  ns.IsCompleted,
		CreatedAt:    time.Now().UTC(),
	})
}

// RecordSubmission records a student deliverable against the project.
func (svc *Service) RecordSubmission(ctx context.Context, actor user.User, projectID string, ns NewSubmission) (Submission, error) {
	if !actor.IsStudent() {
		return Submission{}, ErrNotStudent
	}
	if _, err := svc.repo.GetProject(ctx, projectID); err != nil {
		return Submission{}, err
	}

	return svc.repo.CreateSubmission(ctx, Submission{
		ProjectID:   projectID,
		SelectionID: ns.SelectionID,
		Title:       ns.Title,
		FileURL:     ns.FileURL,
		SubmittedBy: core.CleanString(actor.Email, true /* lower */),
		CreatedAt:   time.Now().UTC(),
	})
}

// RecordReview records a teacher's review of a submission.
func (svc *Service) RecordReview(ctx context.Context, actor user.User, projectID string, nr NewReview) (Review, error) {
	if !actor.IsTeacher() || actor.University == "" {
		return Review{}, ErrNotTeacher
	}
	if _, err := svc.repo.GetProject(ctx, projectID); err != nil {
		return Review{}, err
	}

	return svc.repo.CreateReview(ctx, Review{
		ProjectID:    projectID,
		SubmissionID: nr.SubmissionID,
		ReviewerID:   actor.ID,
		Rating:       nr.Rating,
		Comments:     nr.Comments,
		CreatedAt:    time.Now().UTC(),
	})
}

// publish emits a workflow event; best effort, failures never fail the
// operation itself.
func (svc *Service) publish(ctx context.Context, name, actor string, data map[string]interface{}) {
	if svc.events == nil {
		return
	}
	_ = svc.events.Publish(ctx, core.Event{
		Name:  name,
		Actor: actor,
		At:    time.Now().UTC(),
		Data:  data,
	})
}

// notifyTeacher emails the supervising teacher about the owner's decision.
func (svc *Service) notifyTeacher(prj Project, sup Supervision) {
	if svc.mailSvc == nil || sup.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: sup.FullName, Address: sup.Email}},
		Subject:      "Supervision Request Update",
		TemplateName: "supervision-decision",
		TemplateData: struct {
			TeacherName  string
			ProjectTitle string
			ProjectID    string
			Decision     string
			Comments     string
		}{sup.FullName, prj.Title, prj.ID, sup.ResponseFromInd.Status, sup.ResponseFromInd.Comments},
	})
}

func expiredErr(prj Project) error {
	return errors.Wrapf(ErrProjectExpired, "project expired on %s", prj.Duration.EndDate.Format("Jan 02, 2006"))
}
