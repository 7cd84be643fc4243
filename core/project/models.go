package project

import (
	"strings"
	"time"

	"github.com/fyplink/backend/core"
	"github.com/fyplink/backend/core/user"
)

// Project statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Approval statuses. A teacher who never submitted a decision is reported as
// ApprovalPending; persisted records always carry an explicit status.
const (
	ApprovalPending      = "pending"
	ApprovalApproved     = "approved"
	ApprovalNeedMoreInfo = "needMoreInfo"
	ApprovalRejected     = "rejected"
)

// Industry response statuses on a supervision request.
const (
	ResponsePending  = "pending"
	ResponseApproved = "approved"
	ResponseRejected = "rejected"
)

// Owner decision default comments.
const (
	DefaultApproveComments = "Approved by project owner"
	RejectComments         = "Rejected by project owner"
)

type Duration struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

type Project struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	ProjectType         string    `json:"project_type"`
	DifficultyLevel     string    `json:"difficulty_level"`
	Status              string    `json:"status"`
	IndustryName        string    `json:"industry_name"`
	RepresentativeID    string    `json:"representative_id"` // owner's email
	Duration            Duration  `json:"duration"`
	MaxGroups           int       `json:"max_groups"`
	MaxStudentsPerGroup int       `json:"max_students_per_group"`
	RequiredSkills      []string  `json:"required_skills"`
	CreatedAt           time.Time `json:"created_at"` // UTC
	UpdatedAt           time.Time `json:"updated_at"` // UTC
}

// Expired reports whether the project's duration has elapsed. An expired
// project no longer accepts approval actions.
func (p *Project) Expired() bool {
	return !p.Duration.EndDate.IsZero() && p.Duration.EndDate.Before(time.Now().UTC())
}

// OwnedBy reports whether usr is the project's owning industry representative.
func (p *Project) OwnedBy(usr user.User) bool {
	return usr.IsIndustry() && strings.EqualFold(usr.Email, p.RepresentativeID)
}

// Approval is a teacher's verdict on a project proposal, scoped to their
// university: at most one decision per (project, teacher) and one per
// (project, university).
type Approval struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	TeacherID  string    `json:"teacher_id"`
	FullName   string    `json:"full_name"`
	University string    `json:"university"`
	Status     string    `json:"status"`
	Comments   string    `json:"comments"`
	ActionAt   time.Time `json:"action_at"`  // UTC
	CreatedAt  time.Time `json:"created_at"` // UTC
}

func (a *Approval) Decided() bool {
	return a.Status != "" && a.Status != ApprovalPending
}

// Editable reports whether the approval may still be edited by its author.
func (a *Approval) Editable() bool {
	return a.Status == ApprovalNeedMoreInfo
}

// IndustryResponse is the project owner's decision on a supervision request.
type IndustryResponse struct {
	Status   string `json:"status"`
	Comments string `json:"comments"`
}

// Supervision is a teacher's registered offer to supervise a project, subject
// to the owning industry representative's accept/reject decision.
type Supervision struct {
	ID              string           `json:"id"`
	ProjectID       string           `json:"project_id"`
	TeacherID       string           `json:"teacher_id"`
	FullName        string           `json:"full_name"`
	Email           string           `json:"email"`
	University      string           `json:"university"`
	ResponseFromInd IndustryResponse `json:"response_from_ind"`
	CreatedAt       time.Time        `json:"created_at"` // UTC
	UpdatedAt       time.Time        `json:"updated_at"` // UTC
}

func (s *Supervision) Approved() bool {
	return s.ResponseFromInd.Status == ResponseApproved
}

// Group is a student selection on a project; a progress signal only, never
// mutated by this workflow.
type Group struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	GroupLeader  string    `json:"group_leader"`
	GroupMembers []string  `json:"group_members"`
	IsCompleted  bool      `json:"is_completed"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

type Submission struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	SelectionID string    `json:"selection_id,omitempty"`
	Title       string    `json:"title"`
	FileURL     string    `json:"file_url,omitempty"`
	SubmittedBy string    `json:"submitted_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

type Review struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	SubmissionID string    `json:"submission_id,omitempty"`
	ReviewerID   string    `json:"reviewer_id"`
	Rating       int       `json:"rating"`
	Comments     string    `json:"comments"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// NewProject contains information needed to create a new Project.
type NewProject struct {
	Title               string    `json:"title" validate:"required"`
	Description         string    `json:"description"`
	ProjectType         string    `json:"project_type"`
	DifficultyLevel     string    `json:"difficulty_level" validate:"omitempty,oneof=beginner intermediate advanced"`
	IndustryName        string    `json:"industry_name"`
	StartDate           time.Time `json:"start_date" validate:"required"`
	EndDate             time.Time `json:"end_date" validate:"required"`
	MaxGroups           int       `json:"max_groups" validate:"min=1"`
	MaxStudentsPerGroup int       `json:"max_students_per_group" validate:"min=1"`
	RequiredSkills      []string  `json:"required_skills"`
}

func (np *NewProject) Validate() error {
	np.Title = core.CleanString(np.Title)
	np.Description = core.CleanString(np.Description)
	np.IndustryName = core.CleanString(np.IndustryName)
	return core.Validate.Struct(np)
}

// UpdateProject defines what information may be provided to modify an existing Project.
type UpdateProject struct {
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	ProjectType         string    `json:"project_type"`
	DifficultyLevel     string    `json:"difficulty_level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Status              string    `json:"status" validate:"omitempty,oneof=active inactive"`
	StartDate           time.Time `json:"start_date"`
	EndDate             time.Time `json:"end_date"`
	MaxGroups           int       `json:"max_groups" validate:"omitempty,min=1"`
	MaxStudentsPerGroup int       `json:"max_students_per_group" validate:"omitempty,min=1"`
	RequiredSkills      []string  `json:"required_skills"`
}

func (up *UpdateProject) Validate() error {
	up.Title = core.CleanString(up.Title)
	up.Description = core.CleanString(up.Description)
	return core.Validate.Struct(up)
}

// NewApproval is a teacher's initial decision on a project. Comments are
// mandatory: a decision without justification is rejected before any write.
type NewApproval struct {
	Status   string `json:"status" validate:"required,oneof=approved needMoreInfo rejected"`
	Comments string `json:"comments" validate:"required"`
}

func (na *NewApproval) Validate() error {
	na.Comments = core.CleanString(na.Comments)
	return core.Validate.Struct(na)
}

// EditApproval re-submits a decision; only permitted while the current status
// is needMoreInfo and the actor authored the original decision.
type EditApproval struct {
	Status   string `json:"status" validate:"required,oneof=approved needMoreInfo rejected"`
	Comments string `json:"comments" validate:"required"`
}

func (ea *EditApproval) Validate() error {
	ea.Comments = core.CleanString(ea.Comments)
	return core.Validate.Struct(ea)
}

// SupervisionDecision is the project owner's accept/reject call on a
// registered supervision.
type SupervisionDecision struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	Decision  string `json:"decision" validate:"required,oneof=approved rejected"`
	Comments  string `json:"comments"`
}

func (sd *SupervisionDecision) Validate() error {
	sd.Comments = core.CleanString(sd.Comments)
	return core.Validate.Struct(sd)
}

// NewSelection records a student group's selection of a project. The group
// leader defaults to the acting student.
type NewSelection struct {
	GroupLeader  string   `json:"group_leader" validate:"omitempty,email"`
	GroupMembers []string `json:"group_members" validate:"required,min=1,dive,email"`
	IsCompleted  bool     `json:"is_completed"`
}

func (ns *NewSelection) Validate() error {
	ns.GroupLeader = core.CleanString(ns.GroupLeader, true /* lower */)
	for i, m := range ns.GroupMembers {
		ns.GroupMembers[i] = core.CleanString(m, true /* lower */)
	}
	return core.Validate.Struct(ns)
}

// NewSubmission records a student deliverable.
type NewSubmission struct {
	SelectionID string `json:"selection_id"`
	Title       string `json:"title" validate:"required"`
	FileURL     string `json:"file_url" validate:"omitempty,url"`
}

func (ns *NewSubmission) Validate() error {
	ns.Title = core.CleanString(ns.Title)
	return core.Validate.Struct(ns)
}

// NewReview records a teacher's review of a submission.
type NewReview struct {
	SubmissionID string `json:"submission_id"`
	Rating       int    `json:"rating" validate:"required,min=1,max=5"`
	Comments     string `json:"comments"`
}

func (nr *NewReview) Validate() error {
	nr.Comments = core.CleanString(nr.Comments)
	return core.Validate.Struct(nr)
}

// QueryFilter filters project listings.
type QueryFilter struct {
	Search         string `query:"search"`
	Status         string `query:"status"`
	ProjectType    string `query:"project_type"`
	Representative string `query:"representative"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Status == "" && qf.ProjectType == "" && qf.Representative == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Representative = core.CleanString(qf.Representative, true /* lower */)
}

// SupervisionFilter narrows a project's supervision list; both predicates
// must hold (AND).
type SupervisionFilter struct {
	University string `query:"university"`
	Search     string `query:"search"`
}

func (sf *SupervisionFilter) Clean() {
	sf.University = core.CleanString(sf.University)
	sf.Search = core.CleanString(sf.Search)
}

// Match reports whether a supervision passes the filter.
func (sf *SupervisionFilter) Match(s Supervision) bool {
	if sf.University != "" && !strings.EqualFold(s.University, sf.University) {
		return false
	}
	if sf.Search != "" {
		kw := strings.ToLower(sf.Search)
		if !strings.Contains(strings.ToLower(s.FullName), kw) &&
			!strings.Contains(strings.ToLower(s.Email), kw) {
			return false
		}
	}
	return true
}
