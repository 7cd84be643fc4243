package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fyplink/backend/core"
	"github.com/fyplink/backend/core/project"
)

// projectSortable lists the project columns accepted in ORDER BY.
var projectSortable = map[string]bool{
	"title":            true,
	"status":           true,
	"project_type":     true,
	"difficulty_level": true,
	"industry_name":    true,
	"start_date":       true,
	"end_date":         true,
	"created_at":       true,
	"updated_at":       true,
}

type dbProject struct {
	ID                  string         `db:"id"`
	Title               string         `db:"title"`
	Description         null.String    `db:"description"`
	ProjectType         null.String    `db:"project_type"`
	DifficultyLevel     null.String    `db:"difficulty_level"`
	Status              string         `db:"status"`
	IndustryName        null.String    `db:"industry_name"`
	RepresentativeID    string         `db:"representative_id"`
	StartDate           null.Time      `db:"start_date"`
	EndDate             null.Time      `db:"end_date"`
	MaxGroups           null.Int       `db:"max_groups"`
	MaxStudentsPerGroup null.Int       `db:"max_students_per_group"`
	RequiredSkills      pq.StringArray `db:"required_skills"`
	CreatedAt           null.Time      `db:"created_at"`
	UpdatedAt           null.Time      `db:"updated_at"`
}

func (dp dbProject) toProject() project.Project {
	return project.Project{
		ID:                  dp.ID,
		Title:               dp.Title,
		Description:         dp.Description.String,
		ProjectType:         dp.ProjectType.String,
		DifficultyLevel:     dp.DifficultyLevel.String,
		Status:              dp.Status,
		IndustryName:        dp.IndustryName.String,
		RepresentativeID:    dp.RepresentativeID,
		Duration:            project.Duration{StartDate: dp.StartDate.Time, EndDate: dp.EndDate.Time},
		MaxGroups:           dp.MaxGroups.Int,
		MaxStudentsPerGroup: dp.MaxStudentsPerGroup.Int,
		RequiredSkills:      dp.RequiredSkills,
		CreatedAt:           dp.CreatedAt.Time,
		UpdatedAt:           dp.UpdatedAt.Time,
	}
}

type dbApproval struct {
	ID         string      `db:"id"`
	ProjectID  string      `db:"project_id"`
	TeacherID  string      `db:"teacher_id"`
	FullName   null.String `db:"full_name"`
	University string      `db:"university"`
	Status     string      `db:"status"`
	Comments   null.String `db:"comments"`
	ActionAt   null.Time   `db:"action_at"`
	CreatedAt  null.Time   `db:"created_at"`
}

func (da dbApproval) toApproval() project.Approval {
	return project.Approval{
		ID:         da.ID,
		ProjectID:  da.ProjectID,
		TeacherID:  da.TeacherID,
		FullName:   da.FullName.String,
		University: da.University,
		Status:     da.Status,
		Comments:   da.Comments.String,
		ActionAt:   da.ActionAt.Time,
		CreatedAt:  da.CreatedAt.Time,
	}
}

type dbSupervision struct {
	ID               string      `db:"id"`
	ProjectID        string      `db:"project_id"`
	TeacherID        string      `db:"teacher_id"`
	FullName         null.String `db:"full_name"`
	Email            null.String `db:"email"`
	University       null.String `db:"university"`
	ResponseStatus   string      `db:"response_status"`
	ResponseComments null.String `db:"response_comments"`
	CreatedAt        null.Time   `db:"created_at"`
	UpdatedAt        null.Time   `db:"updated_at"`
}

func (ds dbSupervision) toSupervision() project.Supervision {
	return project.Supervision{
		ID:         ds.ID,
		ProjectID:  ds.ProjectID,
		TeacherID:  ds.TeacherID,
		FullName:   ds.FullName.String,
		Email:      ds.Email.String,
		University: ds.University.String,
		ResponseFromInd: project.IndustryResponse{
			Status:   ds.ResponseStatus,
			Comments: ds.ResponseComments.String,
		},
		CreatedAt: ds.CreatedAt.Time,
		UpdatedAt: ds.UpdatedAt.Time,
	}
}

type dbSelection struct {
	ID           string         `db:"id"`
	ProjectID    string         `db:"project_id"`
	GroupLeader  null.String    `db:"group_leader"`
	GroupMembers pq.StringArray `db:"group_members"`
	IsCompleted  bool           `db:"is_completed"`
	CreatedAt    null.Time      `db:"created_at"`
}

type dbSubmission struct {
	ID          string      `db:"id"`
	ProjectID   string      `db:"project_id"`
	SelectionID null.String `db:"selection_id"`
	Title       null.String `db:"title"`
	FileURL     null.String `db:"file_url"`
	SubmittedBy null.String `db:"submitted_by"`
	CreatedAt   null.Time   `db:"created_at"`
}

type dbReview struct {
	ID           string      `db:"id"`
	ProjectID    string      `db:"project_id"`
	SubmissionID null.String `db:"submission_id"`
	ReviewerID   null.String `db:"reviewer_id"`
	Rating       null.Int    `db:"rating"`
	Comments     null.String `db:"comments"`
	CreatedAt    null.Time   `db:"created_at"`
}

type projectRepository struct {
	db *sqlx.DB
}

var _ project.Repository = (*projectRepository)(nil) // interface compliance check

func NewProjectRepository(db *sql.DB, conf *core.Config) project.Repository {
	return &projectRepository{db: sqlx.NewDb(db, conf.Database.Engine)}
}

func (repo *projectRepository) CreateProject(ctx context.Context, prj project.Project) (project.Project, error) {
	if prj.ID == "" {
		prj.ID = uuid.New().String()
	}
	query := `
		INSERT INTO project (id, title, description, project_type, difficulty_level, status, industry_name,
		                     representative_id, start_date, end_date, max_groups, max_students_per_group,
		                     required_skills, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := repo.db.ExecContext(ctx, query,
		prj.ID, prj.Title, prj.Description, prj.ProjectType, prj.DifficultyLevel, prj.Status, prj.IndustryName,
		prj.RepresentativeID, prj.Duration.StartDate, prj.Duration.EndDate, prj.MaxGroups, prj.MaxStudentsPerGroup,
		pq.StringArray(prj.RequiredSkills), prj.CreatedAt, prj.UpdatedAt,
	)
	if err != nil {
		return project.Project{}, errors.Wrap(err, "creating project")
	}
	return prj, nil
}

func (repo *projectRepository) GetProject(ctx context.Context, id string) (project.Project, error) {
	var dp dbProject
	err := repo.db.GetContext(ctx, &dp, "SELECT * FROM project WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return project.Project{}, project.ErrNotFound
	}
	if err != nil {
		return project.Project{}, errors.Wrap(err, "getting project")
	}
	return dp.toProject(), nil
}

func (repo *projectRepository) QueryProjects(ctx context.Context, filter *project.QueryFilter, ordering []core.DBOrdering) ([]project.Project, error) {
	query := "SELECT * FROM project"
	var clauses []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			clauses = append(clauses, fmt.Sprintf("(title ILIKE %[1]s OR description ILIKE %[1]s OR industry_name ILIKE %[1]s)", p))
		}
		if filter.Status != "" {
			clauses = append(clauses, fmt.Sprintf("status = %s", arg(filter.Status)))
		}
		if filter.ProjectType != "" {
			clauses = append(clauses, fmt.Sprintf("project_type = %s", arg(filter.ProjectType)))
		}
		if filter.Representative != "" {
			clauses = append(clauses, fmt.Sprintf("representative_id = %s", arg(filter.Representative)))
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += orderBy(ordering, "created_at DESC", projectSortable)

	var dps []dbProject
	if err := repo.db.SelectContext(ctx, &dps, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying projects")
	}
	prjs := make([]project.Project, 0, len(dps))
	for _, dp := range dps {
		prjs = append(prjs, dp.toProject())
	}
	return prjs, nil
}

func (repo *projectRepository) UpdateProject(ctx context.Context, prj project.Project) (project.Project, error) {
	query := `
		UPDATE project
		SET title = $2, description = $3, project_type = $4, difficulty_level = $5, status = $6,
		    industry_name = $7, start_date = $8, end_date = $9, max_groups = $10,
		    max_students_per_group = $11, required_skills = $12, updated_at = $13
		WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query,
		prj.ID, prj.Title, prj.Description, prj.ProjectType, prj.DifficultyLevel, prj.Status,
		prj.IndustryName, prj.Duration.StartDate, prj.Duration.EndDate, prj.MaxGroups,
		prj.MaxStudentsPerGroup, pq.StringArray(prj.RequiredSkills), prj.UpdatedAt,
	)
	if err != nil {
		return project.Project{}, errors.Wrap(err, "updating project")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return project.Project{}, project.ErrNotFound
	}
	return prj, nil
}

func (repo *projectRepository) CreateApproval(ctx context.Context, apr project.Approval) (project.Approval, error) {
	if apr.ID == "" {
		apr.ID = uuid.New().String()
	}
	query := `
		INSERT INTO approval (id, project_id, teacher_id, full_name, university, status, comments, action_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.db.ExecContext(ctx, query,
		apr.ID, apr.ProjectID, apr.TeacherID, apr.FullName, apr.University, apr.Status, apr.Comments,
		apr.ActionAt, apr.CreatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "approval_project_teacher_key"):
			return project.Approval{}, project.ErrApprovalExists
		case isUniqueViolation(err, "approval_project_university_key"):
			return project.Approval{}, project.ErrUniversityDecided
		}
		return project.Approval{}, errors.Wrap(err, "creating approval")
	}
	return apr, nil
}

func (repo *projectRepository) UpdateApproval(ctx context.Context, apr project.Approval) (project.Approval, error) {
	query := "UPDATE approval SET status = $2, comments = $3, action_at = $4 WHERE id = $1"
	res, err := repo.db.ExecContext(ctx, query, apr.ID, apr.Status, apr.Comments, apr.ActionAt)
	if err != nil {
		return project.Approval{}, errors.Wrap(err, "updating approval")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return project.Approval{}, project.ErrApprovalNotFound
	}
	return apr, nil
}

func (repo *projectRepository) GetApproval(ctx context.Context, projectID, teacherID string) (project.Approval, error) {
	var da dbApproval
	err := repo.db.GetContext(ctx, &da, "SELECT * FROM approval WHERE project_id = $1 AND teacher_id = $2", projectID, teacherID)
	if err == sql.ErrNoRows {
		return project.Approval{}, project.ErrApprovalNotFound
	}
	if err != nil {
		return project.Approval{}, errors.Wrap(err, "getting approval")
	}
	return da.toApproval(), nil
}

func (repo *projectRepository) GetUniversityApproval(ctx context.Context, projectID, university string) (project.Approval, error) {
	var da dbApproval
	err := repo.db.GetContext(ctx, &da, "SELECT * FROM approval WHERE project_id = $1 AND university ILIKE $2", projectID, university)
	if err == sql.ErrNoRows {
		return project.Approval{}, project.ErrApprovalNotFound
	}
	if err != nil {
		return project.Approval{}, errors.Wrap(err, "getting university approval")
	}
	return da.toApproval(), nil
}

func (repo *projectRepository) QueryApprovals(ctx context.Context, projectID string) ([]project.Approval, error) {
	var das []dbApproval
	err := repo.db.SelectContext(ctx, &das, "SELECT * FROM approval WHERE project_id = $1 ORDER BY created_at", projectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying approvals")
	}
	aprs := make([]project.Approval, 0, len(das))
	for _, da := range das {
		aprs = append(aprs, da.toApproval())
	}
	return aprs, nil
}

func (repo *projectRepository) CreateSupervision(ctx context.Context, sup project.Supervision) (project.Supervision, error) {
	if sup.ID == "" {
		sup.ID = uuid.New().String()
	}
	query := `
		INSERT INTO supervision (id, project_id, teacher_id, full_name, email, university,
		                         response_status, response_comments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := repo.db.ExecContext(ctx, query,
		sup.ID, sup.ProjectID, sup.TeacherID, sup.FullName, sup.Email, sup.University,
		sup.ResponseFromInd.Status, sup.ResponseFromInd.Comments, sup.CreatedAt, sup.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "supervision_project_teacher_key") {
			return project.Supervision{}, project.ErrSupervisionExists
		}
		return project.Supervision{}, errors.Wrap(err, "creating supervision")
	}
	return sup, nil
}

func (repo *projectRepository) GetSupervision(ctx context.Context, projectID, teacherID string) (project.Supervision, error) {
	var ds dbSupervision
	err := repo.db.GetContext(ctx, &ds, "SELECT * FROM supervision WHERE project_id = $1 AND teacher_id = $2", projectID, teacherID)
	if err == sql.ErrNoRows {
		return project.Supervision{}, project.ErrSupervisionNotFound
	}
	if err != nil {
		return project.Supervision{}, errors.Wrap(err, "getting supervision")
	}
	return ds.toSupervision(), nil
}

func (repo *projectRepository) QuerySupervisions(ctx context.Context, projectID string) ([]project.Supervision, error) {
	var dss []dbSupervision
	err := repo.db.SelectContext(ctx, &dss, "SELECT * FROM supervision WHERE project_id = $1 ORDER BY created_at", projectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying supervisions")
	}
	sups := make([]project.Supervision, 0, len(dss))
	for _, ds := range dss {
		sups = append(sups, ds.toSupervision())
	}
	return sups, nil
}

// ApproveSupervision relies on the partial unique index on approved
// supervisions to reject a second approval atomically.
func (repo *projectRepository) ApproveSupervision(ctx context.Context, projectID, teacherID, comments string) (project.Supervision, error) {
	query := `
		UPDATE supervision
		SET response_status = $3, response_comments = $4, updated_at = $5
		WHERE project_id = $1 AND teacher_id = $2
		RETURNING *`
	var ds dbSupervision
	err := repo.db.GetContext(ctx, &ds, query, projectID, teacherID, project.ResponseApproved, comments, time.Now().UTC())
	if err == sql.ErrNoRows {
		return project.Supervision{}, project.ErrSupervisionNotFound
	}
	if err != nil {
		if isUniqueViolation(err, "supervision_single_approved_idx") {
			return project.Supervision{}, project.ErrSupervisorTaken
		}
		return project.Supervision{}, errors.Wrap(err, "approving supervision")
	}
	return ds.toSupervision(), nil
}

func (repo *projectRepository) UpdateSupervisionResponse(ctx context.Context, projectID, teacherID, status, comments string) (project.Supervision, error) {
	query := `
		UPDATE supervision
		SET response_status = $3, response_comments = $4, updated_at = $5
		WHERE project_id = $1 AND teacher_id = $2
		RETURNING *`
	var ds dbSupervision
	err := repo.db.GetContext(ctx, &ds, query, projectID, teacherID, status, comments, time.Now().UTC())
	if err == sql.ErrNoRows {
		return project.Supervision{}, project.ErrSupervisionNotFound
	}
	if err != nil {
		return project.Supervision{}, errors.Wrap(err, "updating supervision response")
	}
	return ds.toSupervision(), nil
}

func (repo *projectRepository) DeleteSupervision(ctx context.Context, projectID, teacherID string) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM supervision WHERE project_id = $1 AND teacher_id = $2", projectID, teacherID)
	if err != nil {
		return errors.Wrap(err, "deleting supervision")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return project.ErrSupervisionNotFound
	}
	return nil
}

func (repo *projectRepository) CreateSelection(ctx context.Context, sel project.Group) (project.Group, error) {
	if sel.ID == "" {
		sel.ID = uuid.New().String()
	}
	query := `
		INSERT INTO selection (id, project_id, group_leader, group_members, is_completed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := repo.db.ExecContext(ctx, query,
		sel.ID, sel.ProjectID, sel.GroupLeader, pq.StringArray(sel.GroupMembers), sel.IsCompleted, sel.CreatedAt)
	if err != nil {
		return project.Group{}, errors.Wrap(err, "creating selection")
	}
	return sel, nil
}

func (repo *projectRepository) QuerySelections(ctx context.Context, projectID string) ([]project.Group, error) {
	var dss []dbSelection
	err := repo.db.SelectContext(ctx, &dss, "SELECT * FROM selection WHERE project_id = $1 ORDER BY created_at", projectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying selections")
	}
	sels := make([]project.Group, 0, len(dss))
	for _, ds := range dss {
		sels = append(sels, project.Group{
			ID:           ds.ID,
			ProjectID:    ds.ProjectID,
			GroupLeader:  ds.GroupLeader.String,
			GroupMembers: ds.GroupMembers,
			IsCompleted:  ds.IsCompleted,
			CreatedAt:    ds.CreatedAt.Time,
		})
	}
	return sels, nil
}

func (repo *projectRepository) CreateSubmission(ctx context.Context, sub project.Submission) (project.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	query := `
		INSERT INTO submission (id, project_id, selection_id, title, file_url, submitted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, query,
		sub.ID, sub.ProjectID, null.NewString(sub.SelectionID, sub.SelectionID != ""),
		sub.Title, sub.FileURL, sub.SubmittedBy, sub.CreatedAt)
	if err != nil {
		return project.Submission{}, errors.Wrap(err, "creating submission")
	}
	return sub, nil
}

func (repo *projectRepository) QuerySubmissions(ctx context.Context, projectID string) ([]project.Submission, error) {
	var dss []dbSubmission
	err := repo.db.SelectContext(ctx, &dss, "SELECT * FROM submission WHERE project_id = $1 ORDER BY created_at", projectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]project.Submission, 0, len(dss))
	for _, ds := range dss {
		subs = append(subs, project.Submission{
			ID:          ds.ID,
			ProjectID:   ds.ProjectID,
			SelectionID: ds.SelectionID.String,
			Title:       ds.Title.String,
			FileURL:     ds.FileURL.String,
			SubmittedBy: ds.SubmittedBy.String,
			CreatedAt:   ds.CreatedAt.Time,
		})
	}
	return subs, nil
}

func (repo *projectRepository) CreateReview(ctx context.Context, rev project.Review) (project.Review, error) {
	if rev.ID == "" {
		rev.ID = uuid.New().String()
	}
	query := `
		INSERT INTO review (id, project_id, submission_id, reviewer_id, rating, comments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, query,
		rev.ID, rev.ProjectID, null.NewString(rev.SubmissionID, rev.SubmissionID != ""),
		null.NewString(rev.ReviewerID, rev.ReviewerID != ""), rev.Rating, rev.Comments, rev.CreatedAt)
	if err != nil {
		return project.Review{}, errors.Wrap(err, "creating review")
	}
	return rev, nil
}

func (repo *projectRepository) QueryReviews(ctx context.Context, projectID string) ([]project.Review, error) {
	var drs []dbReview
	err := repo.db.SelectContext(ctx, &drs, "SELECT * FROM review WHERE project_id = $1 ORDER BY created_at", projectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying reviews")
	}
	revs := make([]project.Review, 0, len(drs))
	for _, dr := range drs {
		revs = append(revs, project.Review{
			ID:           dr.ID,
			ProjectID:    dr.ProjectID,
			SubmissionID: dr.SubmissionID.String,
			ReviewerID:   dr.ReviewerID.String,
			Rating:       int(dr.Rating.Int),
			Comments:     dr.Comments.String,
			CreatedAt:    dr.CreatedAt.Time,
		})
	}
	return revs, nil
}
