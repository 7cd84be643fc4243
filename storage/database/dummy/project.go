package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fyplink/backend/core"
	"github.com/fyplink/backend/core/project"
)

type projectRepository struct {
	db *projectTable
}

var _ project.Repository = (*projectRepository)(nil) // interface compliance check

func NewProjectRepository(db *DB) project.Repository {
	return &projectRepository{db: db.project}
}

func (repo *projectRepository) CreateProject(_ context.Context, prj project.Project) (project.Project, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if prj.ID == "" {
		prj.ID = uuid.New().String()
	}
	repo.db.projects[prj.ID] = &prj
	return prj, nil
}

func (repo *projectRepository) GetProject(_ context.Context, id string) (project.Project, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if prj, ok := repo.db.projects[id]; ok {
		return *prj, nil
	}
	return project.Project{}, project.ErrNotFound
}

func (repo *projectRepository) QueryProjects(_ context.Context, filter *project.QueryFilter, _ []core.DBOrdering) ([]project.Project, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	prjs := make([]project.Project, 0, len(repo.db.projects))
	for _, prj := range repo.db.projects {
		if filter != nil && !matchProject(*prj, filter) {
			continue
		}
		prjs = append(prjs, *prj)
	}
	sort.Slice(prjs, func(i, j int) bool { return prjs[i].CreatedAt.After(prjs[j].CreatedAt) })
	return prjs, nil
}

func matchProject(prj project.Project, filter *project.QueryFilter) bool {
	if filter.Search != "" {
		kw := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(prj.Title), kw) &&
			!strings.Contains(strings.ToLower(prj.Description), kw) &&
			!strings.Contains(strings.ToLower(prj.IndustryName), kw) {
			return false
		}
	}
	if filter.Status != "" && prj.Status != filter.Status {
		return false
	}
	if filter.ProjectType != "" && prj.ProjectType != filter.ProjectType {
		return false
	}
	if filter.Representative != "" && !strings.EqualFold(prj.RepresentativeID, filter.Representative) {
		return false
	}
	return true
}

func (repo *projectRepository) UpdateProject(_ context.Context, prj project.Project) (project.Project, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.projects[prj.ID]; !ok {
		return project.Project{}, project.ErrNotFound
	}
	repo.db.projects[prj.ID] = &prj
	return prj, nil
}

func (repo *projectRepository) CreateApproval(_ context.Context, apr project.Approval) (project.Approval, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, a := range repo.db.approvals {
		if a.ProjectID != apr.ProjectID {
			continue
		}
		if a.TeacherID == apr.TeacherID {
			return project.Approval{}, project.ErrApprovalExists
		}
		if strings.EqualFold(a.University, apr.University) {
			return project.Approval{}, project.ErrUniversityDecided
		}
	}

	if apr.ID == "" {
		apr.ID = uuid.New().String()
	}
	repo.db.approvals[apr.ID] = &apr
	return apr, nil
}

func (repo *projectRepository) UpdateApproval(_ context.Context, apr project.Approval) (project.Approval, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.approvals[apr.ID]
	if !ok {
		return project.Approval{}, project.ErrApprovalNotFound
	}
	orig.Status = apr.Status
	orig.Comments = apr.Comments
	orig.ActionAt = apr.ActionAt
	return *orig, nil
}

func (repo *projectRepository) GetApproval(_ context.Context, projectID, teacherID string) (project.Approval, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, a := range repo.db.approvals {
		if a.ProjectID == projectID && a.TeacherID == teacherID {
			return *a, nil
		}
	}
	return project.Approval{}, project.ErrApprovalNotFound
}

func (repo *projectRepository) GetUniversityApproval(_ context.Context, projectID, university string) (project.Approval, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, a := range repo.db.approvals {
		if a.ProjectID == projectID && strings.EqualFold(a.University, university) {
			return *a, nil
		}
	}
	return project.Approval{}, project.ErrApprovalNotFound
}

func (repo *projectRepository) QueryApprovals(_ context.Context, projectID string) ([]project.Approval, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var aprs []project.Approval
	for _, a := range repo.db.approvals {
		if a.ProjectID == projectID {
			aprs = append(aprs, *a)
		}
	}
	sort.Slice(aprs, func(i, j int) bool { return aprs[i].CreatedAt.Before(aprs[j].CreatedAt) })
	return aprs, nil
}

func (repo *projectRepository) CreateSupervision(_ context.Context, sup project.Supervision) (project.Supervision, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, s := range repo.db.supervisions {
		if s.ProjectID == sup.ProjectID && s.TeacherID == sup.TeacherID {
			return project.Supervision{}, project.ErrSupervisionExists
		}
	}

	if sup.ID == "" {
		sup.ID = uuid.New().String()
	}
	repo.db.supervisions[sup.ID] = &sup
	return sup, nil
}

func (repo *projectRepository) GetSupervision(_ context.Context, projectID, teacherID string) (project.Supervision, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sup := repo.getSupervision(projectID, teacherID); sup != nil {
		return *sup, nil
	}
	return project.Supervision{}, project.ErrSupervisionNotFound
}

func (repo *projectRepository) getSupervision(projectID, teacherID string) *project.Supervision {
	for _, s := range repo.db.supervisions {
		if s.ProjectID == projectID && s.TeacherID == teacherID {
			return s
		}
	}
	return nil
}

func (repo *projectRepository) QuerySupervisions(_ context.Context, projectID string) ([]project.Supervision, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var sups []project.Supervision
	for _, s := range repo.db.supervisions {
		if s.ProjectID == projectID {
			sups = append(sups, *s)
		}
	}
	sort.Slice(sups, func(i, j int) bool { return sups[i].CreatedAt.Before(sups[j].CreatedAt) })
	return sups, nil
}

func (repo *projectRepository) ApproveSupervision(_ context.Context, projectID, teacherID, comments string) (project.Supervision, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// at most one approved supervision per project
	for _, s := range repo.db.supervisions {
		if s.ProjectID == projectID && s.Approved() && s.TeacherID != teacherID {
			return project.Supervision{}, project.ErrSupervisorTaken
		}
	}
	sup := repo.getSupervision(projectID, teacherID)
	if sup == nil {
		return project.Supervision{}, project.ErrSupervisionNotFound
	}
	sup.ResponseFromInd = project.IndustryResponse{Status: project.ResponseApproved, Comments: comments}
	sup.UpdatedAt = time.Now().UTC()
	return *sup, nil
}

func (repo *projectRepository) UpdateSupervisionResponse(_ context.Context, projectID, teacherID, status, comments string) (project.Supervision, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sup := repo.getSupervision(projectID, teacherID)
	if sup == nil {
		return project.Supervision{}, project.ErrSupervisionNotFound
	}
	sup.ResponseFromInd = project.IndustryResponse{Status: status, Comments: comments}
	sup.UpdatedAt = time.Now().UTC()
	return *sup, nil
}

func (repo *projectRepository) DeleteSupervision(_ context.Context, projectID, teacherID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, s := range repo.db.supervisions {
		if s.ProjectID == projectID && s.TeacherID == teacherID {
			delete(repo.db.supervisions, id)
			return nil
		}
	}
	return project.ErrSupervisionNotFound
}

func (repo *projectRepository) CreateSelection(_ context.Context, sel project.Group) (project.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if sel.ID == "" {
		sel.ID = uuid.New().String()
	}
	repo.db.selections[sel.ID] = &sel
	return sel, nil
}

func (repo *projectRepository) QuerySelections(_ context.Context, projectID string) ([]project.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var sels []project.Group
	for _, s := range repo.db.selections {
		if s.ProjectID == projectID {
			sels = append(sels, *s)
		}
	}
	sort.Slice(sels, func(i, j int) bool { return sels[i].CreatedAt.Before(sels[j].CreatedAt) })
	return sels, nil
}

func (repo *projectRepository) CreateSubmission(_ context.Context, sub project.Submission) (project.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *projectRepository) QuerySubmissions(_ context.Context, projectID string) ([]project.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var subs []project.Submission
	for _, s := range repo.db.submissions {
		if s.ProjectID == projectID {
			subs = append(subs, *s)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}

func (repo *projectRepository) CreateReview(_ context.Context, rev project.Review) (project.Review, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if rev.ID == "" {
		rev.ID = uuid.New().String()
	}
	repo.db.reviews[rev.ID] = &rev
	return rev, nil
}

func (repo *projectRepository) QueryReviews(_ context.Context, projectID string) ([]project.Review, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var revs []project.Review
	for _, r := range repo.db.reviews {
		if r.ProjectID == projectID {
			revs = append(revs, *r)
		}
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i].CreatedAt.Before(revs[j].CreatedAt) })
	return revs, nil
}
