package dummydb

import (
	"sync"

	"github.com/fyplink/backend/core/project"
	"github.com/fyplink/backend/core/user"
)

type (
	DB struct {
		user    *userTable
		project *projectTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	projectTable struct {
		sync.RWMutex
		projects     map[string]*project.Project
		approvals    map[string]*project.Approval
		supervisions map[string]*project.Supervision
		selections   map[string]*project.Group
		submissions  map[string]*project.Submission
		reviews      map[string]*project.Review
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		project: &projectTable{
			projects:     make(map[string]*project.Project),
			approvals:    make(map[string]*project.Approval),
			supervisions: make(map[string]*project.Supervision),
			selections:   make(map[string]*project.Group),
			submissions:  make(map[string]*project.Submission),
			reviews:      make(map[string]*project.Review),
		},
	}
	return db, nil
}
