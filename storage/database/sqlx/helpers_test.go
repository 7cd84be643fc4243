package sqlxrepos

import (
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/fyplink/backend/core"
)

func Test_orderBy(t *testing.T) {
	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     string
	}{
		{name: "empty falls back to default", want: " ORDER BY created_at DESC"},
		{
			name:     "sortable columns pass through",
			ordering: []core.DBOrdering{{Field: "username", Ascending: true}, {Field: "created_at"}},
			want:     " ORDER BY username ASC, created_at DESC",
		},
		{
			name:     "unknown column is dropped",
			ordering: []core.DBOrdering{{Field: "password_hash"}, {Field: "email", Ascending: true}},
			want:     " ORDER BY email ASC",
		},
		{
			name:     "injection attempt falls back to default",
			ordering: []core.DBOrdering{{Field: "created_at; DROP TABLE \"user\"; --"}},
			want:     " ORDER BY created_at DESC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderBy(tt.ordering, "created_at DESC", userSortable))
		})
	}
}

func Test_isUniqueViolation(t *testing.T) {
	uniqueErr := &pq.Error{Code: "23505", Constraint: "approval_project_teacher_key"}

	assert.True(t, isUniqueViolation(uniqueErr))
	assert.True(t, isUniqueViolation(uniqueErr, "approval_project_teacher_key"))
	assert.True(t, isUniqueViolation(errors.Wrap(uniqueErr, "creating approval"), "approval_project_teacher_key"))
	assert.False(t, isUniqueViolation(uniqueErr, "approval_project_university_key"))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("not a pq error")))
}
