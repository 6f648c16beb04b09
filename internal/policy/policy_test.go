package policy

import (
	"testing"

	"github.com/acme/enrollment/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	student := &models.User{ID: 1, Role: models.RoleStudent}
	teacher := &models.User{ID: 2, Role: models.RoleTeacher}
	admin := &models.User{ID: 3, Role: models.RoleAdmin}
	bogus := &models.User{ID: 4, Role: "janitor"}

	tests := []struct {
		name string
		user *models.User
		act  Action
		res  Resource
		want bool
	}{
		{"student views courses", student, ViewCourses, Any, true},
		{"student enrolls self", student, Enroll, Resource{OwnerID: 1}, true},
		{"student enrolls someone else", student, Enroll, Resource{OwnerID: 9}, false},
		{"student drops own enrollment", student, Drop, Resource{OwnerID: 1}, true},
		{"student drops another's enrollment", student, Drop, Resource{OwnerID: 2}, false},
		{"student grades", student, UpdateGrade, Resource{OwnerID: 1}, false},
		{"student administers", student, Administer, Any, false},

		{"teacher grades own course", teacher, UpdateGrade, Resource{OwnerID: 2}, true},
		{"teacher grades another course", teacher, UpdateGrade, Resource{OwnerID: 7}, false},
		{"teacher views taught courses", teacher, ViewTaughtCourses, Any, true},
		{"teacher enrolls", teacher, Enroll, Resource{OwnerID: 2}, false},
		{"teacher drops", teacher, Drop, Resource{OwnerID: 2}, false},
		{"teacher administers", teacher, Administer, Any, false},

		{"admin administers", admin, Administer, Any, true},
		{"admin has no student dashboard", admin, ViewOwnEnrollments, Any, false},
		{"admin has no teacher dashboard", admin, ViewTaughtCourses, Any, false},
		{"admin cannot grade", admin, UpdateGrade, Resource{OwnerID: 3}, false},

		{"unknown role", bogus, ViewCourses, Any, false},
		{"anonymous", nil, ViewCourses, Any, false},
		{"unsaved user", &models.User{Role: models.RoleAdmin}, Administer, Any, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.user, tt.act, tt.res))
		})
	}
}
