// Package policy decides whether a user may perform an action on a resource.
package policy

import "github.com/acme/enrollment/internal/models"

type Action string

const (
	ViewCourses        Action = "courses:view"
	ViewOwnEnrollments Action = "enrollments:view-own"
	Enroll             Action = "enrollments:enroll"
	Drop               Action = "enrollments:drop"
	ViewTaughtCourses  Action = "courses:view-taught"
	UpdateGrade        Action = "enrollments:grade"
	Administer         Action = "admin:crud"
)

// Resource carries the ownership of the record an action targets. OwnerID is
// the student of an enrollment for Drop, the course teacher for UpdateGrade.
// A zero OwnerID asks only whether the role may perform the action at all.
type Resource struct {
	OwnerID uint
}

var Any = Resource{}

var grants = map[models.UserRole]map[Action]bool{
	models.RoleStudent: {
		ViewCourses:        true,
		ViewOwnEnrollments: true,
		Enroll:             true,
		Drop:               true,
	},
	models.RoleTeacher: {
		ViewTaughtCourses: true,
		UpdateGrade:       true,
	},
	models.RoleAdmin: {
		Administer: true,
	},
}

// owned lists actions restricted to records the user owns.
var owned = map[Action]bool{
	ViewOwnEnrollments: true,
	Enroll:             true,
	Drop:               true,
	ViewTaughtCourses:  true,
	UpdateGrade:        true,
}

func Authorize(u *models.User, a Action, r Resource) bool {
	if u == nil || u.ID == 0 {
		return false
	}
	if !grants[u.Role][a] {
		return false
	}
	if owned[a] && r.OwnerID != 0 && r.OwnerID != u.ID {
		return false
	}
	return true
}
