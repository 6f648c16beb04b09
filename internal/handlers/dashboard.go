package handlers

import (
	"net/http"

	"github.com/acme/enrollment/internal/models"
	"github.com/acme/enrollment/internal/policy"

	"github.com/gin-gonic/gin"
)

type courseCard struct {
	models.Course
	Enrolled int64
	Full     bool
	Mine     bool
}

type classRoster struct {
	Course      models.Course
	Enrollments []models.Enrollment
}

// Dashboard shows the role-specific home page. Administrators have none and
// go to the console.
func (h *Handler) Dashboard(c *gin.Context) {
	u := currentUser(c)
	switch {
	case policy.Authorize(u, policy.ViewOwnEnrollments, policy.Any):
		h.studentDashboard(c, u)
	case policy.Authorize(u, policy.ViewTaughtCourses, policy.Any):
		h.teacherDashboard(c, u)
	case policy.Authorize(u, policy.Administer, policy.Any):
		redirect(c, "/admin")
	default:
		redirect(c, "/logout")
	}
}

func (h *Handler) studentDashboard(c *gin.Context, u *models.User) {
	ctx := c.Request.Context()

	enrollments, err := h.engine.ForStudent(ctx, u.ID)
	if err != nil {
		h.internalError(c, "load enrollments", err)
		return
	}
	courses, err := h.engine.Courses(ctx)
	if err != nil {
		h.internalError(c, "load courses", err)
		return
	}
	counts, err := h.engine.Counts(ctx)
	if err != nil {
		h.internalError(c, "count enrollments", err)
		return
	}

	mine := make(map[uint]bool, len(enrollments))
	for _, en := range enrollments {
		mine[en.CourseID] = true
	}
	cards := make([]courseCard, 0, len(courses))
	for _, course := range courses {
		n := counts[course.ID]
		cards = append(cards, courseCard{
			Course:   course,
			Enrolled: n,
			Full:     n >= int64(course.Capacity),
			Mine:     mine[course.ID],
		})
	}

	render(c, http.StatusOK, "student_dashboard.html", gin.H{
		"Title":       "Dashboard",
		"enrollments": enrollments,
		"courses":     cards,
	})
}

func (h *Handler) teacherDashboard(c *gin.Context, u *models.User) {
	ctx := c.Request.Context()

	courses, err := h.engine.TaughtBy(ctx, u.ID)
	if err != nil {
		h.internalError(c, "load taught courses", err)
		return
	}
	ids := make([]uint, 0, len(courses))
	for _, course := range courses {
		ids = append(ids, course.ID)
	}
	roster, err := h.engine.Roster(ctx, ids)
	if err != nil {
		h.internalError(c, "load roster", err)
		return
	}

	classes := make([]classRoster, 0, len(courses))
	for _, course := range courses {
		classes = append(classes, classRoster{Course: course, Enrollments: roster[course.ID]})
	}

	render(c, http.StatusOK, "teacher_dashboard.html", gin.H{
		"Title":   "Dashboard",
		"courses": classes,
	})
}
