package handlers

import (
	"errors"

	"github.com/acme/enrollment/internal/enrollment"

	"github.com/gin-gonic/gin"
)

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, enrollment.ErrCourseFull):
		return "course_full"
	case errors.Is(err, enrollment.ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, enrollment.ErrNotFound):
		return "not_found"
	case errors.Is(err, enrollment.ErrForbidden):
		return "forbidden"
	case errors.Is(err, enrollment.ErrMalformedInput):
		return "malformed"
	}
	return "error"
}

// Enroll handles POST /enroll/:courseId.
func (h *Handler) Enroll(c *gin.Context) {
	defer redirect(c, "/dashboard")

	courseID, ok := paramID(c, "courseId")
	if !ok {
		flash(c, "Course not found")
		return
	}

	_, err := h.engine.Enroll(c.Request.Context(), currentUser(c), courseID)
	h.metrics.Operation("enroll", result(err))
	switch {
	case err == nil:
	case errors.Is(err, enrollment.ErrCourseFull):
		flash(c, "Course is full")
	case errors.Is(err, enrollment.ErrAlreadyEnrolled):
		flash(c, "You are already enrolled in this course")
	case errors.Is(err, enrollment.ErrNotFound):
		flash(c, "Course not found")
	case errors.Is(err, enrollment.ErrForbidden):
	default:
		h.log.Error("enroll", "course_id", courseID, "err", err)
		flash(c, "Something went wrong. Please try again.")
	}
}

// UpdateGrade handles POST /update_grade/:enrollmentId. A grade that is not
// a whole number is ignored without telling the caller.
func (h *Handler) UpdateGrade(c *gin.Context) {
	defer redirect(c, "/dashboard")

	id, ok := paramID(c, "enrollmentId")
	if !ok {
		flash(c, "Enrollment not found")
		return
	}

	err := h.engine.UpdateGrade(c.Request.Context(), currentUser(c), id, c.PostForm("grade"))
	h.metrics.Operation("update_grade", result(err))
	switch {
	case err == nil:
	case errors.Is(err, enrollment.ErrMalformedInput):
		h.log.Debug("grade ignored", "enrollment_id", id, "err", err)
	case errors.Is(err, enrollment.ErrNotFound):
		flash(c, "Enrollment not found")
	case errors.Is(err, enrollment.ErrForbidden):
	default:
		h.log.Error("update grade", "enrollment_id", id, "err", err)
		flash(c, "Something went wrong. Please try again.")
	}
}

// DropClass handles POST /drop_class/:enrollmentId.
func (h *Handler) DropClass(c *gin.Context) {
	defer redirect(c, "/dashboard")

	id, ok := paramID(c, "enrollmentId")
	if !ok {
		flash(c, "Enrollment not found")
		return
	}

	err := h.engine.Drop(c.Request.Context(), currentUser(c), id)
	h.metrics.Operation("drop", result(err))
	switch {
	case err == nil:
	case errors.Is(err, enrollment.ErrNotFound):
		flash(c, "Enrollment not found")
	case errors.Is(err, enrollment.ErrForbidden):
	default:
		h.log.Error("drop", "enrollment_id", id, "err", err)
		flash(c, "Something went wrong. Please try again.")
	}
}
