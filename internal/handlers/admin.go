package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/acme/enrollment/internal/admin"
	"github.com/acme/enrollment/internal/enrollment"
	"github.com/acme/enrollment/internal/models"

	"github.com/gin-gonic/gin"
)

// userMessage turns a console error into text for the operator. ok is false
// for unexpected errors, which are logged instead.
func userMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, admin.ErrDuplicate),
		errors.Is(err, admin.ErrInUse),
		errors.Is(err, enrollment.ErrCourseFull),
		errors.Is(err, enrollment.ErrAlreadyEnrolled),
		errors.Is(err, enrollment.ErrNotStudent):
		return err.Error(), true
	case errors.Is(err, admin.ErrNotFound), errors.Is(err, enrollment.ErrNotFound):
		return "Record not found", true
	}
	return "", false
}

func (h *Handler) adminFail(c *gin.Context, list string, err error) {
	if msg, ok := userMessage(err); ok {
		flash(c, msg)
		redirect(c, list)
		return
	}
	h.internalError(c, "admin", err)
}

func (h *Handler) AdminIndex(c *gin.Context) {
	sum, err := h.admin.Summary(c.Request.Context(), currentUser(c))
	if err != nil {
		h.internalError(c, "admin summary", err)
		return
	}
	render(c, http.StatusOK, "admin_index.html", gin.H{
		"Title":       "Admin",
		"users":       sum.Users,
		"courses":     sum.Courses,
		"enrollments": sum.Enrollments,
	})
}

//
// USERS
//

type userForm struct {
	Username    string
	Password    string
	Role        string
	DisplayName string
}

func userFormFrom(c *gin.Context) userForm {
	return userForm{
		Username:    strings.TrimSpace(c.PostForm("username")),
		Password:    c.PostForm("password"),
		Role:        strings.TrimSpace(c.PostForm("role")),
		DisplayName: strings.TrimSpace(c.PostForm("display_name")),
	}
}

func (f userForm) input() admin.UserInput {
	return admin.UserInput{
		Username:    f.Username,
		Password:    f.Password,
		Role:        f.Role,
		DisplayName: f.DisplayName,
	}
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	users, err := h.admin.ListUsers(c.Request.Context(), currentUser(c))
	if err != nil {
		h.internalError(c, "list users", err)
		return
	}
	render(c, http.StatusOK, "admin_users.html", gin.H{"Title": "Users", "users": users})
}

func (h *Handler) renderUserForm(c *gin.Context, status int, id uint, form userForm, msg string) {
	action := "/admin/users/new"
	if id != 0 {
		action = fmt.Sprintf("/admin/users/%d/edit", id)
	}
	render(c, status, "admin_user_form.html", gin.H{
		"Title":  "User",
		"id":     id,
		"action": action,
		"form":   form,
		"roles":  models.Roles,
		"error":  msg,
	})
}

func (h *Handler) AdminNewUser(c *gin.Context) {
	h.renderUserForm(c, http.StatusOK, 0, userForm{Role: string(models.RoleStudent)}, "")
}

func (h *Handler) AdminCreateUser(c *gin.Context) {
	form := userFormFrom(c)

	u, err := h.admin.CreateUser(c.Request.Context(), currentUser(c), form.input())
	if err != nil {
		if msg, ok := userMessage(err); ok {
			form.Password = ""
			h.renderUserForm(c, http.StatusBadRequest, 0, form, msg)
			return
		}
		h.internalError(c, "create user", err)
		return
	}

	h.log.Info("user created", "user_id", u.ID, "role", u.Role, "by", currentUser(c).ID)
	redirect(c, "/admin/users")
}

func (h *Handler) AdminEditUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.adminFail(c, "/admin/users", admin.ErrNotFound)
		return
	}
	u, err := h.admin.GetUser(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.adminFail(c, "/admin/users", err)
		return
	}
	h.renderUserForm(c, http.StatusOK, id, userForm{
		Username:    u.Username,
		Role:        string(u.Role),
		DisplayName: u.DisplayName,
	}, "")
}

func (h *Handler) AdminUpdateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.adminFail(c, "/admin/users", admin.ErrNotFound)
		return
	}
	form := userFormFrom(c)

	if _, err := h.admin.UpdateUser(c.Request.Context(), currentUser(c), id, form.input()); err != nil {
		if errors.Is(err, admin.ErrNotFound) {
			h.adminFail(c, "/admin/users", err)
			return
		}
		if msg, ok := userMessage(err); ok {
			form.Password = ""
			h.renderUserForm(c, http.StatusBadRequest, id, form, msg)
			return
		}
		h.internalError(c, "update user", err)
		return
	}
	redirect(c, "/admin/users")
}

func (h *Handler) AdminDeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.adminFail(c, "/admin/users", admin.ErrNotFound)
		return
	}
	if err := h.admin.DeleteUser(c.Request.Context(), currentUser(c), id); err != nil {
		h.adminFail(c, "/admin/users", err)
		return
	}
	h.log.Info("user deleted", "user_id", id, "by", currentUser(c).ID)
	redirect(c, "/admin/users")
}

//
// COURSES
//

// formID parses an id posted by a select field.
func formID(field, raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s: choose an entry from the list", models.ErrValidation, field)
	}
	return uint(id), nil
}

func idText(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// courseForm keeps the raw posted values so a rejected form re-renders as typed.
type courseForm struct {
	Name      string
	TeacherID string
	Time      string
	Capacity  string
}

func courseFormFrom(c *gin.Context) courseForm {
	return courseForm{
		Name:      strings.TrimSpace(c.PostForm("name")),
		TeacherID: c.PostForm("teacher_id"),
		Time:      strings.TrimSpace(c.PostForm("time")),
		Capacity:  c.PostForm("capacity"),
	}
}

func (f courseForm) input() (admin.CourseInput, error) {
	teacherID, err := formID("Teacher", f.TeacherID)
	if err != nil {
		return admin.CourseInput{}, err
	}
	capacity, err := strconv.Atoi(strings.TrimSpace(f.Capacity))
	if err != nil {
		return admin.CourseInput{}, fmt.Errorf("%w: Capacity: must be a whole number", models.ErrValidation)
	}
	return admin.CourseInput{
		Name:      f.Name,
		TeacherID: teacherID,
		Time:      f.Time,
		Capacity:  capacity,
	}, nil
}

func (h *Handler) AdminListCourses(c *gin.Context) {
	courses, err := h.admin.ListCourses(c.Request.Context(), currentUser(c))
	if err != nil {
		h.internalError(c, "list courses", err)
		return
	}
	render(c, http.StatusOK, "admin_courses.html", gin.H{"Title": "Courses", "courses": courses})
}

func (h *Handler) renderCourseForm(c *gin.Context, status int, id uint, form courseForm, msg string) {
	teachers, err := h.admin.Teachers(c.Request.Context(), currentUser(c))
	if err != nil {
		h.internalError(c, "list teachers", err)
		return
	}
	action := "/admin/courses/new"
	if id != 0 {
		action = fmt.Sprintf("/admin/courses/%d/edit", id)
	}
	render(c, status, "admin_course_form.html", gin.H{
		"Title":    "Course",
		"id":       id,
		"action":   action,
		"form":     form,
		"teachers": teachers,
		"error":    msg,
	})
}

func (h *Handler) AdminNewCourse(c *gin.Context) {
	h.renderCourseForm(c, http.StatusOK, 0, courseForm{}, "")
}

func (h *Handler) AdminCreateCourse(c *gin.Context) {
	form := courseFormFrom(c)

	in, err := form.input()
	if err == nil {
		_, err = h.admin.CreateCourse(c.Request.Context(), currentUser(c), in)
	}
	if err != nil {
		if msg, ok := userMessage(err); ok {
			h.renderCourseForm(c, http.StatusBadRequest, 0, form, msg)
			return
		}
		h.internalError(c, "create course", err)
		return
	}
	redirect(c, "/admin/courses")
}

func (h *Handler) AdminEditCourse(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.adminFail(c, "/admin/courses", admin.ErrNotFound)
		return
	}
	course, err := h.admin.GetCourse(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.adminFail(c, "/admin/courses", err)
		return
	}
	h.renderCourseForm(c, http.StatusOK, id, courseForm{
		Name:      course.Name,
		TeacherID: idText(course.TeacherID),
		Time:      course.Time,
		Capacity:  strconv.Itoa(course.Capacity),
	}, "")
}

func (h *Handler) AdminUpdateCourse(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.adminFail(c, "/admin/courses", admin.ErrNotFound)
		return
	}
	form := courseFormFrom(c)

	in, err := form.input()
	if err == nil {
		_, err = h.admin.UpdateCourse(c.Request.Context(), currentUser(c), id, in)
	}
	if err != nil {
		if errors.Is(err, admin.ErrNotFound) {
			h.adminFail(c, "/admin/courses", err)
			return
		}
		if msg, ok := userMessage(err); ok {
			h.renderCourseForm(c, http.StatusBadRequest, id, form, msg)
			return
		}
		h.internalError(c, "update course", err)
		return
	}
	redirect(c, "/admin/courses")
}

func (h *Handler) AdminDeleteCourse(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.adminFail(c, "/admin/courses", admin.ErrNotFound)
		return
	}
	if err := h.admin.DeleteCourse(c.Request.Context(), currentUser(c), id); err != nil {
		h.adminFail(c, "/admin/courses", err)
		return
	}
	redirect(c, "/admin/courses")
}

//
// ENROLLMENTS
//

type enrollmentForm struct {
	CourseID  string
	StudentID string
	Grade     string
}

func enrollmentFormFrom(c *gin.Context) enrollmentForm {
	return enrollmentForm{
		CourseID:  c.PostForm("course_id"),
		StudentID: c.PostForm("student_id"),
		Grade:     c.PostForm("grade"),
	}
}

// input treats a blank grade as "not graded yet".
func (f enrollmentForm) input() (admin.EnrollmentInput, error) {
	var in admin.EnrollmentInput
	var err error
	if in.CourseID, err = formID("Course", f.CourseID); err != nil {
		return in, err
	}
	if in.StudentID, err = formID("Student", f.StudentID); err != nil {
		return in, err
	}
	raw := strings.TrimSpace(f.Grade)
	if raw == "" {
		return in, nil
	}
	g, err := strconv.Atoi(raw)
	if err != nil {
		return in, fmt.Errorf("%w: Grade: must be a whole number", models.ErrValidation)
	}
	in.Grade = &g
	return in, nil
}

func (h *Handler) AdminListEnrollments(c *gin.Context) {
	rows, err := h.admin.ListEnrollments(c.Request.Context(), currentUser(c))
	if err != nil {
		h.internalError(c, "list enrollments", err)
		return
	}
	render(c, http.StatusOK, "admin_enrollments.html", gin.H{"Title": "Enrollments", "enrollments": rows})
}

func (h *Handler) renderEnrollmentForm(c *gin.Context, status int, id uint, form enrollmentForm, msg string) {
	ctx := c.Request.Context()
	u := currentUser(c)

	courses, err := h.admin.ListCourses(ctx, u)
	if err != nil {
		h.internalError(c, "list courses", err)
		return
	}
	students, err := h.admin.Students(ctx, u)
	if err != nil {
		h.internalError(c, "list students", err)
		return
	}
	action := "/admin/enrollments/new"
	if id != 0 {
		action = fmt.Sprintf("/admin/enrollments/%d/edit", id)
	}
	render(c, status, "admin_enrollment_form.html", gin.H{
		"Title":    "Enrollment",
		"id":       id,
		"action":   action,
		"form":     form,
		"courses":  courses,
		"students": students,
		"error":    msg,
	})
}

func (h *Handler) AdminNewEnrollment(c *gin.Context) {
	h.renderEnrollmentForm(c, http.StatusOK, 0, enrollmentForm{}, "")
}

func (h *Handler) AdminCreateEnrollment(c *gin.Context) {
	form := enrollmentFormFrom(c)

	in, err := form.input()
	if err == nil {
		_, err = h.admin.CreateEnrollment(c.Request.Context(), currentUser(c), in)
	}
	h.metrics.Operation("admin_create", result(err))
	if err != nil {
		if msg, ok := userMessage(err); ok {
			h.renderEnrollmentForm(c, http.StatusBadRequest, 0, form, msg)
			return
		}
		h.internalError(c, "create enrollment", err)
		return
	}
	redirect(c, "/admin/enrollments")
}

func (h *Handler) AdminEditEnrollment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.adminFail(c, "/admin/enrollments", admin.ErrNotFound)
		return
	}
	en, err := h.admin.GetEnrollment(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.adminFail(c, "/admin/enrollments", err)
		return
	}
	form := enrollmentForm{CourseID: idText(en.CourseID), StudentID: idText(en.StudentID)}
	if en.Grade != nil {
		form.Grade = strconv.Itoa(*en.Grade)
	}
	h.renderEnrollmentForm(c, http.StatusOK, id, form, "")
}

func (h *Handler) AdminUpdateEnrollment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.adminFail(c, "/admin/enrollments", admin.ErrNotFound)
		return
	}
	form := enrollmentFormFrom(c)

	in, err := form.input()
	if err == nil {
		_, err = h.admin.UpdateEnrollment(c.Request.Context(), currentUser(c), id, in)
	}
	h.metrics.Operation("admin_update", result(err))
	if err != nil {
		if errors.Is(err, enrollment.ErrNotFound) {
			h.adminFail(c, "/admin/enrollments", err)
			return
		}
		if msg, ok := userMessage(err); ok {
			h.renderEnrollmentForm(c, http.StatusBadRequest, id, form, msg)
			return
		}
		h.internalError(c, "update enrollment", err)
		return
	}
	redirect(c, "/admin/enrollments")
}

func (h *Handler) AdminDeleteEnrollment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.adminFail(c, "/admin/enrollments", admin.ErrNotFound)
		return
	}
	if err := h.admin.DeleteEnrollment(c.Request.Context(), currentUser(c), id); err != nil {
		h.adminFail(c, "/admin/enrollments", err)
		return
	}
	redirect(c, "/admin/enrollments")
}
