package enrollment

import (
	"context"

	"github.com/acme/enrollment/internal/models"
)

// ForStudent lists a student's enrollments with course and teacher loaded.
func (e *Engine) ForStudent(ctx context.Context, studentID uint) ([]models.Enrollment, error) {
	var list []models.Enrollment
	err := e.db.WithContext(ctx).
		Preload("Course.Teacher").
		Where("student_id = ?", studentID).
		Order("id asc").
		Find(&list).Error
	return list, err
}

// Roster lists the enrollments of the given courses with students loaded,
// grouped by course id.
func (e *Engine) Roster(ctx context.Context, courseIDs []uint) (map[uint][]models.Enrollment, error) {
	out := make(map[uint][]models.Enrollment, len(courseIDs))
	if len(courseIDs) == 0 {
		return out, nil
	}

	var list []models.Enrollment
	if err := e.db.WithContext(ctx).
		Preload("Student").
		Where("course_id IN ?", courseIDs).
		Order("course_id asc, id asc").
		Find(&list).Error; err != nil {
		return nil, err
	}
	for _, en := range list {
		out[en.CourseID] = append(out[en.CourseID], en)
	}
	return out, nil
}

// Counts returns the number of enrollments per course id.
func (e *Engine) Counts(ctx context.Context) (map[uint]int64, error) {
	var rows []struct {
		CourseID uint
		N        int64
	}
	if err := e.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Select("course_id, COUNT(*) AS n").
		Group("course_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.CourseID] = r.N
	}
	return out, nil
}

// Courses lists every course with its teacher.
func (e *Engine) Courses(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	err := e.db.WithContext(ctx).Preload("Teacher").Order("name asc").Find(&courses).Error
	return courses, err
}

// TaughtBy lists the courses owned by a teacher.
func (e *Engine) TaughtBy(ctx context.Context, teacherID uint) ([]models.Course, error) {
	var courses []models.Course
	err := e.db.WithContext(ctx).Where("teacher_id = ?", teacherID).Order("name asc").Find(&courses).Error
	return courses, err
}
