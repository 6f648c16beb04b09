// Package enrollment owns every write to the enrollments table and enforces
// its two invariants: one enrollment per (student, course), and no more
// enrollments per course than the course capacity.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/acme/enrollment/internal/models"
	"github.com/acme/enrollment/internal/policy"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrCourseFull      = errors.New("course is full")
	ErrAlreadyEnrolled = errors.New("already enrolled in this course")
	ErrNotStudent      = errors.New("user is not a student")
	ErrMalformedInput  = errors.New("malformed input")
)

type Engine struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// Enroll adds the student to the course with no grade.
func (e *Engine) Enroll(ctx context.Context, student *models.User, courseID uint) (uint, error) {
	if student == nil || !policy.Authorize(student, policy.Enroll, policy.Resource{OwnerID: student.ID}) {
		return 0, ErrForbidden
	}

	var en models.Enrollment
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		en, err = insert(tx, student.ID, courseID, nil)
		return err
	})
	if err != nil {
		return 0, err
	}
	return en.ID, nil
}

// Drop deletes the enrollment if it belongs to the requesting student. Any
// grade is discarded with it.
func (e *Engine) Drop(ctx context.Context, student *models.User, enrollmentID uint) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var en models.Enrollment
		if err := tx.First(&en, enrollmentID).Error; err != nil {
			return notFound(err, "enrollment", enrollmentID)
		}
		if !policy.Authorize(student, policy.Drop, policy.Resource{OwnerID: en.StudentID}) {
			return ErrForbidden
		}
		return tx.Delete(&en).Error
	})
}

// UpdateGrade sets the grade of an enrollment in a course the teacher
// teaches. rawGrade must be a non-negative decimal integer; anything else
// returns ErrMalformedInput and changes nothing.
func (e *Engine) UpdateGrade(ctx context.Context, teacher *models.User, enrollmentID uint, rawGrade string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var en models.Enrollment
		if err := tx.First(&en, enrollmentID).Error; err != nil {
			return notFound(err, "enrollment", enrollmentID)
		}
		var course models.Course
		if err := tx.First(&course, en.CourseID).Error; err != nil {
			return notFound(err, "course", en.CourseID)
		}
		if !policy.Authorize(teacher, policy.UpdateGrade, policy.Resource{OwnerID: course.TeacherID}) {
			return ErrForbidden
		}

		grade, err := ParseGrade(rawGrade)
		if err != nil {
			return err
		}
		en.Grade = &grade
		return tx.Omit(clause.Associations).Save(&en).Error
	})
}

// Create inserts an enrollment on behalf of an administrator. It is held to
// the same capacity and uniqueness rules as Enroll.
func (e *Engine) Create(ctx context.Context, admin *models.User, studentID, courseID uint, grade *int) (models.Enrollment, error) {
	if !policy.Authorize(admin, policy.Administer, policy.Any) {
		return models.Enrollment{}, ErrForbidden
	}

	var en models.Enrollment
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		en, err = insert(tx, studentID, courseID, grade)
		return err
	})
	return en, err
}

// Update rewrites an enrollment on behalf of an administrator. Moving it to a
// different student or course re-checks uniqueness and the target course's
// capacity.
func (e *Engine) Update(ctx context.Context, admin *models.User, id, studentID, courseID uint, grade *int) (models.Enrollment, error) {
	if !policy.Authorize(admin, policy.Administer, policy.Any) {
		return models.Enrollment{}, ErrForbidden
	}

	var en models.Enrollment
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&en, id).Error; err != nil {
			return notFound(err, "enrollment", id)
		}

		if en.StudentID != studentID || en.CourseID != courseID {
			course, err := lockCourse(tx, courseID)
			if err != nil {
				return err
			}
			if err := checkStudent(tx, studentID); err != nil {
				return err
			}
			if err := checkSlot(tx, course, studentID, id); err != nil {
				return err
			}
		}

		en.StudentID = studentID
		en.CourseID = courseID
		en.Grade = grade
		return translate(tx.Omit(clause.Associations).Save(&en).Error)
	})
	return en, err
}

// Delete removes any enrollment on behalf of an administrator.
func (e *Engine) Delete(ctx context.Context, admin *models.User, id uint) error {
	if !policy.Authorize(admin, policy.Administer, policy.Any) {
		return ErrForbidden
	}
	res := e.db.WithContext(ctx).Delete(&models.Enrollment{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("enrollment %d: %w", id, ErrNotFound)
	}
	return nil
}

// ParseGrade accepts a non-empty string of ASCII digits. No upper bound is
// enforced.
func ParseGrade(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: empty grade", ErrMalformedInput)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: grade %q is not a whole number", ErrMalformedInput, raw)
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: grade %q: %v", ErrMalformedInput, raw, err)
	}
	return n, nil
}

// insert runs the guarded count+insert. The course row lock makes concurrent
// inserts into the same course take turns.
func insert(tx *gorm.DB, studentID, courseID uint, grade *int) (models.Enrollment, error) {
	course, err := lockCourse(tx, courseID)
	if err != nil {
		return models.Enrollment{}, err
	}
	if err := checkStudent(tx, studentID); err != nil {
		return models.Enrollment{}, err
	}
	if err := checkSlot(tx, course, studentID, 0); err != nil {
		return models.Enrollment{}, err
	}

	en := models.Enrollment{StudentID: studentID, CourseID: course.ID, Grade: grade}
	if err := tx.Omit(clause.Associations).Create(&en).Error; err != nil {
		return models.Enrollment{}, translate(err)
	}
	return en, nil
}

func lockCourse(tx *gorm.DB, courseID uint) (models.Course, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var course models.Course
	if err := q.First(&course, courseID).Error; err != nil {
		return course, notFound(err, "course", courseID)
	}
	return course, nil
}

func checkStudent(tx *gorm.DB, studentID uint) error {
	var student models.User
	if err := tx.First(&student, studentID).Error; err != nil {
		return notFound(err, "student", studentID)
	}
	if student.Role != models.RoleStudent {
		return fmt.Errorf("user %d: %w", studentID, ErrNotStudent)
	}
	return nil
}

// checkSlot fails when the student already holds a seat in the course or the
// course is at capacity. except excludes one enrollment (the one being
// moved) from both checks.
func checkSlot(tx *gorm.DB, course models.Course, studentID, except uint) error {
	var dup int64
	if err := tx.Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ? AND id <> ?", studentID, course.ID, except).
		Count(&dup).Error; err != nil {
		return err
	}
	if dup > 0 {
		return ErrAlreadyEnrolled
	}

	var taken int64
	if err := tx.Model(&models.Enrollment{}).
		Where("course_id = ? AND id <> ?", course.ID, except).
		Count(&taken).Error; err != nil {
		return err
	}
	if taken >= int64(course.Capacity) {
		return ErrCourseFull
	}
	return nil
}

func notFound(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyEnrolled
	}
	return err
}
