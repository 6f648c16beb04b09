package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment joins one student to one course. The (student_id, course_id)
// pair is unique.
type Enrollment struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	StudentID uint   `gorm:"not null;uniqueIndex:idx_enrollment_student_course,priority:1" validate:"required"`
	Student   User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" validate:"-"`
	CourseID  uint   `gorm:"not null;uniqueIndex:idx_enrollment_student_course,priority:2;index" validate:"required"`
	Course    Course `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" validate:"-"`
	Grade     *int   `validate:"omitempty,gte=0"` // nil until a teacher grades it
}

func (e *Enrollment) Validate() error {
	return check(e)
}

func (e *Enrollment) BeforeSave(*gorm.DB) error {
	return e.Validate()
}

// EnrollmentRow is the admin console projection of an enrollment with the
// related course name and student display name joined in.
type EnrollmentRow struct {
	ID          uint
	CourseID    uint
	CourseName  string
	StudentID   uint
	StudentName string
	Grade       *int
}
