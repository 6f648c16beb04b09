// Package admin implements the administrator's per-row CRUD over users,
// courses and enrollments.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/acme/enrollment/internal/enrollment"
	"github.com/acme/enrollment/internal/models"
	"github.com/acme/enrollment/internal/password"
	"github.com/acme/enrollment/internal/policy"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrInUse     = errors.New("record is still referenced")
	ErrDuplicate = errors.New("record already exists")
	ErrForbidden = errors.New("administrator role required")
)

type Service struct {
	db     *gorm.DB
	engine *enrollment.Engine
}

func NewService(db *gorm.DB, engine *enrollment.Engine) *Service {
	return &Service{db: db, engine: engine}
}

func allowed(actor *models.User) error {
	if !policy.Authorize(actor, policy.Administer, policy.Any) {
		return ErrForbidden
	}
	return nil
}

func lookup(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}

// Summary holds the row count of each table shown on the console index.
type Summary struct {
	Users       int64
	Courses     int64
	Enrollments int64
}

func (s *Service) Summary(ctx context.Context, actor *models.User) (Summary, error) {
	var sum Summary
	if err := allowed(actor); err != nil {
		return sum, err
	}
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&sum.Users).Error; err != nil {
		return sum, fmt.Errorf("count users: %w", err)
	}
	if err := db.Model(&models.Course{}).Count(&sum.Courses).Error; err != nil {
		return sum, fmt.Errorf("count courses: %w", err)
	}
	if err := db.Model(&models.Enrollment{}).Count(&sum.Enrollments).Error; err != nil {
		return sum, fmt.Errorf("count enrollments: %w", err)
	}
	return sum, nil
}

//
// USERS
//

type UserInput struct {
	Username    string
	Password    string // blank on update keeps the current hash
	Role        string
	DisplayName string
}

func (s *Service) ListUsers(ctx context.Context, actor *models.User) ([]models.User, error) {
	if err := allowed(actor); err != nil {
		return nil, err
	}
	var users []models.User
	err := s.db.WithContext(ctx).Order("id asc").Find(&users).Error
	return users, err
}

func (s *Service) GetUser(ctx context.Context, actor *models.User, id uint) (models.User, error) {
	var u models.User
	if err := allowed(actor); err != nil {
		return u, err
	}
	err := s.db.WithContext(ctx).First(&u, id).Error
	return u, lookup(err, "user", id)
}

func (s *Service) CreateUser(ctx context.Context, actor *models.User, in UserInput) (models.User, error) {
	var u models.User
	if err := allowed(actor); err != nil {
		return u, err
	}
	role, err := models.ParseRole(in.Role)
	if err != nil {
		return u, err
	}
	if in.Password == "" {
		return u, invalid("Password: is required")
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		return u, err
	}

	u = models.User{
		Username:     strings.TrimSpace(in.Username),
		PasswordHash: hash,
		Role:         role,
		DisplayName:  strings.TrimSpace(in.DisplayName),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := usernameFree(tx, u.Username, 0); err != nil {
			return err
		}
		return duplicate(tx.Create(&u).Error, "username "+u.Username)
	})
	return u, err
}

func usernameFree(tx *gorm.DB, username string, except uint) error {
	var n int64
	if err := tx.Model(&models.User{}).
		Where("username = ? AND id <> ?", username, except).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("username %s: %w", username, ErrDuplicate)
	}
	return nil
}

// UpdateUser refuses role changes that would strand existing rows: a teacher
// who still owns courses stays a teacher, a student with enrollments stays a
// student. An administrator cannot give up their own role, and the last
// administrator always remains one.
func (s *Service) UpdateUser(ctx context.Context, actor *models.User, id uint, in UserInput) (models.User, error) {
	var u models.User
	if err := allowed(actor); err != nil {
		return u, err
	}
	role, err := models.ParseRole(in.Role)
	if err != nil {
		return u, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&u, id).Error; err != nil {
			return lookup(err, "user", id)
		}

		if u.Role != role {
			if err := roleChangeAllowed(tx, actor, u); err != nil {
				return err
			}
		}

		u.Username = strings.TrimSpace(in.Username)
		if err := usernameFree(tx, u.Username, u.ID); err != nil {
			return err
		}
		u.Role = role
		u.DisplayName = strings.TrimSpace(in.DisplayName)
		if in.Password != "" {
			hash, err := password.Hash(in.Password)
			if err != nil {
				return err
			}
			u.PasswordHash = hash
		}
		return duplicate(tx.Save(&u).Error, "username "+u.Username)
	})
	return u, err
}

func roleChangeAllowed(tx *gorm.DB, actor *models.User, u models.User) error {
	var n int64
	switch u.Role {
	case models.RoleAdmin:
		if u.ID == actor.ID {
			return fmt.Errorf("cannot remove your own administrator role: %w", ErrInUse)
		}
		if err := tx.Model(&models.User{}).
			Where("role = ? AND id <> ?", models.RoleAdmin, u.ID).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s is the last administrator: %w", u.Username, ErrInUse)
		}
	case models.RoleTeacher:
		if err := tx.Model(&models.Course{}).Where("teacher_id = ?", u.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%s teaches %d course(s) and must remain a teacher: %w", u.Username, n, ErrInUse)
		}
	case models.RoleStudent:
		if err := tx.Model(&models.Enrollment{}).Where("student_id = ?", u.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%s holds %d enrollment(s) and must remain a student: %w", u.Username, n, ErrInUse)
		}
	}
	return nil
}

// DeleteUser is restricted: a user who teaches a course or holds an
// enrollment cannot be deleted.
func (s *Service) DeleteUser(ctx context.Context, actor *models.User, id uint) error {
	if err := allowed(actor); err != nil {
		return err
	}
	if actor.ID == id {
		return fmt.Errorf("cannot delete your own account: %w", ErrInUse)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.First(&u, id).Error; err != nil {
			return lookup(err, "user", id)
		}

		var courses, enrollments int64
		if err := tx.Model(&models.Course{}).Where("teacher_id = ?", id).Count(&courses).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Enrollment{}).Where("student_id = ?", id).Count(&enrollments).Error; err != nil {
			return err
		}
		if courses > 0 || enrollments > 0 {
			return fmt.Errorf("%s has %d course(s) and %d enrollment(s): %w", u.Username, courses, enrollments, ErrInUse)
		}
		return tx.Delete(&u).Error
	})
}

//
// COURSES
//

type CourseInput struct {
	Name      string
	TeacherID uint
	Time      string
	Capacity  int
}

func (s *Service) ListCourses(ctx context.Context, actor *models.User) ([]models.Course, error) {
	if err := allowed(actor); err != nil {
		return nil, err
	}
	var courses []models.Course
	err := s.db.WithContext(ctx).Preload("Teacher").Order("id asc").Find(&courses).Error
	return courses, err
}

func (s *Service) GetCourse(ctx context.Context, actor *models.User, id uint) (models.Course, error) {
	var c models.Course
	if err := allowed(actor); err != nil {
		return c, err
	}
	err := s.db.WithContext(ctx).Preload("Teacher").First(&c, id).Error
	return c, lookup(err, "course", id)
}

// Teachers lists the users a course can be assigned to.
func (s *Service) Teachers(ctx context.Context, actor *models.User) ([]models.User, error) {
	return s.usersWithRole(ctx, actor, models.RoleTeacher)
}

// Students lists the users an enrollment can be assigned to.
func (s *Service) Students(ctx context.Context, actor *models.User) ([]models.User, error) {
	return s.usersWithRole(ctx, actor, models.RoleStudent)
}

func (s *Service) usersWithRole(ctx context.Context, actor *models.User, role models.UserRole) ([]models.User, error) {
	if err := allowed(actor); err != nil {
		return nil, err
	}
	var users []models.User
	err := s.db.WithContext(ctx).Where("role = ?", role).Order("username asc").Find(&users).Error
	return users, err
}

func (s *Service) CreateCourse(ctx context.Context, actor *models.User, in CourseInput) (models.Course, error) {
	var c models.Course
	if err := allowed(actor); err != nil {
		return c, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkTeacher(tx, in.TeacherID); err != nil {
			return err
		}
		c = models.Course{
			Name:      strings.TrimSpace(in.Name),
			TeacherID: in.TeacherID,
			Time:      strings.TrimSpace(in.Time),
			Capacity:  in.Capacity,
		}
		return tx.Omit(clause.Associations).Create(&c).Error
	})
	return c, err
}

// UpdateCourse refuses to drop capacity below the current enrollment count.
func (s *Service) UpdateCourse(ctx context.Context, actor *models.User, id uint, in CourseInput) (models.Course, error) {
	var c models.Course
	if err := allowed(actor); err != nil {
		return c, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&c, id).Error; err != nil {
			return lookup(err, "course", id)
		}
		if err := checkTeacher(tx, in.TeacherID); err != nil {
			return err
		}

		var taken int64
		if err := tx.Model(&models.Enrollment{}).Where("course_id = ?", id).Count(&taken).Error; err != nil {
			return err
		}
		if int64(in.Capacity) < taken {
			return invalid("Capacity: %d students are enrolled", taken)
		}

		c.Name = strings.TrimSpace(in.Name)
		c.TeacherID = in.TeacherID
		c.Time = strings.TrimSpace(in.Time)
		c.Capacity = in.Capacity
		return tx.Omit(clause.Associations).Save(&c).Error
	})
	return c, err
}

// DeleteCourse is restricted while the course has enrollments.
func (s *Service) DeleteCourse(ctx context.Context, actor *models.User, id uint) error {
	if err := allowed(actor); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Course
		if err := tx.First(&c, id).Error; err != nil {
			return lookup(err, "course", id)
		}
		var n int64
		if err := tx.Model(&models.Enrollment{}).Where("course_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%s has %d enrollment(s): %w", c.Name, n, ErrInUse)
		}
		return tx.Delete(&c).Error
	})
}

func checkTeacher(tx *gorm.DB, id uint) error {
	var u models.User
	if err := tx.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid("Teacher: user %d does not exist", id)
		}
		return err
	}
	if u.Role != models.RoleTeacher {
		return invalid("Teacher: %s is not a teacher", u.Username)
	}
	return nil
}

//
// ENROLLMENTS
//

type EnrollmentInput struct {
	StudentID uint
	CourseID  uint
	Grade     *int
}

// ListEnrollments joins in the course name and the student's display name.
func (s *Service) ListEnrollments(ctx context.Context, actor *models.User) ([]models.EnrollmentRow, error) {
	if err := allowed(actor); err != nil {
		return nil, err
	}
	var rows []models.EnrollmentRow
	err := s.db.WithContext(ctx).
		Table("enrollments").
		Select(`enrollments.id, enrollments.course_id, courses.name AS course_name,
			enrollments.student_id, COALESCE(NULLIF(users.display_name, ''), users.username) AS student_name,
			enrollments.grade`).
		Joins("JOIN courses ON courses.id = enrollments.course_id").
		Joins("JOIN users ON users.id = enrollments.student_id").
		Order("enrollments.id asc").
		Scan(&rows).Error
	return rows, err
}

func (s *Service) GetEnrollment(ctx context.Context, actor *models.User, id uint) (models.Enrollment, error) {
	var en models.Enrollment
	if err := allowed(actor); err != nil {
		return en, err
	}
	err := s.db.WithContext(ctx).Preload("Course").Preload("Student").First(&en, id).Error
	return en, lookup(err, "enrollment", id)
}

func (s *Service) CreateEnrollment(ctx context.Context, actor *models.User, in EnrollmentInput) (models.Enrollment, error) {
	if err := checkGrade(in.Grade); err != nil {
		return models.Enrollment{}, err
	}
	return s.engine.Create(ctx, actor, in.StudentID, in.CourseID, in.Grade)
}

func (s *Service) UpdateEnrollment(ctx context.Context, actor *models.User, id uint, in EnrollmentInput) (models.Enrollment, error) {
	if err := checkGrade(in.Grade); err != nil {
		return models.Enrollment{}, err
	}
	return s.engine.Update(ctx, actor, id, in.StudentID, in.CourseID, in.Grade)
}

func (s *Service) DeleteEnrollment(ctx context.Context, actor *models.User, id uint) error {
	return s.engine.Delete(ctx, actor, id)
}

func checkGrade(g *int) error {
	if g != nil && *g < 0 {
		return invalid("Grade: must be at least 0")
	}
	return nil
}

func duplicate(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return err
}
