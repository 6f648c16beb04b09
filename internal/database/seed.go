package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/acme/enrollment/internal/models"
	"github.com/acme/enrollment/internal/password"

	charmlog "github.com/charmbracelet/log"
	"gorm.io/gorm"
)

type seedUser struct {
	Username    string
	Password    string
	Role        models.UserRole
	DisplayName string
}

type seedCourse struct {
	Name     string
	Teacher  string
	Time     string
	Capacity int
}

type seedGrade struct {
	Student string
	Grade   int
}

var seedUsers = []seedUser{
	{"ahepworth", "password123", models.RoleTeacher, "Dr. Hepworth"},
	{"swalker", "password123", models.RoleTeacher, "Susan Walker"},
	{"rjenkins", "password123", models.RoleTeacher, "Ralph Jenkins"},
	{"cnorris", "password123", models.RoleStudent, "Chuck Norris"},
	{"mnorris", "password123", models.RoleStudent, "Mindy Norris"},
	{"nlittle", "password123", models.RoleStudent, "Nancy Little"},
	{"jstuart", "password123", models.RoleStudent, "John Stuart"},
	{"admin", "admin123", models.RoleAdmin, "Admin"},
}

var seedCourses = []seedCourse{
	{"Math 101", "rjenkins", "MWF 10:00-10:50 AM", 8},
	{"Physics 121", "swalker", "TR 11:00-11:50 AM", 10},
	{"CS 106", "ahepworth", "MWF 2:00-2:50 PM", 10},
	{"CS 162", "ahepworth", "TR 3:00-3:50 PM", 4},
}

var seedEnrollments = []struct {
	Course   string
	Students []seedGrade
}{
	{"Math 101", []seedGrade{{"jstuart", 86}, {"nlittle", 53}}},
	{"Physics 121", []seedGrade{{"mnorris", 94}, {"jstuart", 91}}},
	{"CS 106", []seedGrade{{"nlittle", 57}, {"mnorris", 68}}},
	{"CS 162", []seedGrade{{"jstuart", 67}, {"nlittle", 87}}},
}

// SeedResult counts the rows a Seed call inserted.
type SeedResult struct {
	Users       int
	Courses     int
	Enrollments int
}

// Seed inserts the demo users, courses and enrollments that are missing,
// keyed by username, course name and (student, course). Existing rows are
// never modified, so running it repeatedly is safe.
func Seed(ctx context.Context, db *gorm.DB, log *charmlog.Logger) (SeedResult, error) {
	var res SeedResult

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range seedUsers {
			created, err := seedOneUser(tx, u)
			if err != nil {
				return err
			}
			if created {
				res.Users++
				log.Debug("seeded user", "username", u.Username, "role", u.Role)
			}
		}

		for _, c := range seedCourses {
			created, err := seedOneCourse(tx, c, log)
			if err != nil {
				return err
			}
			if created {
				res.Courses++
				log.Debug("seeded course", "name", c.Name)
			}
		}

		for _, e := range seedEnrollments {
			var course models.Course
			if err := tx.Where("name = ?", e.Course).First(&course).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			for _, s := range e.Students {
				created, err := seedOneEnrollment(tx, course, s)
				if err != nil {
					return err
				}
				if created {
					res.Enrollments++
				}
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed: %w", err)
	}

	log.Info("seed complete", "users", res.Users, "courses", res.Courses, "enrollments", res.Enrollments)
	return res, nil
}

func seedOneUser(tx *gorm.DB, u seedUser) (bool, error) {
	var count int64
	if err := tx.Model(&models.User{}).Where("username = ?", u.Username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check user %s: %w", u.Username, err)
	}
	if count > 0 {
		return false, nil
	}

	hash, err := password.Hash(u.Password)
	if err != nil {
		return false, fmt.Errorf("hash password for %s: %w", u.Username, err)
	}
	user := models.User{
		Username:     u.Username,
		PasswordHash: hash,
		Role:         u.Role,
		DisplayName:  u.DisplayName,
	}
	if err := tx.Create(&user).Error; err != nil {
		return false, fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return true, nil
}

func seedOneCourse(tx *gorm.DB, c seedCourse, log *charmlog.Logger) (bool, error) {
	var count int64
	if err := tx.Model(&models.Course{}).Where("name = ?", c.Name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check course %s: %w", c.Name, err)
	}
	if count > 0 {
		return false, nil
	}

	var teacher models.User
	if err := tx.Where("username = ? AND role = ?", c.Teacher, models.RoleTeacher).First(&teacher).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("seed course skipped, teacher missing", "course", c.Name, "teacher", c.Teacher)
			return false, nil
		}
		return false, err
	}

	course := models.Course{
		Name:      c.Name,
		TeacherID: teacher.ID,
		Time:      c.Time,
		Capacity:  c.Capacity,
	}
	if err := tx.Create(&course).Error; err != nil {
		return false, fmt.Errorf("create course %s: %w", c.Name, err)
	}
	return true, nil
}

func seedOneEnrollment(tx *gorm.DB, course models.Course, s seedGrade) (bool, error) {
	var student models.User
	if err := tx.Where("username = ? AND role = ?", s.Student, models.RoleStudent).First(&student).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	var count int64
	if err := tx.Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ?", student.ID, course.ID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	grade := s.Grade
	e := models.Enrollment{StudentID: student.ID, CourseID: course.ID, Grade: &grade}
	if err := tx.Create(&e).Error; err != nil {
		return false, fmt.Errorf("enroll %s in %s: %w", s.Student, course.Name, err)
	}
	return true, nil
}
