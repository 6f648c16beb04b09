// Package dbtest provides an in-memory database and row fixtures for tests.
package dbtest

import (
	"testing"

	"github.com/acme/enrollment/internal/database"
	"github.com/acme/enrollment/internal/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Password is the plaintext password of every fixture user.
const Password = "password123"

var fixtureHash string

func init() {
	h, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	fixtureHash = string(h)
}

// New returns a migrated, empty in-memory SQLite database closed at test end.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(":memory:", &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func User(t testing.TB, db *gorm.DB, username string, role models.UserRole) models.User {
	t.Helper()
	u := models.User{
		Username:     username,
		PasswordHash: fixtureHash,
		Role:         role,
		DisplayName:  username + " display",
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func Course(t testing.TB, db *gorm.DB, name string, teacherID uint, capacity int) models.Course {
	t.Helper()
	c := models.Course{Name: name, TeacherID: teacherID, Time: "MWF 10:00-10:50 AM", Capacity: capacity}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func Enrollment(t testing.TB, db *gorm.DB, studentID, courseID uint, grade *int) models.Enrollment {
	t.Helper()
	e := models.Enrollment{StudentID: studentID, CourseID: courseID, Grade: grade}
	require.NoError(t, db.Create(&e).Error)
	return e
}

// Count returns the number of rows of model's table matching the optional
// where clause.
func Count(t testing.TB, db *gorm.DB, model any, where ...any) int64 {
	t.Helper()
	q := db.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	var n int64
	require.NoError(t, q.Count(&n).Error)
	return n
}
