package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/acme/enrollment/internal/config"
	"github.com/acme/enrollment/internal/database"
	"github.com/acme/enrollment/internal/database/dbtest"
	"github.com/acme/enrollment/internal/logger"
	"github.com/acme/enrollment/internal/models"
	"github.com/acme/enrollment/internal/password"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() {
	password.Cost = bcrypt.MinCost
	gin.SetMode(gin.TestMode)
}

type app struct {
	t  *testing.T
	db *gorm.DB
	r  *gin.Engine
}

func newApp(t *testing.T, rate string) *app {
	t.Helper()
	db := dbtest.New(t)
	_, err := database.Seed(context.Background(), db, logger.Discard())
	require.NoError(t, err)

	r, err := NewRouter(Deps{
		Config: &config.Config{SessionSecret: "test-secret", LoginRateLimit: rate},
		DB:     db,
		Log:    logger.Discard(),
	})
	require.NoError(t, err)
	return &app{t: t, db: db, r: r}
}

func (a *app) user(username string) models.User {
	a.t.Helper()
	var u models.User
	require.NoError(a.t, a.db.Where("username = ?", username).First(&u).Error)
	return u
}

func (a *app) course(name string) models.Course {
	a.t.Helper()
	var c models.Course
	require.NoError(a.t, a.db.Where("name = ?", name).First(&c).Error)
	return c
}

func (a *app) enrollment(username, course string) models.Enrollment {
	a.t.Helper()
	var en models.Enrollment
	require.NoError(a.t, a.db.
		Where("student_id = ? AND course_id = ?", a.user(username).ID, a.course(course).ID).
		First(&en).Error)
	return en
}

// browser keeps cookies between requests like a user agent would.
type browser struct {
	a       *app
	cookies map[string]*http.Cookie
}

func (a *app) browser() *browser {
	return &browser{a: a, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader = http.NoBody
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, ck := range b.cookies {
		req.AddCookie(ck)
	}

	w := httptest.NewRecorder()
	b.a.r.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(b.cookies, ck.Name)
			continue
		}
		b.cookies[ck.Name] = ck
	}
	return w
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(http.MethodGet, path, nil)
}

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	return b.do(http.MethodPost, path, form)
}

func (b *browser) login(username, pw string) *httptest.ResponseRecorder {
	return b.post("/login", url.Values{"username": {username}, "password": {pw}})
}

func (a *app) loggedIn(username string) *browser {
	a.t.Helper()
	pw := dbtest.Password
	if username == "admin" {
		pw = "admin123"
	}
	b := a.browser()
	w := b.login(username, pw)
	require.Equal(a.t, http.StatusFound, w.Code)
	require.Equal(a.t, "/dashboard", w.Header().Get("Location"))
	return b
}

func id(n uint) string { return strconv.FormatUint(uint64(n), 10) }

func TestUnauthenticatedAccess(t *testing.T) {
	a := newApp(t, "100-M")
	b := a.browser()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/dashboard"},
		{http.MethodGet, "/logout"},
		{http.MethodPost, "/enroll/1"},
		{http.MethodPost, "/drop_class/1"},
		{http.MethodPost, "/update_grade/1"},
		{http.MethodGet, "/admin"},
		{http.MethodGet, "/admin/users"},
		{http.MethodPost, "/admin/users/1/delete"},
	} {
		w := b.do(tc.method, tc.path, nil)
		assert.Equal(t, http.StatusFound, w.Code, tc.path)
		assert.Equal(t, "/login", w.Header().Get("Location"), tc.path)
	}

	w := b.get("/login")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="username"`)
}

func TestLogin(t *testing.T) {
	a := newApp(t, "100-M")

	t.Run("wrong password and unknown user look the same", func(t *testing.T) {
		b := a.browser()
		wrong := b.login("cnorris", "nope")
		unknown := b.login("ghost", "password123")

		for _, w := range []*httptest.ResponseRecorder{wrong, unknown} {
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "Invalid username or password")
			assert.Empty(t, w.Result().Cookies())
		}
		assert.Equal(t, http.StatusFound, b.get("/dashboard").Code)
	})

	t.Run("success lands on the dashboard", func(t *testing.T) {
		b := a.loggedIn("cnorris")
		w := b.get("/dashboard")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "CS 162")
		assert.Contains(t, w.Body.String(), "Chuck Norris")

		assert.Equal(t, "/dashboard", b.get("/login").Header().Get("Location"))
		assert.Equal(t, "/dashboard", b.get("/").Header().Get("Location"))
	})

	t.Run("logout ends the session", func(t *testing.T) {
		b := a.loggedIn("cnorris")
		w := b.get("/logout")
		assert.Equal(t, "/login", w.Header().Get("Location"))
		assert.Equal(t, "/login", b.get("/dashboard").Header().Get("Location"))
	})

	t.Run("session of a deleted user is dropped", func(t *testing.T) {
		b := a.loggedIn("cnorris")
		require.NoError(t, a.db.Delete(&models.User{}, a.user("cnorris").ID).Error)
		assert.Equal(t, "/login", b.get("/dashboard").Header().Get("Location"))
	})
}

func TestLoginRateLimit(t *testing.T) {
	a := newApp(t, "2-M")
	b := a.browser()

	assert.Equal(t, http.StatusUnauthorized, b.login("cnorris", "x").Code)
	assert.Equal(t, http.StatusUnauthorized, b.login("cnorris", "y").Code)

	w := b.login("cnorris", dbtest.Password)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many login attempts")
}

func TestEnrollCapacityScenario(t *testing.T) {
	a := newApp(t, "100-M")
	dbtest.User(t, a.db, "extra", models.RoleStudent)
	cs162 := a.course("CS 162")
	count := func() int64 { return dbtest.Count(t, a.db, &models.Enrollment{}, "course_id = ?", cs162.ID) }
	require.Equal(t, int64(2), count())

	for _, student := range []string{"cnorris", "mnorris"} {
		b := a.loggedIn(student)
		w := b.post("/enroll/"+id(cs162.ID), nil)
		assert.Equal(t, "/dashboard", w.Header().Get("Location"))
		assert.NotContains(t, b.get("/dashboard").Body.String(), "Course is full")
	}
	require.Equal(t, int64(4), count())

	b := a.loggedIn("extra")
	w := b.post("/enroll/"+id(cs162.ID), nil)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Contains(t, b.get("/dashboard").Body.String(), "Course is full")
	assert.Equal(t, int64(4), count())

	// the flash is shown once
	assert.NotContains(t, b.get("/dashboard").Body.String(), "Course is full")
}

func TestEnrollEdgeCases(t *testing.T) {
	a := newApp(t, "100-M")
	b := a.loggedIn("jstuart")

	math := a.course("Math 101")
	b.post("/enroll/"+id(math.ID), nil)
	assert.Contains(t, b.get("/dashboard").Body.String(), "You are already enrolled in this course")
	assert.Equal(t, int64(1), dbtest.Count(t, a.db, &models.Enrollment{},
		"course_id = ? AND student_id = ?", math.ID, a.user("jstuart").ID))

	b.post("/enroll/9999", nil)
	assert.Contains(t, b.get("/dashboard").Body.String(), "Course not found")

	b.post("/enroll/abc", nil)
	assert.Contains(t, b.get("/dashboard").Body.String(), "Course not found")

	teacher := a.loggedIn("ahepworth")
	w := teacher.post("/enroll/"+id(math.ID), nil)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, int64(0), dbtest.Count(t, a.db, &models.Enrollment{}, "student_id = ?", a.user("ahepworth").ID))
}

func TestDropClass(t *testing.T) {
	a := newApp(t, "100-M")
	theirs := a.enrollment("nlittle", "CS 162")
	mine := a.enrollment("jstuart", "CS 162")

	b := a.loggedIn("jstuart")
	w := b.post("/drop_class/"+id(theirs.ID), nil)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, int64(1), dbtest.Count(t, a.db, &models.Enrollment{}, "id = ?", theirs.ID))

	w = b.post("/drop_class/"+id(mine.ID), nil)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, int64(0), dbtest.Count(t, a.db, &models.Enrollment{}, "id = ?", mine.ID))

	b.post("/drop_class/"+id(mine.ID), nil)
	assert.Contains(t, b.get("/dashboard").Body.String(), "Enrollment not found")

	teacher := a.loggedIn("ahepworth")
	teacher.post("/drop_class/"+id(theirs.ID), nil)
	assert.Equal(t, int64(1), dbtest.Count(t, a.db, &models.Enrollment{}, "id = ?", theirs.ID))
}

func TestUpdateGrade(t *testing.T) {
	a := newApp(t, "100-M")
	en := a.enrollment("jstuart", "CS 162")
	grade := func() int {
		var got models.Enrollment
		require.NoError(t, a.db.First(&got, en.ID).Error)
		require.NotNil(t, got.Grade)
		return *got.Grade
	}

	b := a.loggedIn("ahepworth")
	w := b.post("/update_grade/"+id(en.ID), url.Values{"grade": {"91"}})
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, 91, grade())

	w = b.post("/update_grade/"+id(en.ID), url.Values{"grade": {"abc"}})
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, 91, grade())
	body := b.get("/dashboard").Body.String()
	assert.NotContains(t, body, "class=\"flash\"")
	assert.Contains(t, body, "John Stuart")

	other := a.loggedIn("swalker")
	other.post("/update_grade/"+id(en.ID), url.Values{"grade": {"10"}})
	assert.Equal(t, 91, grade())

	student := a.loggedIn("jstuart")
	w = student.post("/update_grade/"+id(en.ID), url.Values{"grade": {"100"}})
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, 91, grade())
}

func TestAdminConsole(t *testing.T) {
	a := newApp(t, "100-M")

	t.Run("only administrators get in", func(t *testing.T) {
		for _, username := range []string{"cnorris", "ahepworth"} {
			b := a.loggedIn(username)
			w := b.get("/admin/users")
			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, "/dashboard", w.Header().Get("Location"))
		}

		b := a.loggedIn("admin")
		assert.Equal(t, "/admin", b.get("/dashboard").Header().Get("Location"))
		w := b.get("/admin")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ACME University Admin")
		assert.Contains(t, w.Body.String(), `<a href="/admin/users">Users</a> (8)`)
		assert.Contains(t, w.Body.String(), `<a href="/admin/enrollments">Enrollments</a> (8)`)
	})

	t.Run("enrollment list shows names", func(t *testing.T) {
		b := a.loggedIn("admin")
		body := b.get("/admin/enrollments").Body.String()
		assert.Contains(t, body, "Math 101")
		assert.Contains(t, body, "John Stuart")
	})

	t.Run("user list never shows hashes", func(t *testing.T) {
		b := a.loggedIn("admin")
		body := b.get("/admin/users").Body.String()
		assert.Contains(t, body, "cnorris")
		assert.NotContains(t, body, a.user("cnorris").PasswordHash)
	})

	t.Run("create user and log in as them", func(t *testing.T) {
		b := a.loggedIn("admin")
		w := b.post("/admin/users/new", url.Values{
			"username": {"newkid"}, "password": {"s3cret!"}, "role": {"student"}, "display_name": {"New Kid"},
		})
		require.Equal(t, http.StatusFound, w.Code)

		assert.Equal(t, http.StatusFound, a.browser().login("newkid", "s3cret!").Code)
	})

	t.Run("invalid role is refused", func(t *testing.T) {
		b := a.loggedIn("admin")
		w := b.post("/admin/users/new", url.Values{"username": {"x"}, "password": {"pw"}, "role": {"dean"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown role")
	})

	t.Run("admin keeps console access", func(t *testing.T) {
		b := a.loggedIn("admin")
		me := a.user("admin")
		w := b.post("/admin/users/"+id(me.ID)+"/edit", url.Values{
			"username": {"admin"}, "role": {"student"}, "display_name": {"Admin"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "cannot remove your own administrator role")
		assert.Equal(t, models.RoleAdmin, a.user("admin").Role)
		assert.Equal(t, http.StatusOK, b.get("/admin/users").Code)
	})

	t.Run("deleting a teacher with courses is refused", func(t *testing.T) {
		b := a.loggedIn("admin")
		teacher := a.user("ahepworth")
		w := b.post("/admin/users/"+id(teacher.ID)+"/delete", nil)
		assert.Equal(t, "/admin/users", w.Header().Get("Location"))
		assert.Contains(t, b.get("/admin/users").Body.String(), "still referenced")
		assert.Equal(t, int64(1), dbtest.Count(t, a.db, &models.User{}, "id = ?", teacher.ID))
	})

	t.Run("course form validates", func(t *testing.T) {
		b := a.loggedIn("admin")
		student := a.user("cnorris")
		w := b.post("/admin/courses/new", url.Values{
			"name": {"Bad"}, "teacher_id": {id(student.ID)}, "time": {"TR"}, "capacity": {"5"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "is not a teacher")

		w = b.post("/admin/courses/new", url.Values{
			"name": {"Bad"}, "teacher_id": {id(a.user("swalker").ID)}, "time": {"TR"}, "capacity": {"many"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "must be a whole number")

		w = b.post("/admin/courses/new", url.Values{
			"name": {"Bad"}, "teacher_id": {"abc"}, "time": {"TR"}, "capacity": {"5"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Teacher: choose an entry from the list")
		assert.Contains(t, w.Body.String(), `value="Bad"`)
		assert.Equal(t, int64(0), dbtest.Count(t, a.db, &models.Course{}, "name = ?", "Bad"))
	})

	t.Run("course edit preselects the teacher", func(t *testing.T) {
		b := a.loggedIn("admin")
		course := a.course("Physics 121")
		w := b.get("/admin/courses/" + id(course.ID) + "/edit")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `<option value="`+id(course.TeacherID)+`" selected>`)
	})

	t.Run("admin enrollment honours capacity", func(t *testing.T) {
		b := a.loggedIn("admin")
		cs162 := a.course("CS 162")
		for _, s := range []string{"cnorris", "mnorris"} {
			w := b.post("/admin/enrollments/new", url.Values{
				"course_id": {id(cs162.ID)}, "student_id": {id(a.user(s).ID)}, "grade": {""},
			})
			require.Equal(t, http.StatusFound, w.Code)
		}
		extra := dbtest.User(t, a.db, "latecomer", models.RoleStudent)
		w := b.post("/admin/enrollments/new", url.Values{
			"course_id": {id(cs162.ID)}, "student_id": {id(extra.ID)},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "course is full")
	})

	t.Run("edit enrollment grade", func(t *testing.T) {
		b := a.loggedIn("admin")
		en := a.enrollment("mnorris", "Physics 121")

		w := b.get("/admin/enrollments/" + id(en.ID) + "/edit")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `value="94"`)

		w = b.post("/admin/enrollments/"+id(en.ID)+"/edit", url.Values{
			"course_id": {id(en.CourseID)}, "student_id": {id(en.StudentID)}, "grade": {"99"},
		})
		require.Equal(t, http.StatusFound, w.Code)
		got := a.enrollment("mnorris", "Physics 121")
		require.NotNil(t, got.Grade)
		assert.Equal(t, 99, *got.Grade)
	})

	t.Run("missing records", func(t *testing.T) {
		b := a.loggedIn("admin")
		w := b.get("/admin/courses/9999/edit")
		assert.Equal(t, "/admin/courses", w.Header().Get("Location"))
		assert.Contains(t, b.get("/admin/courses").Body.String(), "Record not found")
	})
}

func TestOperationalEndpoints(t *testing.T) {
	a := newApp(t, "100-M")
	b := a.browser()

	w := b.get("/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	b.login("cnorris", "wrong")
	w = b.get("/metrics")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	student := a.loggedIn("cnorris")
	w = student.get("/metrics")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))

	w = a.loggedIn("admin").get("/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `enrollment_login_attempts_total{result="invalid"} 1`)
	assert.Contains(t, w.Body.String(), `enrollment_login_attempts_total{result="ok"} 2`)
}

func TestNewRouterRejectsBadRate(t *testing.T) {
	_, err := NewRouter(Deps{
		Config: &config.Config{SessionSecret: "s", LoginRateLimit: "often"},
		DB:     dbtest.New(t),
		Log:    logger.Discard(),
	})
	require.Error(t, err)
}
