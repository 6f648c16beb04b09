package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/acme/enrollment/internal/admin"
	"github.com/acme/enrollment/internal/auth"
	"github.com/acme/enrollment/internal/config"
	"github.com/acme/enrollment/internal/enrollment"
	"github.com/acme/enrollment/internal/handlers"
	"github.com/acme/enrollment/internal/metrics"
	"github.com/acme/enrollment/internal/middleware"
	"github.com/acme/enrollment/internal/policy"
	"github.com/acme/enrollment/web"

	charmlog "github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const sessionName = "enrollment_session"

// Deps are the router's collaborators. Registry may be nil.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Log      *charmlog.Logger
	Registry *prometheus.Registry
}

func gradeText(g *int) string {
	if g == nil {
		return ""
	}
	return strconv.Itoa(*g)
}

func NewRouter(d Deps) (*gin.Engine, error) {
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(d.Log))

	tmpl, err := template.New("").
		Funcs(template.FuncMap{"grade": gradeText}).
		ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	r.SetHTMLTemplate(tmpl)

	store := cookie.NewStore([]byte(d.Config.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   d.Config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	authSvc := auth.NewService(d.DB, d.Log)
	engine := enrollment.New(d.DB)
	m := metrics.New(d.Registry)
	h := handlers.New(authSvc, engine, admin.NewService(d.DB, engine), m, d.Log)

	r.Use(middleware.InjectUser(authSvc))

	loginLimit, err := middleware.RateLimit(d.Config.LoginRateLimit, h.LoginLimited)
	if err != nil {
		return nil, err
	}

	r.GET("/", h.Index)
	r.GET("/login", h.ShowLogin)
	r.POST("/login", loginLimit, h.Login)

	authed := r.Group("/")
	authed.Use(middleware.RequireAuth())

	authed.GET("/logout", h.Logout)
	authed.GET("/dashboard", h.Dashboard)
	authed.POST("/enroll/:courseId", middleware.Allow(policy.Enroll), h.Enroll)
	authed.POST("/drop_class/:enrollmentId", middleware.Allow(policy.Drop), h.DropClass)
	authed.POST("/update_grade/:enrollmentId", middleware.Allow(policy.UpdateGrade), h.UpdateGrade)

	console := authed.Group("/admin")
	console.Use(middleware.Allow(policy.Administer))

	console.GET("", h.AdminIndex)

	console.GET("/users", h.AdminListUsers)
	console.GET("/users/new", h.AdminNewUser)
	console.POST("/users/new", h.AdminCreateUser)
	console.GET("/users/:id/edit", h.AdminEditUser)
	console.POST("/users/:id/edit", h.AdminUpdateUser)
	console.POST("/users/:id/delete", h.AdminDeleteUser)

	console.GET("/courses", h.AdminListCourses)
	console.GET("/courses/new", h.AdminNewCourse)
	console.POST("/courses/new", h.AdminCreateCourse)
	console.GET("/courses/:id/edit", h.AdminEditCourse)
	console.POST("/courses/:id/edit", h.AdminUpdateCourse)
	console.POST("/courses/:id/delete", h.AdminDeleteCourse)

	console.GET("/enrollments", h.AdminListEnrollments)
	console.GET("/enrollments/new", h.AdminNewEnrollment)
	console.POST("/enrollments/new", h.AdminCreateEnrollment)
	console.GET("/enrollments/:id/edit", h.AdminEditEnrollment)
	console.POST("/enrollments/:id/edit", h.AdminUpdateEnrollment)
	console.POST("/enrollments/:id/delete", h.AdminDeleteEnrollment)

	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	// counters reveal login and enrollment activity, so only administrators see them
	authed.GET("/metrics", middleware.Allow(policy.Administer), gin.WrapH(m.Handler()))

	return r, nil
}
