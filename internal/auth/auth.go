// Package auth verifies credentials and binds the authenticated user id to
// the cookie session.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/acme/enrollment/internal/models"
	"github.com/acme/enrollment/internal/password"

	charmlog "github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ErrInvalidCredentials is returned for an unknown username and for a wrong
// password alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

const sessionUserKey = "user_id"

type Service struct {
	db  *gorm.DB
	log *charmlog.Logger
}

func NewService(db *gorm.DB, log *charmlog.Logger) *Service {
	return &Service{db: db, log: log}
}

// Authenticate looks the user up by exact username and checks the password.
func (s *Service) Authenticate(ctx context.Context, username, plain string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			password.Burn(plain)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !password.Matches(user.PasswordHash, plain) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Login authenticates and, on success, starts a fresh session for the user.
func (s *Service) Login(c *gin.Context, username, plain string) (*models.User, error) {
	user, err := s.Authenticate(c.Request.Context(), username, plain)
	if err != nil {
		return nil, err
	}

	sess := sessions.Default(c)
	sess.Clear()
	sess.Set(sessionUserKey, user.ID)
	if err := sess.Save(); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.log.Info("user logged in", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Logout destroys the session.
func (s *Service) Logout(c *gin.Context) error {
	sess := sessions.Default(c)
	if uid, ok := sess.Get(sessionUserKey).(uint); ok {
		s.log.Info("user logged out", "user_id", uid)
	}
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	return sess.Save()
}

// CurrentUser resolves the session's user. A session pointing at a user that
// no longer exists is cleared.
func (s *Service) CurrentUser(c *gin.Context) (*models.User, bool) {
	sess := sessions.Default(c)
	uid, ok := sess.Get(sessionUserKey).(uint)
	if !ok || uid == 0 {
		return nil, false
	}

	var user models.User
	if err := s.db.WithContext(c.Request.Context()).First(&user, uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			sess.Clear()
			_ = sess.Save()
		} else {
			s.log.Error("load session user", "user_id", uid, "err", err)
		}
		return nil, false
	}
	return &user, true
}
