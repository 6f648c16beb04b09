package handlers

import (
	"errors"
	"net/http"

	"github.com/acme/enrollment/internal/auth"
	"github.com/acme/enrollment/internal/middleware"

	"github.com/gin-gonic/gin"
)

const msgInvalidLogin = "Invalid username or password"

func (h *Handler) Index(c *gin.Context) {
	if _, ok := middleware.CurrentUser(c); ok {
		redirect(c, "/dashboard")
		return
	}
	redirect(c, "/login")
}

func (h *Handler) ShowLogin(c *gin.Context) {
	if _, ok := middleware.CurrentUser(c); ok {
		redirect(c, "/dashboard")
		return
	}
	render(c, http.StatusOK, "login.html", gin.H{"Title": "Log in"})
}

type loginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		render(c, http.StatusBadRequest, "login.html", gin.H{"error": msgInvalidLogin})
		return
	}

	if _, err := h.auth.Login(c, form.Username, form.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.metrics.Login("invalid")
			h.log.Info("login rejected", "username", form.Username, "ip", c.ClientIP())
			render(c, http.StatusUnauthorized, "login.html", gin.H{
				"error":    msgInvalidLogin,
				"username": form.Username,
			})
			return
		}
		h.metrics.Login("error")
		h.internalError(c, "login", err)
		return
	}

	h.metrics.Login("ok")
	redirect(c, "/dashboard")
}

// LoginLimited answers a login attempt refused by the rate limiter.
func (h *Handler) LoginLimited(c *gin.Context) {
	h.metrics.Login("rate_limited")
	render(c, http.StatusTooManyRequests, "login.html", gin.H{
		"error": "Too many login attempts. Try again later.",
	})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c); err != nil {
		h.log.Warn("logout", "err", err)
	}
	redirect(c, "/login")
}
