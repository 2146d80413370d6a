package auth

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/diary/internal/middleware"
	"github.com/mx-space/diary/internal/pkg/response"
)

type LoginDTO struct {
	Password string `json:"password" binding:"required"`
}

type ChangePasswordDTO struct {
	Current string `json:"current" binding:"required"`
	Next    string `json:"next"    binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts /auth. loginMW guards the login route, usually a rate
// limiter; optionalMW marks requests carrying a valid token.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, optionalMW gin.HandlerFunc, loginMW ...gin.HandlerFunc) {
	a := rg.Group("/auth")

	a.POST("/login", append(loginMW, h.login)...)
	a.POST("/logout", authMW, h.logout)
	a.GET("/check", optionalMW, h.check)
	a.PUT("/password", authMW, h.changePassword)
}

// POST /auth/login
func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, sess, err := h.svc.Login(c.Request.Context(), dto.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, loginResponse{Token: token, ExpiresAt: sess.ExpiresAt})
}

// POST /auth/logout
func (h *Handler) logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.CurrentSessionID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GET /auth/check
func (h *Handler) check(c *gin.Context) {
	if !middleware.IsAuthenticated(c) {
		response.OK(c, gin.H{"ok": false})
		return
	}
	sess, err := h.svc.Check(c.Request.Context(), middleware.CurrentSessionID(c))
	if err != nil {
		response.OK(c, gin.H{"ok": false})
		return
	}
	response.OK(c, gin.H{"ok": true, "expiresAt": sess.ExpiresAt})
}

// PUT /auth/password
func (h *Handler) changePassword(c *gin.Context) {
	var dto ChangePasswordDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), middleware.CurrentSessionID(c), dto.Current, dto.Next); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
