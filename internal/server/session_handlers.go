package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/abduss/labportal/internal/access"
	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/config"
	"github.com/abduss/labportal/internal/logger"
	"github.com/abduss/labportal/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func registerSessionRoutes(router *gin.RouterGroup, deps Dependencies, portal *portal) {
	h := &sessionHandler{
		ctrl:    deps.Session,
		cfg:     deps.Config,
		portal:  portal,
		nowFunc: time.Now,
	}

	group := router.Group("/session")
	{
		group.GET("", h.show)
		group.POST("/login", h.login)
		group.POST("/register", h.register)
		group.POST("/logout", h.logout)
		group.POST("/refresh", h.refresh)
		group.POST("/activity", h.activity)
		group.PUT("/profile", h.updateProfile)
		group.PUT("/password", h.changePassword)
		group.DELETE("/error", h.clearError)
	}
}

type sessionHandler struct {
	ctrl    *session.Controller
	cfg     config.Config
	portal  *portal
	nowFunc func() time.Time
}

type errorView struct {
	Kind    string              `json:"kind"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

type sessionView struct {
	Status         string                     `json:"status"`
	Authenticated  bool                       `json:"authenticated"`
	Loading        bool                       `json:"loading"`
	SessionID      string                     `json:"session_id,omitempty"`
	User           *auth.User                 `json:"user,omitempty"`
	Role           auth.Role                  `json:"role,omitempty"`
	Permissions    []string                   `json:"permissions"`
	LastActivity   *time.Time                 `json:"last_activity,omitempty"`
	ExpiresIn      int64                      `json:"expires_in_seconds"`
	Expiring       bool                       `json:"expiring"`
	FailedAttempts int                        `json:"failed_attempts"`
	Error          *errorView                 `json:"error,omitempty"`
	Regions        map[string]access.Decision `json:"regions,omitempty"`
}

func (h *sessionHandler) view() sessionView {
	st := h.ctrl.State()
	v := sessionView{
		Status:         st.Status().String(),
		Authenticated:  st.IsAuthenticated,
		Loading:        st.IsLoading,
		SessionID:      st.SessionID,
		User:           st.User,
		Role:           st.Role(),
		Permissions:    st.Permissions.Keys(),
		ExpiresIn:      int64(math.Ceil(h.ctrl.TimeUntilExpiry().Seconds())),
		Expiring:       h.ctrl.IsSessionExpiring(),
		FailedAttempts: st.FailedAttempts,
		Regions:        h.portal.decisions(),
	}
	if !st.LastActivity.IsZero() {
		at := st.LastActivity
		v.LastActivity = &at
	}
	if st.Err != nil {
		v.Error = newErrorView(st.Err)
	}
	return v
}

func newErrorView(err error) *errorView {
	v := &errorView{Kind: auth.KindOf(err).String(), Message: err.Error()}
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		if authErr.Message != "" {
			v.Message = authErr.Message
		}
		v.Fields = authErr.Fields
	}
	return v
}

func (h *sessionHandler) show(c *gin.Context) {
	c.JSON(http.StatusOK, h.view())
}

func (h *sessionHandler) login(c *gin.Context) {
	if h.lockedOut(c) {
		return
	}
	var req auth.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ctrl.Login(c.Request.Context(), req); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view())
}

func (h *sessionHandler) register(c *gin.Context) {
	if h.lockedOut(c) {
		return
	}
	var req auth.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ctrl.Register(c.Request.Context(), req); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view())
}

func (h *sessionHandler) logout(c *gin.Context) {
	h.ctrl.Logout(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *sessionHandler) refresh(c *gin.Context) {
	if err := h.ctrl.Refresh(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view())
}

type activityRequest struct {
	Signal string `json:"signal"`
}

func (h *sessionHandler) activity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, ok := session.ParseSignal(req.Signal)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown activity signal"})
		return
	}
	if !h.ctrl.State().IsAuthenticated {
		h.writeError(c, session.ErrNotAuthenticated)
		return
	}

	recorded := h.ctrl.RecordSignal(sig)
	c.JSON(http.StatusOK, gin.H{
		"recorded":           recorded,
		"expires_in_seconds": int64(math.Ceil(h.ctrl.TimeUntilExpiry().Seconds())),
	})
}

func (h *sessionHandler) updateProfile(c *gin.Context) {
	var req auth.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.ctrl.UpdateProfile(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *sessionHandler) changePassword(c *gin.Context) {
	var req auth.PasswordChange
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ctrl.ChangePassword(c.Request.Context(), req); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *sessionHandler) clearError(c *gin.Context) {
	h.ctrl.ClearError()
	c.Status(http.StatusNoContent)
}

func (h *sessionHandler) lockedOut(c *gin.Context) bool {
	remaining := lockoutRemaining(h.ctrl.State(), h.cfg.Session, h.nowFunc())
	if remaining <= 0 {
		return false
	}
	c.Header("Retry-After", strconv.Itoa(int(math.Ceil(remaining.Seconds()))))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many failed attempts"})
	return true
}

func (h *sessionHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrOperationInProgress), errors.Is(err, session.ErrSessionSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, session.ErrNoRefreshToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	view := newErrorView(err)
	status := http.StatusInternalServerError
	switch auth.KindOf(err) {
	case auth.KindInvalidCredentials, auth.KindUnauthorized:
		status = http.StatusUnauthorized
	case auth.KindForbidden:
		status = http.StatusForbidden
	case auth.KindValidation:
		status = http.StatusUnprocessableEntity
	case auth.KindNetwork:
		status = http.StatusBadGateway
	default:
		logger.FromContext(c).Error("session operation failed", zap.Error(err))
		view.Message = "internal error"
	}
	c.JSON(status, gin.H{"error": view})
}
