package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ksred/tradejournal/pkg/response"
)

// SessionCookie names the cookie carrying the opaque session token.
const SessionCookie = "journal_session"

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service       *Service
	secureCookies bool
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service, secureCookies bool) *GinHandlers {
	return &GinHandlers{
		service:       service,
		secureCookies: secureCookies,
	}
}

// RegisterHandler handles POST requests creating a new identity
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var reg Registration
		if err := c.ShouldBindJSON(&reg); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		user, err := h.service.Register(c.Request.Context(), reg)
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			response.Conflict(c, err.Error())
			return
		case errors.Is(err, ErrWeakCredential):
			response.ValidationFailed(c, map[string][]string{"password": {err.Error()}})
			return
		}
		response.Handle(c, user, err)
	}
}

// LoginHandler handles POST requests opening a session. The session token is
// returned as an HttpOnly cookie.
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil || creds.Username == "" || creds.Password == "" {
			response.BadRequest(c, "Both fields are required.")
			return
		}

		user, token, err := h.service.Login(c.Request.Context(), creds.Username, creds.Password)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, "Invalid username or password.")
			return
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		h.setSessionCookie(c, token, int(h.service.SessionTTL().Seconds()))
		c.JSON(http.StatusOK, response.Response{Success: true, Data: user})
	}
}

// LogoutHandler handles POST requests ending the current session
func (h *GinHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(SessionCookie)
		if err := h.service.Logout(c.Request.Context(), token); err != nil {
			response.Handle(c, nil, err)
			return
		}
		h.setSessionCookie(c, "", -1)
		c.JSON(http.StatusOK, response.Response{Success: true})
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
// Request body should contain username and password
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(c.Request.Context(), creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		c.JSON(http.StatusOK, response.Response{Success: true, Data: token})
	}
}

// MeHandler returns the profile of the current identity
func (h *GinHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c).(Authenticated)
		if !ok {
			response.Unauthorized(c, "Authentication required")
			return
		}

		user, err := h.service.FindByID(c.Request.Context(), id.ID)
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, user, err)
	}
}

// UpdateProfileHandler handles PATCH requests editing the current profile
func (h *GinHandlers) UpdateProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c).(Authenticated)
		if !ok {
			response.Unauthorized(c, "Authentication required")
			return
		}

		var update ProfileUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		user, err := h.service.UpdateProfile(c.Request.Context(), id.ID, update)
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, user, err)
	}
}

func (h *GinHandlers) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, value, maxAge, "/", "", h.secureCookies, true)
}
