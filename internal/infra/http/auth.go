package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

const principalContextKey = "principal"

// requireAuth resolves the bearer token into a principal and aborts with 401
// on any failure. The principal binds the request to one student on one
// enrolled device.
func (s *Server) requireAuth(c *gin.Context) {
	if s.authInitErr != nil || s.tokens == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		c.Abort()
		return
	}
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		c.Abort()
		return
	}
	principal, err := s.tokens.Verify(token)
	if err != nil {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
		c.Abort()
		return
	}
	c.Set(principalContextKey, principal)
	c.Next()
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

func getPrincipal(c *gin.Context) (domain.Principal, bool) {
	raw, ok := c.Get(principalContextKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := raw.(domain.Principal)
	return principal, ok
}
