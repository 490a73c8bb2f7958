package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tspence/api-key-generator/internal/application/dto"
	"github.com/tspence/api-key-generator/internal/application/service"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/errors"
)

// KeyAuthenticator is the part of the application service the middleware needs.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, raw, remoteAddress string) (*apikey.PersistedKey, error)
}

// ExtractAPIKey reads the key from X-API-Key, or from an Authorization
// header using the ApiKey scheme.
func ExtractAPIKey(h http.Header) string {
	if key := strings.TrimSpace(h.Get(constants.HeaderAPIKey)); key != "" {
		return key
	}
	scheme, key, ok := strings.Cut(h.Get(constants.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, constants.AuthorizationScheme) {
		return ""
	}
	return strings.TrimSpace(key)
}

// RequireAPIKey authenticates the request's API key using the client IP as
// the source address. On success the persisted key is stored in the request
// context.
func RequireAPIKey(auth KeyAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ExtractAPIKey(c.Request.Header)
		if raw == "" {
			c.Header("WWW-Authenticate", constants.AuthorizationScheme)
			dto.SendError(c, errors.ErrInvalidKey(apikey.MsgEmptyKey))
			c.Abort()
			return
		}

		key, err := auth.Authenticate(c.Request.Context(), raw, c.ClientIP())
		if err != nil {
			if errors.IsInvalidKey(err) {
				c.Header("WWW-Authenticate", constants.AuthorizationScheme)
			}
			dto.SendError(c, err)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(service.ContextWithKey(c.Request.Context(), key))
		c.Next()
	}
}
