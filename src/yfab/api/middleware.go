package api

import (
	"net/http"
	"strings"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/yfab/auth"
	"github.com/gin-gonic/gin"
)

// tokenFromRequest extracts the bearer token from the X-Subject-Token
// header, the Authorization header or, for EventSource clients that cannot
// set headers, the token query parameter
func tokenFromRequest(c *gin.Context) string {
	token := c.GetHeader("X-Subject-Token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = authHeader[len("Bearer "):]
		}
	}
	if token == "" {
		token = c.Query("token")
	}
	return token
}

// writeAccessRequired is a middleware that requires a valid JWT token
func (a *API) writeAccessRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ErrNoToken.ToResponse())
			return
		}

		claims, err := a.jwtService.ValidateToken(token)
		if err != nil {
			msg := "Invalid token"
			if err == auth.ErrExpiredToken {
				msg = "Token has expired, mint a new one with `yfab token`"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ErrTokenInvalid.WithMessage(msg).ToResponse())
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

// subject returns the token subject stored by the auth middleware
func subject(c *gin.Context) string {
	if v, ok := c.Get("claims"); ok {
		if claims, ok := v.(*auth.TokenClaims); ok {
			return claims.Subject
		}
	}
	return ""
}

// respondError writes err with its HTTP status
func respondError(c *gin.Context, err error) {
	c.JSON(errors.GetHTTPStatus(err), errors.NewResponse(err))
}
