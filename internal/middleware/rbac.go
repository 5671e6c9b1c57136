package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/response"
)

// RequireRole checks that the JWT holder has one of the given roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, response.ErrProctorAccessOnly)
	}
}
