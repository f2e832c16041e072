package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clearsure/certledger/internal/auth"
)

// AdminAuth middleware checks for the admin token
func AdminAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Admin-Token")

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Admin token required",
			})
			c.Abort()
			return
		}

		if !auth.VerifyToken(token, adminToken) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
