package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// IDValidator проверяет, что параметр пути — положительное целое число.
// Использование: router.GET("/escrows/:id", IDValidator("id"), handler.Get)
func IDValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		idStr := c.Param(paramName)
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "параметр " + paramName + " должен быть положительным числом",
			})
			return
		}

		c.Next()
	}
}
