package middleware

import (
	"errors"

	"creatorfund-core/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error as the errutil JSON envelope.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		status := errutil.StatusOf(last.Err)
		c.JSON(status.HTTPStatus(), gin.H{
			"error": gin.H{
				"code":    status,
				"message": last.Error(),
			},
		})
	}
}
