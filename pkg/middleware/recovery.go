package middleware

import (
	"fmt"
	"log"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/minutes/pkg/apperror"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニックは内部エラーとして分類し、スタックトレースをログに出力して500を返す。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			appErr := apperror.Internal("internal server error", fmt.Errorf("panic: %v", r))
			log.Printf("[PANIC] %s %s: %v\n%s", c.Request.Method, c.Request.URL.Path, appErr, debug.Stack())
			c.AbortWithStatusJSON(apperror.HTTPStatus(appErr.Kind), appErr.Body())
		}()
		c.Next()
	}
}
