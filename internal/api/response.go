package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/logger"
	"github.com/wfunc/card-battle/internal/middleware"
	"go.uber.org/zap"
)

// respond 成功响应，统一带 success 字段
func respond(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

// respondError 错误响应，状态码由错误码决定
func respondError(c *gin.Context, err error) {
	if apperrors.KindOf(err) == apperrors.KindInternal {
		logger.WithModule("http").Error("请求处理失败",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
			zap.String("stack", apperrors.StackOf(err)))
	}
	c.JSON(apperrors.HTTPStatusOf(err), apperrors.NewErrorResponse(err))
}

// bindError 请求体解析失败
func bindError(c *gin.Context, err error) {
	respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam, "Invalid request body"))
}

// currentUser 取认证用户，RequireAuth之后必然存在
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apperrors.NewErrorResponse(
			apperrors.New(apperrors.ErrAuthentication, "Missing bearer token")))
	}
	return userID, ok
}
