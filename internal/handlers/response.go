package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/CampusLink/internal/errs"
)

// httpStatus 业务错误分类到 HTTP 状态码的映射
func httpStatus(err error) int {
	switch {
	case errors.Is(err, errs.KindValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.KindConflict),
		errors.Is(err, errs.KindCapacityExceeded),
		errors.Is(err, errs.KindInvalidState):
		return http.StatusConflict
	case errors.Is(err, errs.KindForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.KindNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.KindRateLimited),
		errors.Is(err, errs.KindQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.KindUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{
		"error": err.Error(),
	})
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

// currentUserID 从认证中间件写入的 context 里取用户ID
func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	id, ok := v.(uint)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	return id, true
}

// pathID 解析路径参数里的数字ID
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// pagination 解析分页参数，缺省 page=1、page_size=20，上限 100
func pagination(c *gin.Context) (int, int) {
	page := 1
	pageSize := 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}
