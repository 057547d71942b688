package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/devsession/internal/parser"
	"github.com/sshcollectorpro/devsession/pkg/device"
)

// ParseRequest 离线解析请求
type ParseRequest struct {
	DeviceFamily string `json:"deviceFamily" binding:"required"`
	Config       string `json:"config" binding:"required"`
}

// Parse 将配置文本解析为设备模型，解析失败返回 422
// @Router /api/v1/parse [post]
func Parse(c *gin.Context) {
	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_PARAMS", Message: "请求参数无效: " + err.Error()})
		return
	}
	dm, err := parser.Parse(device.ParseFamily(req.DeviceFamily), req.Config)
	if errors.Is(err, parser.ErrParse) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Code: "PARSE_FAILED", Message: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "PARSE_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": dm})
}
