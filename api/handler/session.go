package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/devsession/internal/service"
	"github.com/sshcollectorpro/devsession/pkg/logger"
)

// SessionHandler SSH 会话处理器
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Execute 执行命令批次
// @Summary 通过 SSH 在设备上执行命令批次
// @Description 按设备族选择 Direct Exec 或 Shell Replay；连接失败以单个 error 条目返回
// @Tags ssh
// @Accept json
// @Produce json
// @Param request body service.Request true "会话请求"
// @Success 200 {object} service.Result "执行结果"
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Router /api/v1/ssh [post]
func (h *SessionHandler) Execute(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}
	res, err := h.sessionService.Execute(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Test 测试连接
// @Router /api/v1/ssh/test [post]
func (h *SessionHandler) Test(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}
	res, err := h.sessionService.Test(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// FetchConfig 抓取并解析设备配置
// @Router /api/v1/ssh/config [post]
func (h *SessionHandler) FetchConfig(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}
	res, err := h.sessionService.FetchConfig(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListSessions 最近的会话记录
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	history := h.sessionService.History()
	if history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "HISTORY_DISABLED", Message: "会话历史未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := history.ListSessions(c.Query("host"), limit)
	if err != nil {
		logger.Error("Failed to list sessions", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": recs, "count": len(recs)})
}

// GetSession 会话详情（含条目）
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	history := h.sessionService.History()
	if history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "HISTORY_DISABLED", Message: "会话历史未启用"})
		return
	}
	id := c.Param("id")
	rec, err := history.GetSession(id)
	if errors.Is(err, service.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "会话不存在: " + id})
		return
	}
	if err != nil {
		logger.Error("Failed to get session", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// LatestSnapshot 主机最近一次解析快照
// @Router /api/v1/devices/{host}/snapshot [get]
func (h *SessionHandler) LatestSnapshot(c *gin.Context) {
	history := h.sessionService.History()
	if history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "HISTORY_DISABLED", Message: "会话历史未启用"})
		return
	}
	host := c.Param("host")
	snap, err := history.LatestSnapshot(host)
	if errors.Is(err, service.ErrSnapshotNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "SNAPSHOT_NOT_FOUND", Message: "设备快照不存在: " + host})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Health 健康检查
func (h *SessionHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Database: "disabled"}
	if history := h.sessionService.History(); history != nil {
		if err := history.Health(); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "ok"
	}
	c.JSON(http.StatusOK, resp)
}

func bindRequest(c *gin.Context) (service.Request, bool) {
	var req service.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "请求参数无效: " + err.Error(),
		})
		return req, false
	}
	return req, true
}

func respondServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_FAILED", Message: err.Error()})
		return
	}
	logger.Error("Session request failed", "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "EXECUTION_FAILED", Message: err.Error()})
}
