package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/application"
	"github.com/wyfcoding/riskgateway/pkg/logger"
)

// RiskHandler 负责处理风控网关的 HTTP 请求
type RiskHandler struct {
	gateway *application.RiskGateway
	admin   *application.RuleAdmin
}

// NewRiskHandler 创建 HTTP 处理器
func NewRiskHandler(gateway *application.RiskGateway, admin *application.RuleAdmin) *RiskHandler {
	return &RiskHandler{gateway: gateway, admin: admin}
}

// RegisterRoutes 注册路由
func (h *RiskHandler) RegisterRoutes(router *gin.RouterGroup, adminMiddleware ...gin.HandlerFunc) {
	api := router.Group("/api/v1/risk")
	{
		api.POST("/orders/check", h.CheckOrder)
		api.POST("/cancels/check", h.CheckCancel)
		api.POST("/events/fill", h.OnFill)
		api.POST("/events/cancel", h.OnCancelConfirmed)
		api.POST("/events/reject", h.OnRejectConfirmed)
		api.POST("/fees/estimate", h.EstimateFee)
		api.GET("/decisions/:order_id", h.ListDecisions)
	}

	admin := router.Group("/api/v1/risk/admin", adminMiddleware...)
	{
		admin.POST("/fee-rules", h.SaveFeeRule)
		admin.GET("/fee-rules", h.ListFeeRules)
		admin.DELETE("/fee-rules/:id", h.DeleteFeeRule)

		admin.POST("/flow-rules", h.SaveFlowCtrlRule)
		admin.GET("/flow-rules", h.ListFlowCtrlRules)
		admin.DELETE("/flow-rules/:rule_no", h.DeleteFlowCtrlRule)

		admin.POST("/self-trade-ranges", h.SaveSelfTradeRange)
		admin.GET("/self-trade-ranges", h.ListSelfTradeRanges)
		admin.DELETE("/self-trade-ranges/:id", h.DeleteSelfTradeRange)

		admin.POST("/pnl-ranges", h.SavePnlMonitorRange)
		admin.GET("/pnl-ranges", h.ListPnlMonitorRanges)
		admin.DELETE("/pnl-ranges/:id", h.DeletePnlMonitorRange)

		admin.POST("/symbol-lists", h.SaveSymbolListEntry)
		admin.GET("/symbol-lists", h.ListSymbolListEntries)
		admin.DELETE("/symbol-lists/:id", h.DeleteSymbolListEntry)
	}
}

// CheckOrder 委托事前检查。检查结论通过响应体的 status_code 表达，风控
// 拒绝仍返回 HTTP 200。
func (h *RiskHandler) CheckOrder(c *gin.Context) {
	var req application.OrderCheckDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	orderID, verdict := h.gateway.CheckOrder(c.Request.Context(), req.ToDomain())
	response.Success(c, application.NewVerdictDTO(orderID, verdict))
}

// CheckCancel 撤单事前检查
func (h *RiskHandler) CheckCancel(c *gin.Context) {
	var req application.CancelCheckDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	verdict := h.gateway.CheckCancel(c.Request.Context(), req.ToDomain())
	response.Success(c, application.NewVerdictDTO(req.OrderID, verdict))
}

// OnFill 成交回报：计算费用并更新在途数量
func (h *RiskHandler) OnFill(c *gin.Context) {
	var req application.FillEventDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	fee, err := h.gateway.OnOrderFilled(c.Request.Context(), req.ToDomain())
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to process fill event", "order_id", req.OrderID, "error", err)
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, err.Error(), "")
		return
	}

	response.Success(c, application.NewFeeDTO(fee, true))
}

// OnCancelConfirmed 撤单成交回报：在途订单出簿
func (h *RiskHandler) OnCancelConfirmed(c *gin.Context) {
	var req struct {
		OrderID uint64 `json:"order_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	h.gateway.OnOrderCanceled(c.Request.Context(), req.OrderID)
	response.Success(c, gin.H{"order_id": req.OrderID})
}

// OnRejectConfirmed 交易所拒单回报：累加拒单计数
func (h *RiskHandler) OnRejectConfirmed(c *gin.Context) {
	var req application.OrderCheckDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	if req.OrderID == 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "order_id is required", "")
		return
	}

	h.gateway.OnOrderRejected(c.Request.Context(), req.ToDomain())
	response.Success(c, gin.H{"order_id": req.OrderID})
}

// EstimateFee 按当前费率快照试算费用
func (h *RiskHandler) EstimateFee(c *gin.Context) {
	var req application.FillEventDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	fee, matched, err := h.gateway.EstimateFee(c.Request.Context(), req.ToDomain())
	if err != nil {
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, err.Error(), "")
		return
	}

	response.Success(c, application.NewFeeDTO(fee, matched))
}

// ListDecisions 查询某笔委托的风控决策审计记录
func (h *RiskHandler) ListDecisions(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid order_id", "")
		return
	}

	decisions, err := h.gateway.ListDecisions(c.Request.Context(), orderID)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list risk decisions", "order_id", orderID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}

	response.Success(c, decisions)
}

// SaveFeeRule 新增或更新费率规则
func (h *RiskHandler) SaveFeeRule(c *gin.Context) {
	var req application.FeeRuleDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := h.admin.SaveFeeRule(c.Request.Context(), &req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"saved": true})
}

// ListFeeRules 列出费率规则
func (h *RiskHandler) ListFeeRules(c *gin.Context) {
	rules, err := h.admin.ListFeeRules(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, rules)
}

// DeleteFeeRule 删除费率规则
func (h *RiskHandler) DeleteFeeRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid id", "")
		return
	}
	if err := h.admin.DeleteFeeRule(c.Request.Context(), id); err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// SaveFlowCtrlRule 新增或更新流控规则
func (h *RiskHandler) SaveFlowCtrlRule(c *gin.Context) {
	var req application.FlowCtrlRuleDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := h.admin.SaveFlowCtrlRule(c.Request.Context(), &req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"saved": true})
}

// ListFlowCtrlRules 列出流控规则
func (h *RiskHandler) ListFlowCtrlRules(c *gin.Context) {
	rules, err := h.admin.ListFlowCtrlRules(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, rules)
}

// DeleteFlowCtrlRule 删除流控规则
func (h *RiskHandler) DeleteFlowCtrlRule(c *gin.Context) {
	ruleNo, err := strconv.ParseInt(c.Param("rule_no"), 10, 32)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid rule_no", "")
		return
	}
	if err := h.admin.DeleteFlowCtrlRule(c.Request.Context(), int32(ruleNo)); err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// SaveSelfTradeRange 新增或更新自成交防护范围
func (h *RiskHandler) SaveSelfTradeRange(c *gin.Context) {
	var req application.SelfTradeRangeDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := h.admin.SaveSelfTradeRange(c.Request.Context(), &req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"saved": true})
}

// ListSelfTradeRanges 列出自成交防护范围
func (h *RiskHandler) ListSelfTradeRanges(c *gin.Context) {
	ranges, err := h.admin.ListSelfTradeRanges(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, ranges)
}

// DeleteSelfTradeRange 删除自成交防护范围
func (h *RiskHandler) DeleteSelfTradeRange(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid id", "")
		return
	}
	if err := h.admin.DeleteSelfTradeRange(c.Request.Context(), id); err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// SavePnlMonitorRange 新增或更新盈亏监控范围
func (h *RiskHandler) SavePnlMonitorRange(c *gin.Context) {
	var req application.PnlMonitorRangeDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := h.admin.SavePnlMonitorRange(c.Request.Context(), &req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"saved": true})
}

// ListPnlMonitorRanges 列出盈亏监控范围
func (h *RiskHandler) ListPnlMonitorRanges(c *gin.Context) {
	ranges, err := h.admin.ListPnlMonitorRanges(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, ranges)
}

// DeletePnlMonitorRange 删除盈亏监控范围
func (h *RiskHandler) DeletePnlMonitorRange(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid id", "")
		return
	}
	if err := h.admin.DeletePnlMonitorRange(c.Request.Context(), id); err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// SaveSymbolListEntry 新增或更新黑白名单条目
func (h *RiskHandler) SaveSymbolListEntry(c *gin.Context) {
	var req application.SymbolListEntryDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := h.admin.SaveSymbolListEntry(c.Request.Context(), &req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"saved": true})
}

// ListSymbolListEntries 列出黑白名单条目
func (h *RiskHandler) ListSymbolListEntries(c *gin.Context) {
	entries, err := h.admin.ListSymbolListEntries(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, entries)
}

// DeleteSymbolListEntry 删除黑白名单条目
func (h *RiskHandler) DeleteSymbolListEntry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid id", "")
		return
	}
	if err := h.admin.DeleteSymbolListEntry(c.Request.Context(), id); err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"deleted": true})
}
