package domain

// 状态码约定：0 表示放行；10001~20000 为风控拒绝码，其中流控拒绝直接使用
// 触发规则自身的规则号；负数为引擎内部故障，与风控拒绝严格区分。
const (
	StatusOK int32 = 0

	// 自成交
	StatusSelfTradeOfBid int32 = 18021
	StatusSelfTradeOfAsk int32 = 18022

	// 黑白名单
	StatusNotInWhiteList int32 = 18031
	StatusInBlackList    int32 = 18032

	// PnL 监控
	StatusPnlIsNull      int32 = 18041
	StatusPnlIsTimeout   int32 = 18042
	StatusPnlExceedLimit int32 = 18043

	// 内部故障
	StatusInternalError    int32 = -1001
	StatusRulesUnavailable int32 = -1002
	StatusInvalidRequest   int32 = -1003
)

// 风控码的有效区间。
const (
	RiskCodeMin int32 = 10001
	RiskCodeMax int32 = 20000
)

// 规则族名，用于决策审计与指标维度。
const (
	FamilySymbolList = "symbol_list"
	FamilySelfTrade  = "self_trade"
	FamilyFlowCtrl   = "flow_ctrl"
	FamilyPnlMonitor = "pnl_monitor"
	FamilyGateway    = "gateway"
)

var statusMessages = map[int32]string{
	StatusOK:               "ok",
	StatusSelfTradeOfBid:   "self trade of bid",
	StatusSelfTradeOfAsk:   "self trade of ask",
	StatusNotInWhiteList:   "not in white list",
	StatusInBlackList:      "in black list",
	StatusPnlIsNull:        "pnl is null",
	StatusPnlIsTimeout:     "pnl is timeout",
	StatusPnlExceedLimit:   "pnl exceed limit",
	StatusInternalError:    "internal error",
	StatusRulesUnavailable: "rules unavailable",
	StatusInvalidRequest:   "invalid request",
}

// StatusMessage 返回状态码的描述。流控码返回统一描述。
func StatusMessage(code int32) string {
	if msg, ok := statusMessages[code]; ok {
		return msg
	}
	if IsRiskCode(code) {
		return "flow ctrl triggered"
	}
	return "unknown status"
}

// IsRiskCode 是否为风控拒绝码。
func IsRiskCode(code int32) bool {
	return code >= RiskCodeMin && code <= RiskCodeMax
}
