package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FlowCtrlTarget 流控目标，决定规则统计什么。
type FlowCtrlTarget string

const (
	TargetOrderSizeEachTime FlowCtrlTarget = "OrderSizeEachTime"
	TargetOrderSizeTotal    FlowCtrlTarget = "OrderSizeTotal"
	TargetOrderAmtEachTime  FlowCtrlTarget = "OrderAmtEachTime"
	TargetOrderAmtTotal     FlowCtrlTarget = "OrderAmtTotal"

	TargetOrderTimesTotal       FlowCtrlTarget = "OrderTimesTotal"
	TargetOrderTimesWithinTime  FlowCtrlTarget = "OrderTimesWithinTime"
	TargetCancelTimesTotal      FlowCtrlTarget = "CancelOrderTimesTotal"
	TargetCancelTimesWithinTime FlowCtrlTarget = "CancelOrderTimesWithinTime"
	TargetRejectTimesTotal      FlowCtrlTarget = "RejectOrderTimesTotal"
	TargetRejectTimesWithinTime FlowCtrlTarget = "RejectOrderTimesWithinTime"

	TargetHoldVolTotal  FlowCtrlTarget = "HoldVolTotal"
	TargetHoldAmtTotal  FlowCtrlTarget = "HoldAmtTotal"
	TargetOpenTDayTotal FlowCtrlTarget = "OpenTDayTotal"
)

// LimitType 阈值类型。
type LimitType int

const (
	// LimitEachTime 单笔阈值
	LimitEachTime LimitType = iota
	// LimitTotal 累计阈值
	LimitTotal
	// LimitWithinTime 滑动窗口阈值，形如 "N/Wms"
	LimitWithinTime
)

// LimitType 返回目标对应的阈值类型。
func (t FlowCtrlTarget) LimitType() LimitType {
	switch t {
	case TargetOrderSizeEachTime, TargetOrderAmtEachTime:
		return LimitEachTime
	case TargetOrderTimesWithinTime, TargetCancelTimesWithinTime, TargetRejectTimesWithinTime:
		return LimitWithinTime
	default:
		return LimitTotal
	}
}

// AppliesToCancel 目标是否作用于撤单请求。
func (t FlowCtrlTarget) AppliesToCancel() bool {
	return t == TargetCancelTimesTotal || t == TargetCancelTimesWithinTime
}

// AppliesToOrder 目标是否作用于委托请求。
func (t FlowCtrlTarget) AppliesToOrder() bool {
	return !t.AppliesToCancel()
}

// DailyScoped 计数器是否按交易日归零。
func (t FlowCtrlTarget) DailyScoped() bool {
	return t == TargetOpenTDayTotal
}

// Valid 目标是否合法。
func (t FlowCtrlTarget) Valid() bool {
	switch t {
	case TargetOrderSizeEachTime, TargetOrderSizeTotal,
		TargetOrderAmtEachTime, TargetOrderAmtTotal,
		TargetOrderTimesTotal, TargetOrderTimesWithinTime,
		TargetCancelTimesTotal, TargetCancelTimesWithinTime,
		TargetRejectTimesTotal, TargetRejectTimesWithinTime,
		TargetHoldVolTotal, TargetHoldAmtTotal, TargetOpenTDayTotal:
		return true
	}
	return false
}

// WindowLimit 滑动窗口阈值：窗口 W 毫秒内最多 N 个事件。
type WindowLimit struct {
	Count    int
	WindowMs int64
}

// FlowCtrlRule 一条流控规则。触发时的状态码即规则号本身。
type FlowCtrlRule struct {
	RuleNo    int32
	Name      string
	Target    FlowCtrlTarget
	Condition Condition
	// LimitValue 单笔/累计阈值，窗口规则不使用
	LimitValue decimal.Decimal
	// Window 窗口阈值，仅 WithinTime 规则使用
	Window WindowLimit
}

// ParseFlowCtrlLimit 解析规则阈值表达式。窗口型为 "N/Wms"，其余为十进制数。
func ParseFlowCtrlLimit(target FlowCtrlTarget, raw string) (decimal.Decimal, WindowLimit, error) {
	raw = strings.TrimSpace(raw)
	if target.LimitType() == LimitWithinTime {
		countStr, windowStr, ok := strings.Cut(raw, "/")
		if !ok {
			return decimal.Zero, WindowLimit{}, fmt.Errorf("windowed limit %q must be of form N/Wms", raw)
		}
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || count <= 0 {
			return decimal.Zero, WindowLimit{}, fmt.Errorf("invalid window count in %q", raw)
		}
		windowStr = strings.TrimSpace(windowStr)
		msStr, ok := strings.CutSuffix(windowStr, "ms")
		if !ok {
			return decimal.Zero, WindowLimit{}, fmt.Errorf("window in %q must end with ms", raw)
		}
		ms, err := strconv.ParseInt(msStr, 10, 64)
		if err != nil || ms <= 0 {
			return decimal.Zero, WindowLimit{}, fmt.Errorf("invalid window duration in %q", raw)
		}
		return decimal.Zero, WindowLimit{Count: count, WindowMs: ms}, nil
	}

	limit, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, WindowLimit{}, fmt.Errorf("invalid limit value %q: %w", raw, err)
	}
	return limit, WindowLimit{}, nil
}

// FlowControlEvaluator 流控评估器。逐条检查命中请求范围的规则，第一条
// 被触发的规则号即拒绝码。评估本身不落账，放行后由网关调用 Commit 系列
// 方法提交本次请求的贡献量。
type FlowControlEvaluator struct{}

func NewFlowControlEvaluator() *FlowControlEvaluator {
	return &FlowControlEvaluator{}
}

func (e *FlowControlEvaluator) Name() string { return FamilyFlowCtrl }

// EvaluateOrder 对委托请求执行流控检查。
func (e *FlowControlEvaluator) EvaluateOrder(req *OrderRequest, snap *RuleSnapshot, ledger CounterLedger, now time.Time) Verdict {
	fields := req.ConditionFields()
	for _, rule := range snap.FlowCtrlRules {
		if !rule.Target.AppliesToOrder() {
			continue
		}
		if !rule.Condition.Matches(fields) {
			continue
		}
		if v := e.checkOrderRule(rule, req, fields, ledger, now); !v.Accepted() {
			return v
		}
	}
	return Accept()
}

// EvaluateCancel 对撤单请求执行流控检查。仅撤单族目标参与。
func (e *FlowControlEvaluator) EvaluateCancel(req *CancelRequest, snap *RuleSnapshot, ledger CounterLedger, now time.Time) Verdict {
	fields := req.ConditionFields()
	for _, rule := range snap.FlowCtrlRules {
		if !rule.Target.AppliesToCancel() {
			continue
		}
		if !rule.Condition.Matches(fields) {
			continue
		}
		scope := rule.Condition.ScopeKey(fields)
		switch rule.Target {
		case TargetCancelTimesTotal:
			prior := ledger.Cumulative(rule.RuleNo, scope, false, now)
			if prior.Add(decimal.NewFromInt(1)).GreaterThan(rule.LimitValue) {
				return e.reject(rule, prior.String())
			}
		case TargetCancelTimesWithinTime:
			if ledger.WindowTriggered(rule.RuleNo, scope, rule.Window, now) {
				return e.reject(rule, "cancel rate exceeded")
			}
		}
	}
	return Accept()
}

func (e *FlowControlEvaluator) checkOrderRule(rule *FlowCtrlRule, req *OrderRequest, fields map[string]string, ledger CounterLedger, now time.Time) Verdict {
	scope := rule.Condition.ScopeKey(fields)
	one := decimal.NewFromInt(1)

	switch rule.Target {
	case TargetOrderSizeEachTime:
		if req.Size.GreaterThan(rule.LimitValue) {
			return e.reject(rule, req.Size.String())
		}
	case TargetOrderAmtEachTime:
		if req.Notional().GreaterThan(rule.LimitValue) {
			return e.reject(rule, req.Notional().String())
		}

	case TargetOrderSizeTotal:
		if exceeds(ledger.Cumulative(rule.RuleNo, scope, false, now), req.Size, rule.LimitValue) {
			return e.reject(rule, "cumulative order size exceeded")
		}
	case TargetOrderAmtTotal:
		if exceeds(ledger.Cumulative(rule.RuleNo, scope, false, now), req.Notional(), rule.LimitValue) {
			return e.reject(rule, "cumulative order amount exceeded")
		}
	case TargetOrderTimesTotal:
		if exceeds(ledger.Cumulative(rule.RuleNo, scope, false, now), one, rule.LimitValue) {
			return e.reject(rule, "cumulative order count exceeded")
		}
	case TargetRejectTimesTotal:
		// 拒单计数在拒绝确认时落账，这里只看存量
		if ledger.Cumulative(rule.RuleNo, scope, false, now).GreaterThan(rule.LimitValue) {
			return e.reject(rule, "cumulative reject count exceeded")
		}

	case TargetOrderTimesWithinTime:
		if ledger.WindowTriggered(rule.RuleNo, scope, rule.Window, now) {
			return e.reject(rule, "order rate exceeded")
		}
	case TargetRejectTimesWithinTime:
		if ledger.WindowTriggered(rule.RuleNo, scope, rule.Window, now) {
			return e.reject(rule, "reject rate exceeded")
		}

	case TargetHoldVolTotal:
		vol, _ := ledger.HoldExposure(rule.Condition, fields)
		if exceeds(vol, req.Size, rule.LimitValue) {
			return e.reject(rule, "holding volume exceeded")
		}
	case TargetHoldAmtTotal:
		_, amt := ledger.HoldExposure(rule.Condition, fields)
		if exceeds(amt, req.Notional(), rule.LimitValue) {
			return e.reject(rule, "holding amount exceeded")
		}
	case TargetOpenTDayTotal:
		if !req.IsOpening() {
			break
		}
		if exceeds(ledger.Cumulative(rule.RuleNo, scope, true, now), req.Size, rule.LimitValue) {
			return e.reject(rule, "intraday open volume exceeded")
		}
	}
	return Accept()
}

// CommitOrder 将已放行委托的贡献量落账。必须在该 scope 的锁内调用。
func (e *FlowControlEvaluator) CommitOrder(req *OrderRequest, snap *RuleSnapshot, ledger CounterLedger, now time.Time) {
	fields := req.ConditionFields()
	one := decimal.NewFromInt(1)
	for _, rule := range snap.FlowCtrlRules {
		if !rule.Target.AppliesToOrder() || !rule.Condition.Matches(fields) {
			continue
		}
		scope := rule.Condition.ScopeKey(fields)
		switch rule.Target {
		case TargetOrderSizeTotal:
			ledger.AddCumulative(rule.RuleNo, scope, req.Size, false, now)
		case TargetOrderAmtTotal:
			ledger.AddCumulative(rule.RuleNo, scope, req.Notional(), false, now)
		case TargetOrderTimesTotal:
			ledger.AddCumulative(rule.RuleNo, scope, one, false, now)
		case TargetOrderTimesWithinTime:
			ledger.CommitWindow(rule.RuleNo, scope, rule.Window, now)
		case TargetOpenTDayTotal:
			if req.IsOpening() {
				ledger.AddCumulative(rule.RuleNo, scope, req.Size, true, now)
			}
		}
	}
}

// CommitCancel 将已放行撤单的贡献量落账。
func (e *FlowControlEvaluator) CommitCancel(req *CancelRequest, snap *RuleSnapshot, ledger CounterLedger, now time.Time) {
	fields := req.ConditionFields()
	one := decimal.NewFromInt(1)
	for _, rule := range snap.FlowCtrlRules {
		if !rule.Target.AppliesToCancel() || !rule.Condition.Matches(fields) {
			continue
		}
		scope := rule.Condition.ScopeKey(fields)
		switch rule.Target {
		case TargetCancelTimesTotal:
			ledger.AddCumulative(rule.RuleNo, scope, one, false, now)
		case TargetCancelTimesWithinTime:
			ledger.CommitWindow(rule.RuleNo, scope, rule.Window, now)
		}
	}
}

// CommitReject 在收到拒单确认后累加拒单计数。
func (e *FlowControlEvaluator) CommitReject(fields map[string]string, snap *RuleSnapshot, ledger CounterLedger, now time.Time) {
	one := decimal.NewFromInt(1)
	for _, rule := range snap.FlowCtrlRules {
		if rule.Target != TargetRejectTimesTotal && rule.Target != TargetRejectTimesWithinTime {
			continue
		}
		if !rule.Condition.Matches(fields) {
			continue
		}
		scope := rule.Condition.ScopeKey(fields)
		if rule.Target == TargetRejectTimesTotal {
			ledger.AddCumulative(rule.RuleNo, scope, one, false, now)
		} else {
			ledger.CommitWindow(rule.RuleNo, scope, rule.Window, now)
		}
	}
}

// OrderScopes 收集委托请求命中的全部流控规则的计数 scope。网关据此确定
// 评估与落账期间需要持有的锁：宽范围规则（如空条件的全局计数）会让不同
// 账户的请求收敛到同一 scope。
func (e *FlowControlEvaluator) OrderScopes(req *OrderRequest, snap *RuleSnapshot) []string {
	return e.scopesFor(req.ConditionFields(), snap, FlowCtrlTarget.AppliesToOrder)
}

// CancelScopes 收集撤单请求命中的撤单族规则的计数 scope。
func (e *FlowControlEvaluator) CancelScopes(req *CancelRequest, snap *RuleSnapshot) []string {
	return e.scopesFor(req.ConditionFields(), snap, FlowCtrlTarget.AppliesToCancel)
}

// RejectScopes 收集拒单确认命中的拒单族规则的计数 scope。
func (e *FlowControlEvaluator) RejectScopes(fields map[string]string, snap *RuleSnapshot) []string {
	return e.scopesFor(fields, snap, func(t FlowCtrlTarget) bool {
		return t == TargetRejectTimesTotal || t == TargetRejectTimesWithinTime
	})
}

func (e *FlowControlEvaluator) scopesFor(fields map[string]string, snap *RuleSnapshot, applies func(FlowCtrlTarget) bool) []string {
	var scopes []string
	for _, rule := range snap.FlowCtrlRules {
		if !applies(rule.Target) || !rule.Condition.Matches(fields) {
			continue
		}
		scopes = append(scopes, rule.Condition.ScopeKey(fields))
	}
	return scopes
}

func (e *FlowControlEvaluator) reject(rule *FlowCtrlRule, detail string) Verdict {
	return Reject(rule.RuleNo, FamilyFlowCtrl,
		fmt.Sprintf("rule %d (%s) triggered: %s", rule.RuleNo, rule.Target, detail))
}

// exceeds 累计阈值判定：存量加本次贡献严格大于阈值即触发。
func exceeds(prior, contribution, limit decimal.Decimal) bool {
	return prior.Add(contribution).GreaterThan(limit)
}
