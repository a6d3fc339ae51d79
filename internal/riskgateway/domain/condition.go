package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// 条件表达式中允许出现的字段名。
const (
	FieldAcctID       = "acctId"
	FieldTrdAcctID    = "trdAcctId"
	FieldMarketCode   = "marketCode"
	FieldSymbolType   = "symbolType"
	FieldSymbolCode   = "symbolCode"
	FieldSide         = "side"
	FieldPosDirection = "posDirection"
)

var validConditionFields = map[string]struct{}{
	FieldAcctID:       {},
	FieldTrdAcctID:    {},
	FieldMarketCode:   {},
	FieldSymbolType:   {},
	FieldSymbolCode:   {},
	FieldSide:         {},
	FieldPosDirection: {},
}

// Condition 规则的适用范围模板，形如 "acctId=10000&marketCode=SSE"。
// 模板值 "*" 匹配任意取值，尾部 "*"（如 "symbolCode=IF*"）为前缀匹配。
type Condition struct {
	raw    string
	fields []conditionField
}

type conditionField struct {
	name  string
	value string
}

// ParseCondition 解析条件表达式。空串表示匹配一切。
func ParseCondition(raw string) (Condition, error) {
	cond := Condition{raw: raw}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return cond, nil
	}

	seen := make(map[string]struct{})
	for _, pair := range strings.Split(raw, "&") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return Condition{}, fmt.Errorf("invalid condition segment %q", pair)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if _, ok := validConditionFields[name]; !ok {
			return Condition{}, fmt.Errorf("unknown condition field %q", name)
		}
		if _, dup := seen[name]; dup {
			return Condition{}, fmt.Errorf("duplicate condition field %q", name)
		}
		seen[name] = struct{}{}
		cond.fields = append(cond.fields, conditionField{name: name, value: value})
	}
	return cond, nil
}

// MustParseCondition 解析条件表达式，失败时 panic。仅用于测试与常量规则。
func MustParseCondition(raw string) Condition {
	cond, err := ParseCondition(raw)
	if err != nil {
		panic(err)
	}
	return cond
}

// Raw 原始表达式。
func (c Condition) Raw() string { return c.raw }

// Empty 是否为空条件。
func (c Condition) Empty() bool { return len(c.fields) == 0 }

// Matches 判断请求字段是否落入条件范围。模板的每个字段都必须在请求
// 字段中存在且匹配。
func (c Condition) Matches(fields map[string]string) bool {
	for _, f := range c.fields {
		got, ok := fields[f.name]
		if !ok {
			return false
		}
		if !matchValue(f.value, got) {
			return false
		}
	}
	return true
}

// ScopeKey 将请求字段按模板字段序收敛为计数器键。同一规则下落入同一
// 范围的请求共享计数器。
func (c Condition) ScopeKey(fields map[string]string) string {
	if len(c.fields) == 0 {
		return "*"
	}
	var b strings.Builder
	for i, f := range c.fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.name)
		b.WriteByte('=')
		// 全通配字段按请求实际取值展开；前缀通配沿用模板值，使同族
		// 标的共享计数器
		if f.value == "*" {
			b.WriteString(fields[f.name])
		} else {
			b.WriteString(f.value)
		}
	}
	return b.String()
}

// FieldNames 模板字段名列表，按声明序。
func (c Condition) FieldNames() []string {
	names := make([]string, 0, len(c.fields))
	for _, f := range c.fields {
		names = append(names, f.name)
	}
	return names
}

// MatchesScope 判断候选字段集合（持仓、在途订单）是否与请求字段落入同一
// 收敛范围。全通配字段按请求实际取值对齐，前缀通配字段族内共享。
func (c Condition) MatchesScope(reqFields, candidate map[string]string) bool {
	for _, f := range c.fields {
		got, ok := candidate[f.name]
		if !ok {
			return false
		}
		if f.value == "*" {
			if got != reqFields[f.name] {
				return false
			}
			continue
		}
		if !matchValue(f.value, got) {
			return false
		}
	}
	return true
}

// ResolvedFields 将模板字段按请求取值实例化，用于派生外部快照的查找键。
func (c Condition) ResolvedFields(fields map[string]string) map[string]string {
	resolved := make(map[string]string, len(c.fields))
	for _, f := range c.fields {
		if f.value == "*" || strings.HasSuffix(f.value, "*") {
			resolved[f.name] = fields[f.name]
		} else {
			resolved[f.name] = f.value
		}
	}
	return resolved
}

func matchValue(template, got string) bool {
	if template == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(template, "*"); ok {
		return strings.HasPrefix(got, prefix)
	}
	return template == got
}

// CanonicalScope 将字段集合规整为稳定的 scope 字符串，字段名字典序。
// 用于 PnL 快照等外部数据与规则条件之间的对账。
func CanonicalScope(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name, value := range fields {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(fields[name])
	}
	return b.String()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
