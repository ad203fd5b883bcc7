package pnl

import "fmt"

// 成交校验器：在新成交写入前把关，保证事件日志不会进入不一致状态。
// 纯函数，无副作用，相同输入必然得到相同结论。

// Status 持仓生命周期状态
type Status string

const (
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusExpired   Status = "expired"
	StatusExercised Status = "exercised"
	StatusLapsed    Status = "lapsed"
)

// PositionState 校验所需的持仓状态
type PositionState struct {
	Status Status
}

// Candidate 待校验的新成交
type Candidate struct {
	Kind      Kind
	Contracts int64
}

// RuleError 非法状态转换，Reason 说明被违反的规则
type RuleError struct {
	Reason string
}

func (e *RuleError) Error() string {
	return e.Reason
}

func reject(format string, args ...any) error {
	return &RuleError{Reason: fmt.Sprintf(format, args...)}
}

// ValidateHistory 校验整段成交历史：按时间顺序累加带符号的张数，
// 任意前缀的净持仓都不允许为负。用于修正或删除历史成交后的复核。
func ValidateHistory(trades []Trade) error {
	var net int64
	for _, t := range sortTrades(trades) {
		switch {
		case t.Kind.IsOpening():
			net += t.Contracts
		case t.Kind.IsClosing():
			net -= t.Contracts
		default:
			return reject("unknown trade kind %q", t.Kind)
		}
		if net < 0 {
			return reject("history closes %d more contracts than were open at %s",
				-net, t.TradedAt.Format("2006-01-02"))
		}
	}
	return nil
}

// ValidateTrade 判断新成交是否合法。合法返回 nil，否则返回 *RuleError。
func ValidateTrade(state PositionState, existing []Trade, candidate Candidate) error {
	switch state.Status {
	case StatusClosed:
		return reject("position is closed, no further trades permitted")
	case StatusExercised:
		return reject("position has been exercised, no further trades permitted")
	case StatusLapsed:
		return reject("position has lapsed, no further trades permitted")
	}

	if !candidate.Kind.Valid() {
		return reject("unknown trade kind %q", candidate.Kind)
	}
	if candidate.Contracts <= 0 {
		return reject("contracts must be a positive number")
	}

	net := NetContracts(existing)

	if state.Status == StatusExpired && net == 0 {
		return reject("position expired with no open contracts")
	}

	if candidate.Kind == KindOpen && len(existing) > 0 {
		return reject("position already opened, use ADD to increase size")
	}
	if candidate.Kind != KindOpen && len(existing) == 0 {
		return reject("cannot %s: no position exists", candidate.Kind)
	}

	if candidate.Kind.IsClosing() {
		if candidate.Contracts > net {
			return reject("cannot close %d contracts, only %d open", candidate.Contracts, net)
		}
		if candidate.Kind == KindClose && candidate.Contracts != net {
			return reject("CLOSE must close all %d open contracts, use REDUCE for a partial close", net)
		}
	}

	return nil
}
