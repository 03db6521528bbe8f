package session

import (
	"fmt"
	"sync/atomic"
)

// State 会话状态
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// allowed 合法的前进转换；进入 Closed 另行处理
var allowed = map[State]State{
	StateConnecting:     StateAuthenticating,
	StateAuthenticating: StateActive,
	StateActive:         StateClosing,
	StateClosing:        StateClosed,
}

// Machine 会话状态机，可并发使用
type Machine struct {
	state atomic.Int32
}

// State 返回当前状态
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Transition 转换到 to
//
// 只允许按顺序前进一步，或从任意非 Closed 状态进入 Closed。
func (m *Machine) Transition(to State) error {
	for {
		from := m.State()
		if !canTransition(from, to) {
			return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
		}
		if m.state.CompareAndSwap(int32(from), int32(to)) {
			return nil
		}
	}
}

func canTransition(from, to State) bool {
	if from == StateClosed {
		return false
	}
	if to == StateClosed {
		return true
	}
	next, ok := allowed[from]
	return ok && next == to
}
