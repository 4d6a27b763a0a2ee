package migration

import (
	"fmt"

	"repo-migrator/pkg/constants"
)

// 状态变更来源
const (
	SourceInside  int8 = 1 << iota // 编排器自身推进
	SourceOutside                  // 运维人员通过 CLI / API 触发
)

// StateTransition 一条允许的状态转换
type StateTransition struct {
	From        int8
	To          int8
	AllowSource int8
}

// AllTransitions 仓库记录的全部合法转换
func AllTransitions() []StateTransition {
	return []StateTransition{
		{From: constants.RecordStatePending, To: constants.RecordStateProcessing, AllowSource: SourceInside},
		{From: constants.RecordStateFailed, To: constants.RecordStateProcessing, AllowSource: SourceInside},

		{From: constants.RecordStateProcessing, To: constants.RecordStateCompleted, AllowSource: SourceInside},
		{From: constants.RecordStateProcessing, To: constants.RecordStateFailed, AllowSource: SourceInside},
		{From: constants.RecordStateProcessing, To: constants.RecordStateExhausted, AllowSource: SourceInside},
		// 配额暂停、中断清理、启动时复位
		{From: constants.RecordStateProcessing, To: constants.RecordStatePending, AllowSource: SourceInside | SourceOutside},

		// clearError
		{From: constants.RecordStateFailed, To: constants.RecordStatePending, AllowSource: SourceOutside},
		{From: constants.RecordStateExhausted, To: constants.RecordStatePending, AllowSource: SourceOutside},
	}
}

// StateMachine 仓库记录状态机，状态由记录字段推导
type StateMachine struct {
	transitions map[int8]map[int8]StateTransition
}

// NewStateMachine 创建状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[int8]map[int8]StateTransition),
	}
	for _, t := range AllTransitions() {
		if sm.transitions[t.From] == nil {
			sm.transitions[t.From] = make(map[int8]StateTransition)
		}
		sm.transitions[t.From][t.To] = t
	}
	return sm
}

// CanTransition 检查是否可以进行状态转换
func (sm *StateMachine) CanTransition(from, to, source int8) bool {
	if transitions, ok := sm.transitions[from]; ok {
		if transition, ok := transitions[to]; ok {
			return transition.AllowSource&source != 0
		}
	}
	return false
}

// Check 不允许时返回带状态名的错误
func (sm *StateMachine) Check(from, to, source int8) error {
	if !sm.CanTransition(from, to, source) {
		return fmt.Errorf("当前状态 %s 不允许转换到 %s",
			constants.RecordStateToString(from), constants.RecordStateToString(to))
	}
	return nil
}
