package model

import "time"

// JobState 任务状态机的状态
type JobState string

const (
	StateIdle            JobState = "IDLE"
	StateBootingWorker   JobState = "BOOTING_WORKER"
	StateWaitingReady    JobState = "WAITING_READY"
	StateCheckingSession JobState = "CHECKING_SESSION"
	StateRunning         JobState = "RUNNING"
	StateFinalizing      JobState = "FINALIZING"
	StateDone            JobState = "DONE"
	StateError           JobState = "ERROR"
	StateCancelled       JobState = "CANCELLED"
)

func (s JobState) Terminal() bool {
	switch s {
	case StateDone, StateError, StateCancelled, StateIdle:
		return true
	}
	return false
}

// ErrorCode 跨上下文传递的错误码
type ErrorCode string

const (
	ErrLocked              ErrorCode = "LOCKED"
	ErrWorkerBootTimeout   ErrorCode = "WORKER_BOOT_TIMEOUT"
	ErrWorkerReadyTimeout  ErrorCode = "WORKER_READY_TIMEOUT"
	ErrLoginRequired       ErrorCode = "LOGIN_REQUIRED"
	ErrConnectingTimeout   ErrorCode = "CONNECTING_TIMEOUT"
	ErrSessionCheckTimeout ErrorCode = "SESSION_CHECK_TIMEOUT"
	ErrWorkerCrashed       ErrorCode = "WORKER_CRASHED"
	ErrExtractionTimeout   ErrorCode = "EXTRACTION_TIMEOUT"
	ErrExtractionFailed    ErrorCode = "EXTRACTION_FAILED"
	ErrCancelled           ErrorCode = "CANCELLED"
	ErrNoChat              ErrorCode = "NO_CHAT"
	ErrUnknown             ErrorCode = "UNKNOWN_ERROR"
)

var recoverable = map[ErrorCode]bool{
	ErrLocked:              true,
	ErrWorkerBootTimeout:   true,
	ErrWorkerReadyTimeout:  true,
	ErrLoginRequired:       false,
	ErrConnectingTimeout:   true,
	ErrSessionCheckTimeout: true,
	ErrWorkerCrashed:       true,
	ErrExtractionTimeout:   true,
	ErrExtractionFailed:    true,
	ErrCancelled:           true,
	ErrNoChat:              false,
	ErrUnknown:             true,
}

// Recoverable 报告用户重试是否有意义
func (c ErrorCode) Recoverable() bool {
	return recoverable[c]
}

// Known 报告错误码是否属于已定义集合
func (c ErrorCode) Known() bool {
	_, ok := recoverable[c]
	return ok
}

// WorkerHandle 标识承载 worker 的页面,Created 表示页面由编排器创建
type WorkerHandle struct {
	PageID  string `json:"page_id"`
	Created bool   `json:"created"`
}

type Job struct {
	JobID            string        `json:"job_id"`
	TargetID         string        `json:"target_id,omitempty"`
	TargetName       string        `json:"target_name"`
	TargetIsArchived bool          `json:"target_is_archived"`
	State            JobState      `json:"state"`
	Worker           *WorkerHandle `json:"worker,omitempty"`
	Progress         int           `json:"progress"`
	EntityCount      int           `json:"entity_count"`
	StartedAt        time.Time     `json:"started_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	ErrorCode        ErrorCode     `json:"error_code,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
}

// Snapshot 返回可安全跨 goroutine 传递的副本
func (j *Job) Snapshot() Job {
	cp := *j
	if j.Worker != nil {
		w := *j.Worker
		cp.Worker = &w
	}
	return cp
}

// IdleState 持久化的空闲状态,记录最近一次任务的结局
type IdleState struct {
	State        JobState  `json:"state"`
	LastJobID    string    `json:"last_job_id,omitempty"`
	LastOutcome  JobState  `json:"last_outcome,omitempty"`
	ErrorCode    ErrorCode `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
