package model

// 跨上下文消息类型
const (
	MsgPing           = "PING"
	MsgPong           = "PONG"
	MsgCheckSession   = "CHECK_SESSION"
	MsgRunExtraction  = "RUN_EXTRACTION"
	MsgReportProgress = "REPORT_PROGRESS"
	MsgStartJob       = "START_JOB"
	MsgCancelJob      = "CANCEL_JOB"
	MsgGetStatus      = "GET_STATUS"

	EventStateChanged = "STATE_CHANGED"
	EventProgress     = "PROGRESS"
	EventDone         = "DONE"
	EventFailed       = "FAILED"
)

// CoordinatorEndpoint 编排器在消息总线上的端点名
const CoordinatorEndpoint = "coordinator"

// SessionState 页面登录状态
type SessionState string

const (
	SessionReady         SessionState = "READY"
	SessionLoginRequired SessionState = "LOGIN_REQUIRED"
	SessionConnecting    SessionState = "CONNECTING"
)

type StartJobPayload struct {
	JobID            string `json:"jobId" validate:"required,max=128"`
	TargetID         string `json:"targetId,omitempty" validate:"max=256"`
	TargetName       string `json:"targetName" validate:"required,max=200"`
	TargetIsArchived bool   `json:"targetIsArchived"`
}

type CancelJobPayload struct {
	JobID string `json:"jobId"`
}

type RunExtractionPayload struct {
	JobID            string `json:"jobId"`
	TargetID         string `json:"targetId,omitempty"`
	TargetName       string `json:"targetName"`
	TargetIsArchived bool   `json:"targetIsArchived"`
}

type SessionPayload struct {
	State SessionState `json:"state"`
}

type ProgressPayload struct {
	JobID   string `json:"jobId"`
	Percent int    `json:"percent"`
	Count   int    `json:"count"`
}

type ErrorPayload struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
}

// ExtractionReply RUN_EXTRACTION 的应答,Error 与 Entities 互斥
type ExtractionReply struct {
	Entities []Member       `json:"entities,omitempty"`
	Meta     ExtractionMeta `json:"meta"`
	Error    *ErrorPayload  `json:"error,omitempty"`
}

type StartJobReply struct {
	Accepted bool          `json:"accepted"`
	Error    *ErrorPayload `json:"error,omitempty"`
}

type CancelJobReply struct {
	Accepted bool `json:"accepted"`
}

type StatusReply struct {
	Job    *Job       `json:"job"`
	Locked bool       `json:"locked"`
	Idle   *IdleState `json:"idle,omitempty"`
}

type StateChangedEvent struct {
	JobID   string   `json:"jobId"`
	State   JobState `json:"state"`
	Message string   `json:"message,omitempty"`
}

type DoneEvent struct {
	JobID    string         `json:"jobId"`
	Entities []Member       `json:"entities"`
	Meta     ExtractionMeta `json:"meta"`
}

type FailedEvent struct {
	JobID string `json:"jobId"`
	ErrorPayload
}
