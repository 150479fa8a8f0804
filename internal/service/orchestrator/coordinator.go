package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/transport"
)

var errNotCoordinator = errors.New("unsupported coordinator message")

// Handle coordinator 端点的消息处理
func (o *Orchestrator) Handle(_ context.Context, msg *transport.Message) (*transport.Message, error) {
	switch msg.Type {
	case model.MsgStartJob:
		var req model.StartJobPayload
		if err := msg.Decode(&req); err != nil {
			return nil, fmt.Errorf("decode start request: %w", err)
		}
		return transport.NewMessage(msg.Type, req.JobID, o.Start(req))
	case model.MsgCancelJob:
		var req model.CancelJobPayload
		if err := msg.Decode(&req); err != nil {
			return nil, fmt.Errorf("decode cancel request: %w", err)
		}
		return transport.NewMessage(msg.Type, req.JobID, o.Cancel(req.JobID))
	case model.MsgGetStatus:
		return transport.NewMessage(msg.Type, "", o.Status())
	case model.MsgReportProgress:
		var p model.ProgressPayload
		if err := msg.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode progress: %w", err)
		}
		if p.JobID == "" {
			p.JobID = msg.JobID
		}
		o.HandleProgress(p)
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", errNotCoordinator, msg.Type)
}
