package transport

import (
	"encoding/json"
	"fmt"
)

// Message 跨上下文传递的消息,总是以 JSON 形式越过边界
type Message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	JobID   string          `json:"jobId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewMessage(msgType, jobID string, payload any) (*Message, error) {
	msg := &Message{Type: msgType, JobID: jobID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// MustMessage 用于负载类型固定、编码不可能失败的场景
func MustMessage(msgType, jobID string, payload any) *Message {
	msg, err := NewMessage(msgType, jobID, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

func (m *Message) Decode(out any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", m.Type, err)
	}
	return nil
}

func encode(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

func decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
