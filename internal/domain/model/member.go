package model

import (
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
)

// Member 一条去重后的成员记录
type Member struct {
	Key          string    `json:"key"`
	DisplayName  string    `json:"display_name"`
	Phone        string    `json:"phone,omitempty"`
	IsPrivileged bool      `json:"is_privileged"`
	ObservedAt   time.Time `json:"observed_at"`
}

// ExtractionMeta RUN_EXTRACTION 成功时附带的元数据
type ExtractionMeta struct {
	GroupName   string    `json:"group_name"`
	Total       int       `json:"total"`
	Mode        string    `json:"mode"`
	Attempts    int       `json:"attempts"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// MemberDoc 写入 Elasticsearch 的成员文档
type MemberDoc struct {
	JobID        string    `json:"job_id"`
	GroupName    string    `json:"group_name"`
	Key          string    `json:"key"`
	DisplayName  string    `json:"display_name"`
	Phone        string    `json:"phone,omitempty"`
	IsPrivileged bool      `json:"is_privileged"`
	ObservedAt   time.Time `json:"observed_at"`
	ExtractedAt  time.Time `json:"extracted_at"`
}

func (m Member) ToDocument(jobID string, meta ExtractionMeta) *MemberDoc {
	return &MemberDoc{
		JobID:        jobID,
		GroupName:    meta.GroupName,
		Key:          m.Key,
		DisplayName:  m.DisplayName,
		Phone:        m.Phone,
		IsPrivileged: m.IsPrivileged,
		ObservedAt:   m.ObservedAt,
		ExtractedAt:  meta.ExtractedAt,
	}
}

// GetID 同一群组内同一成员的文档 ID 稳定,重复提取会覆盖旧文档
func (d *MemberDoc) GetID() string {
	sum := sha1.Sum([]byte(d.GroupName + "\x00" + d.Key))
	return hex.EncodeToString(sum[:])
}

func (d *MemberDoc) GetIndex() string {
	return "group_members"
}

func (d *MemberDoc) GetTypeMapping() *types.TypeMapping {
	return &types.TypeMapping{
		Properties: map[string]types.Property{
			"job_id":        types.NewKeywordProperty(),
			"group_name":    types.NewKeywordProperty(),
			"key":           types.NewKeywordProperty(),
			"display_name":  types.NewTextProperty(),
			"phone":         types.NewKeywordProperty(),
			"is_privileged": types.NewBooleanProperty(),
			"observed_at":   types.NewDateProperty(),
			"extracted_at":  types.NewDateProperty(),
		},
	}
}
