package entity

// Candidate 从页面可见行读取到的原始候选成员,尚未校验和去重
type Candidate struct {
	Text       string `json:"text"`
	Phone      string `json:"phone,omitempty"`
	Privileged bool   `json:"privileged"`
}
