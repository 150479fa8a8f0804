package dom

import (
	"strings"

	"github.com/LouYuanbo1/groupagent/internal/domain/entity"
	"github.com/LouYuanbo1/groupagent/internal/service/collector"
)

// rawRow 页面返回的一行原始文本
type rawRow struct {
	Texts []string `json:"texts"`
	Full  string   `json:"full"`
}

// toCandidate 从一行文本中挑出名字和电话,界面文案被跳过
func (r rawRow) toCandidate() (entity.Candidate, bool) {
	var name, phone string
	for _, t := range r.Texts {
		t = strings.TrimSpace(t)
		if len([]rune(t)) < 2 || collector.IsUILabel(t) {
			continue
		}
		if collector.LooksLikePhone(t) {
			if phone == "" {
				phone = t
			}
			continue
		}
		if name == "" && len([]rune(t)) < 100 {
			name = t
		}
		if name != "" && phone != "" {
			break
		}
	}
	if name == "" {
		// 未保存的联系人只显示号码
		name = phone
	}
	if name == "" {
		return entity.Candidate{}, false
	}
	return entity.Candidate{
		Text:       name,
		Phone:      phone,
		Privileged: strings.Contains(strings.ToLower(r.Full), "admin"),
	}, true
}

func toCandidates(rows []rawRow) []entity.Candidate {
	out := make([]entity.Candidate, 0, len(rows))
	for _, r := range rows {
		if c, ok := r.toCandidate(); ok {
			out = append(out, c)
		}
	}
	return out
}
