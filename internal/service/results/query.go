package results

import (
	"context"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/persistence/es"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
)

// MemberQuery 按群组名查询已入库的成员
type MemberQuery struct {
	client es.TypedEsClient[*model.MemberDoc]
}

func NewMemberQuery(client es.TypedEsClient[*model.MemberDoc]) *MemberQuery {
	return &MemberQuery{client: client}
}

func (q *MemberQuery) Search(ctx context.Context, group string, from, size int) ([]*model.MemberDoc, int64, error) {
	return q.client.SearchDoc(ctx, GroupQuery(group), from, size)
}

// GroupQuery 精确匹配 group_name
func GroupQuery(group string) *types.Query {
	return &types.Query{
		Term: map[string]types.TermQuery{
			"group_name": {Value: group},
		},
	}
}
