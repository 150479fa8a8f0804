package es

import (
	"context"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
)

/*
// 所有的文档结构体要实现这三个函数

	type Document interface {
		GetID() string
		GetIndex() string
		GetTypeMapping() *types.TypeMapping
	}
*/
type TypedEsClient[D model.Document] interface {
	GetClient() *elasticsearch.TypedClient
	CreateIndexWithMapping(ctx context.Context) error
	BulkIndexDocsWithID(ctx context.Context, docs []D) error
	CountDocs(ctx context.Context) (int64, error)
	SearchDoc(ctx context.Context, query *types.Query, from, size int) ([]D, int64, error)
}
