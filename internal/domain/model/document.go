package model

import (
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
)

type Document interface {
	*MemberDoc
	GetID() string
	GetIndex() string
	GetTypeMapping() *types.TypeMapping
}
