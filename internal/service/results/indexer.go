package results

import (
	"context"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/service/events"
	"github.com/ternarybob/arbor"
)

// MemberSink 成员文档的写入端,生产环境为 Elasticsearch
type MemberSink interface {
	BulkIndexDocsWithID(ctx context.Context, docs []*model.MemberDoc) error
}

// Indexer 订阅 DONE 事件并把结果写入 sink
type Indexer struct {
	sink    MemberSink
	timeout time.Duration
	logger  arbor.ILogger
}

func NewIndexer(sink MemberSink, timeout time.Duration, logger arbor.ILogger) *Indexer {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Indexer{sink: sink, timeout: timeout, logger: logger}
}

// Run 消费事件直到通道关闭或 ctx 结束
func (ix *Indexer) Run(ctx context.Context, ch <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Type != model.EventDone {
				continue
			}
			done, ok := ev.Payload.(model.DoneEvent)
			if !ok {
				ix.logger.Warn().Str("job_id", ev.JobID).Msg("DONE event without result payload")
				continue
			}
			ix.index(ctx, done)
		}
	}
}

func (ix *Indexer) index(ctx context.Context, done model.DoneEvent) {
	if len(done.Entities) == 0 {
		return
	}
	docs := make([]*model.MemberDoc, 0, len(done.Entities))
	for _, m := range done.Entities {
		docs = append(docs, m.ToDocument(done.JobID, done.Meta))
	}
	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()
	logger := ix.logger.WithCorrelationId(done.JobID)
	if err := ix.sink.BulkIndexDocsWithID(ctx, docs); err != nil {
		logger.Error().Err(err).Str("group", done.Meta.GroupName).Msg("index extraction result failed")
		return
	}
	logger.Info().Str("group", done.Meta.GroupName).Int("members", len(docs)).Msg("extraction result indexed")
}
