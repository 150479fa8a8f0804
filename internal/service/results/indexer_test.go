package results

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/service/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type memorySink struct {
	mu    sync.Mutex
	docs  []*model.MemberDoc
	calls int
	err   error
}

func (s *memorySink) BulkIndexDocsWithID(_ context.Context, docs []*model.MemberDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, docs...)
	return nil
}

func TestIndexerWritesDoneResults(t *testing.T) {
	logger := arbor.NewLogger()
	hub := events.NewHub(16, logger)
	ch, cancel := hub.Subscribe()
	sink := &memorySink{}

	finished := make(chan error, 1)
	go func() { finished <- NewIndexer(sink, time.Second, logger).Run(context.Background(), ch) }()

	extractedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hub.Publish(events.Event{Type: model.EventProgress, JobID: "job-1", Payload: model.ProgressPayload{JobID: "job-1"}})
	hub.Publish(events.Event{Type: model.EventDone, JobID: "job-1", Payload: model.DoneEvent{
		JobID: "job-1",
		Entities: []model.Member{
			{Key: "ana", DisplayName: "Ana"},
			{Key: "5511987654321", DisplayName: "Bruno", Phone: "5511987654321", IsPrivileged: true},
		},
		Meta: model.ExtractionMeta{GroupName: "Weekend Trip", Total: 2, ExtractedAt: extractedAt},
	}})
	hub.Publish(events.Event{Type: model.EventDone, JobID: "job-2", Payload: model.DoneEvent{JobID: "job-2"}})
	cancel()
	require.NoError(t, <-finished)

	assert.Equal(t, 1, sink.calls)
	require.Len(t, sink.docs, 2)
	assert.Equal(t, "job-1", sink.docs[0].JobID)
	assert.Equal(t, "Weekend Trip", sink.docs[1].GroupName)
	assert.True(t, sink.docs[1].IsPrivileged)
	assert.Equal(t, extractedAt, sink.docs[1].ExtractedAt)
	assert.NotEqual(t, sink.docs[0].GetID(), sink.docs[1].GetID())
}

func TestIndexerSurvivesSinkErrors(t *testing.T) {
	logger := arbor.NewLogger()
	ch := make(chan events.Event, 2)
	sink := &memorySink{err: errors.New("cluster unavailable")}

	ch <- events.Event{Type: model.EventDone, Payload: model.DoneEvent{JobID: "a", Entities: []model.Member{{Key: "x", DisplayName: "Xavier"}}}}
	ch <- events.Event{Type: model.EventDone, Payload: model.DoneEvent{JobID: "b", Entities: []model.Member{{Key: "y", DisplayName: "Yara"}}}}
	close(ch)

	require.NoError(t, NewIndexer(sink, time.Second, logger).Run(context.Background(), ch))
	assert.Equal(t, 2, sink.calls)
}

func TestMemberDocIDIsStablePerGroup(t *testing.T) {
	m := model.Member{Key: "ana", DisplayName: "Ana"}
	a := m.ToDocument("job-1", model.ExtractionMeta{GroupName: "Family"})
	b := m.ToDocument("job-2", model.ExtractionMeta{GroupName: "Family"})
	c := m.ToDocument("job-1", model.ExtractionMeta{GroupName: "Work"})
	assert.Equal(t, a.GetID(), b.GetID())
	assert.NotEqual(t, a.GetID(), c.GetID())
	assert.Equal(t, "group_members", a.GetIndex())
}

func TestGroupQuery(t *testing.T) {
	q := GroupQuery("Weekend Trip")
	require.Contains(t, q.Term, "group_name")
	assert.Equal(t, "Weekend Trip", q.Term["group_name"].Value)
}
