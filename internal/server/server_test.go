package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/transport"
	"github.com/LouYuanbo1/groupagent/internal/service/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// fakeCoordinator 接受第一个任务,之后返回 LOCKED
type fakeCoordinator struct {
	mu     sync.Mutex
	active string
}

func (c *fakeCoordinator) Handle(_ context.Context, msg *transport.Message) (*transport.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case model.MsgStartJob:
		var req model.StartJobPayload
		if err := msg.Decode(&req); err != nil {
			return nil, err
		}
		if c.active != "" {
			return transport.NewMessage(msg.Type, req.JobID, model.StartJobReply{
				Error: &model.ErrorPayload{Code: model.ErrLocked, Message: "busy", Recoverable: true},
			})
		}
		c.active = req.JobID
		return transport.NewMessage(msg.Type, req.JobID, model.StartJobReply{Accepted: true})
	case model.MsgCancelJob:
		var req model.CancelJobPayload
		if err := msg.Decode(&req); err != nil {
			return nil, err
		}
		ok := req.JobID != "" && req.JobID == c.active
		if ok {
			c.active = ""
		}
		return transport.NewMessage(msg.Type, req.JobID, model.CancelJobReply{Accepted: ok})
	case model.MsgGetStatus:
		reply := model.StatusReply{Locked: c.active != ""}
		if c.active != "" {
			reply.Job = &model.Job{JobID: c.active, State: model.StateRunning}
		}
		return transport.NewMessage(msg.Type, "", reply)
	}
	return nil, errors.New("unexpected")
}

type fakeSearch struct{}

func (fakeSearch) Search(_ context.Context, group string, from, size int) ([]*model.MemberDoc, int64, error) {
	return []*model.MemberDoc{{GroupName: group, Key: "ana", DisplayName: "Ana"}}, 1, nil
}

func newTestServer(t *testing.T, members MemberSearch, withCoordinator bool) (*Server, *httptest.Server) {
	t.Helper()
	logger := arbor.NewLogger()
	bus := transport.NewBus(logger)
	if withCoordinator {
		bus.Register(model.CoordinatorEndpoint, (&fakeCoordinator{}).Handle)
	}
	s := NewServer(Options{RequestTimeout: 200 * time.Millisecond, ProgressInterval: time.Hour}, bus, members, logger)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestStartAndCancelJob(t *testing.T) {
	_, ts := newTestServer(t, nil, true)

	resp, out := postJSON(t, ts.URL+"/api/jobs", map[string]any{"targetName": "Weekend Trip"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	jobID, _ := out["jobId"].(string)
	require.NotEmpty(t, jobID)

	resp, _ = postJSON(t, ts.URL+"/api/jobs", map[string]any{"jobId": "second", "targetName": "Family"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	statusResp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	var status model.StatusReply
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	statusResp.Body.Close()
	assert.True(t, status.Locked)
	require.NotNil(t, status.Job)
	assert.Equal(t, jobID, status.Job.JobID)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/jobs/"+jobID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	delResp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, delResp.StatusCode)
}

func TestStartValidation(t *testing.T) {
	_, ts := newTestServer(t, nil, true)

	resp, _ := postJSON(t, ts.URL+"/api/jobs", map[string]any{"jobId": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, ts.URL+"/api/jobs", map[string]any{"targetName": strings.Repeat("a", 201)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(ts.URL+"/api/jobs", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestCoordinatorUnavailable(t *testing.T) {
	_, ts := newTestServer(t, nil, false)

	resp, _ := postJSON(t, ts.URL+"/api/jobs", map[string]any{"targetName": "Weekend Trip"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	statusResp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	statusResp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, statusResp.StatusCode)
}

func TestMembersEndpoint(t *testing.T) {
	_, disabled := newTestServer(t, nil, true)
	resp, err := http.Get(disabled.URL + "/api/members?group=Family")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, ts := newTestServer(t, fakeSearch{}, true)
	resp, err = http.Get(ts.URL + "/api/members")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/members?group=Family&size=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Total   int64              `json:"total"`
		Members []*model.MemberDoc `json:"members"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.EqualValues(t, 1, out.Total)
	require.Len(t, out.Members, 1)
	assert.Equal(t, "Family", out.Members[0].GroupName)
}

func TestWebSocketBroadcast(t *testing.T) {
	s, ts := newTestServer(t, nil, true)
	hub := events.NewHub(16, arbor.NewLogger())
	ch, cancel := hub.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go s.Run(ctx, ch)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello WSMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)

	// 等待服务端登记该连接
	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.clients) == 1
	}, time.Second, 5*time.Millisecond)

	hub.Publish(events.Event{Type: model.EventProgress, JobID: "j1", Payload: model.ProgressPayload{JobID: "j1", Percent: 10}})
	// 限流窗口内的第二个 PROGRESS 被丢弃
	hub.Publish(events.Event{Type: model.EventProgress, JobID: "j1", Payload: model.ProgressPayload{JobID: "j1", Percent: 20}})
	hub.Publish(events.Event{Type: model.EventStateChanged, JobID: "j1", Payload: model.StateChangedEvent{JobID: "j1", State: model.StateDone}})

	var got []WSMessage
	for range 2 {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		got = append(got, msg)
	}
	assert.Equal(t, model.EventProgress, got[0].Type)
	assert.Equal(t, float64(10), got[0].Payload.(map[string]any)["percent"])
	assert.Equal(t, model.EventStateChanged, got[1].Type)
	assert.Equal(t, "j1", got[1].JobID)
}
