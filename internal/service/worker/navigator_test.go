package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func (r *sleepRecorder) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

func newTestNavigator(s Surface) (*Navigator, *sleepRecorder) {
	n := NewNavigator(s, DefaultNavOptions(), arbor.NewLogger())
	rec := &sleepRecorder{}
	n.sleep = rec.sleep
	return n, rec
}

func TestNavigateBySearchTypesCharacterByCharacter(t *testing.T) {
	s := newFakeSurface()
	s.chats = []string{"Family", "Office"}
	s.searchable = []string{"Family", "Weekend Trip Planning", "Weekend Trip", "Office"}
	n, rec := newTestNavigator(s)

	method, err := n.NavigateToTarget(context.Background(), Target{Name: "Weekend Trip"})

	require.NoError(t, err)
	assert.Equal(t, MethodSearch, method)
	assert.Equal(t, "Weekend Trip", s.openTitle)
	assert.Equal(t, "Weekend Trip", s.typed.String())
	assert.Equal(t, len("Weekend Trip"), rec.count(80*time.Millisecond))
	assert.Equal(t, 1, rec.count(2*time.Second))
	assert.Equal(t, 1, s.clears)
}

func TestNavigateSkipsWhenAlreadyOpen(t *testing.T) {
	s := newFakeSurface()
	s.openTitle = "weekend trip"
	n, _ := newTestNavigator(s)

	method, err := n.NavigateToTarget(context.Background(), Target{Name: "Weekend Trip"})

	require.NoError(t, err)
	assert.Equal(t, MethodAlreadyOpen, method)
}

func TestNavigateByReference(t *testing.T) {
	s := newFakeSurface()
	s.references = map[string]string{"120363@g.us": "Weekend Trip"}
	n, _ := newTestNavigator(s)

	method, err := n.NavigateToTarget(context.Background(), Target{ID: "120363@g.us", Name: "Weekend Trip"})

	require.NoError(t, err)
	assert.Equal(t, MethodReference, method)
}

func TestNavigateThroughArchivedList(t *testing.T) {
	s := newFakeSurface()
	for i := range 12 {
		s.archived = append(s.archived, fmt.Sprintf("Old Group %02d", i))
	}
	s.archived[10] = "Weekend Trip"
	n, _ := newTestNavigator(s)

	method, err := n.NavigateToTarget(context.Background(), Target{Name: "Weekend Trip", Archived: true})

	require.NoError(t, err)
	assert.Equal(t, MethodArchived, method)
	assert.False(t, s.inArchived)
}

func TestNavigateScrollsPrimaryList(t *testing.T) {
	s := newFakeSurface()
	for i := range 20 {
		s.chats = append(s.chats, fmt.Sprintf("Chat %02d", i))
	}
	s.chats[15] = "Weekend  Trip"
	n, _ := newTestNavigator(s)

	method, err := n.NavigateToTarget(context.Background(), Target{Name: "Weekend Trip"})

	require.NoError(t, err)
	assert.Equal(t, MethodList, method)
	assert.Equal(t, "Weekend  Trip", s.openTitle)
}

func TestNavigateRetriesWithLinearBackoff(t *testing.T) {
	s := newFakeSurface()
	s.chats = []string{"Family"}
	n, rec := newTestNavigator(s)

	_, err := n.NavigateToTarget(context.Background(), Target{Name: "Weekend Trip"})

	require.ErrorIs(t, err, ErrTargetNotFound)
	assert.Equal(t, 1, rec.count(time.Second))
	assert.Equal(t, 1, rec.count(2*time.Second))
	assert.Zero(t, rec.count(3*time.Second))
}

func TestNavigateReportsVerificationFailure(t *testing.T) {
	s := newFakeSurface()
	s.references = map[string]string{"42@g.us": "Another Group"}
	n, _ := newTestNavigator(s)

	_, err := n.NavigateToTarget(context.Background(), Target{ID: "42@g.us", Name: "Weekend Trip"})

	require.ErrorIs(t, err, ErrVerificationFailed)
}

func TestNavigateStopsWhenCancelled(t *testing.T) {
	s := newFakeSurface()
	n, _ := newTestNavigator(s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.NavigateToTarget(ctx, Target{Name: "Weekend Trip"})

	require.ErrorIs(t, err, context.Canceled)
}
