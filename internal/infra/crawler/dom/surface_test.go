package dom

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/service/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type evalCall struct {
	js   string
	args []any
}

// scriptedDriver 按脚本内容返回预设 JSON
type scriptedDriver struct {
	replies map[string]func(args []any) string
	calls   []evalCall
	typed   []string
	escapes int
}

func newScriptedDriver() *scriptedDriver {
	return &scriptedDriver{replies: map[string]func(args []any) string{}}
}

func (d *scriptedDriver) on(js string, reply func(args []any) string) {
	d.replies[js] = reply
}

func (d *scriptedDriver) Eval(_ context.Context, js string, out any, args ...any) error {
	d.calls = append(d.calls, evalCall{js: js, args: args})
	reply, ok := d.replies[js]
	if !ok {
		return errors.New("unexpected script")
	}
	return json.Unmarshal([]byte(reply(args)), out)
}

func (d *scriptedDriver) InsertText(_ context.Context, text string) error {
	d.typed = append(d.typed, text)
	return nil
}

func (d *scriptedDriver) PressEscape(context.Context) error {
	d.escapes++
	return nil
}

func newTestSurface(d *scriptedDriver) *Surface {
	s := NewSurface(d, DefaultDelays(), arbor.NewLogger())
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestFirstSelectorFallsThrough(t *testing.T) {
	d := newScriptedDriver()
	d.on(jsExists, func(args []any) string {
		if args[0] == `div[aria-label="Chat list"]` {
			return "true"
		}
		return "false"
	})
	d.on(jsListTitles, func(args []any) string {
		assert.Equal(t, `div[aria-label="Chat list"]`, args[0])
		return `["Family","Weekend Trip"]`
	})

	titles, err := newTestSurface(d).ListTitles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Family", "Weekend Trip"}, titles)
}

func TestListTitlesWithoutRoot(t *testing.T) {
	d := newScriptedDriver()
	d.on(jsExists, func([]any) string { return "false" })

	_, err := newTestSurface(d).ListTitles(context.Background())
	assert.Error(t, err)
}

func TestTypeCharInsertsSingleRune(t *testing.T) {
	d := newScriptedDriver()
	s := newTestSurface(d)
	for _, r := range "Olá" {
		require.NoError(t, s.TypeChar(context.Background(), r))
	}
	assert.Equal(t, []string{"O", "l", "á"}, d.typed)
}

func TestOpenMembersDialog(t *testing.T) {
	d := newScriptedDriver()
	d.on(jsClickByText, func(args []any) string {
		assert.Equal(t, seeAllPattern, args[1])
		return "true"
	})
	d.on(jsDialogOpen, func([]any) string { return "true" })

	ok, err := newTestSurface(d).OpenMembersDialog(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	d = newScriptedDriver()
	d.on(jsClickByText, func([]any) string { return "false" })
	ok, err = newTestSurface(d).OpenMembersDialog(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMembersContainer(t *testing.T) {
	d := newScriptedDriver()
	d.on(jsMarkScrollRegion, func([]any) string { return "true" })
	attached := true
	d.on(jsMetrics, func([]any) string {
		if !attached {
			return "null"
		}
		return `{"top":100,"clientHeight":400,"scrollHeight":2000}`
	})
	d.on(jsScrollTo, func(args []any) string {
		if !attached {
			return "false"
		}
		return "true"
	})

	c, err := newTestSurface(d).MembersContainer(context.Background())
	require.NoError(t, err)

	m, err := c.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, capture.Metrics{Top: 100, ClientHeight: 400, ScrollHeight: 2000}, m)
	require.NoError(t, c.ScrollTo(context.Background(), 300))

	attached = false
	_, err = c.Metrics(context.Background())
	assert.ErrorIs(t, err, capture.ErrDetached)
	assert.ErrorIs(t, c.ScrollTo(context.Background(), 0), capture.ErrDetached)
}

func TestMembersContainerMissing(t *testing.T) {
	d := newScriptedDriver()
	d.on(jsMarkScrollRegion, func([]any) string { return "false" })

	_, err := newTestSurface(d).MembersContainer(context.Background())
	assert.Error(t, err)
}

func TestVisibleCandidates(t *testing.T) {
	d := newScriptedDriver()
	d.on(jsReadRows, func(args []any) string {
		assert.Equal(t, true, args[2])
		return `[
			{"texts":["Ana Lima","Group admin"],"full":"Ana LimaGroup admin"},
			{"texts":["+55 11 98765-4321","~Bruno"],"full":"+55 11 98765-4321~Bruno"},
			{"texts":["You"],"full":"You"}
		]`
	})

	got, err := newTestSurface(d).VisibleCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ana Lima", got[0].Text)
	assert.True(t, got[0].Privileged)
	assert.Equal(t, "+55 11 98765-4321", got[1].Phone)
	assert.Equal(t, "~Bruno", got[1].Text)
	assert.False(t, got[1].Privileged)
}

func TestVisibleCandidatesDetached(t *testing.T) {
	d := newScriptedDriver()
	d.on(jsReadRows, func([]any) string { return "null" })

	_, err := newTestSurface(d).VisibleCandidates(context.Background())
	assert.ErrorIs(t, err, capture.ErrDetached)
}

func TestCloseOverlays(t *testing.T) {
	d := newScriptedDriver()
	d.on(jsCloseDialogs, func([]any) string { return "1" })

	require.NoError(t, newTestSurface(d).CloseOverlays(context.Background()))
	assert.Equal(t, 1, d.escapes)
}

func TestDismissOverlays(t *testing.T) {
	d := newScriptedDriver()
	require.NoError(t, newTestSurface(d).DismissOverlays(context.Background(), 5))
	assert.Equal(t, 5, d.escapes)
}

func TestRowPrefersNameOverPhone(t *testing.T) {
	c, ok := rawRow{Texts: []string{"+1 415 555 0100", "~Carla"}}.toCandidate()
	require.True(t, ok)
	assert.Equal(t, "~Carla", c.Text)
	assert.Equal(t, "+1 415 555 0100", c.Phone)

	c, ok = rawRow{Texts: []string{"+1 415 555 0100"}}.toCandidate()
	require.True(t, ok)
	assert.Equal(t, "+1 415 555 0100", c.Text)

	_, ok = rawRow{Texts: []string{"online", "x"}}.toCandidate()
	assert.False(t, ok)
}
