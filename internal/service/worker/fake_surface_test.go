package worker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/LouYuanbo1/groupagent/internal/domain/entity"
	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/service/capture"
)

// memberList 弹窗中的虚拟成员列表
type memberList struct {
	rows         []entity.Candidate
	rowHeight    float64
	clientHeight float64
	top          float64
	detached     bool
}

func (l *memberList) Metrics(ctx context.Context) (capture.Metrics, error) {
	if l.detached {
		return capture.Metrics{}, capture.ErrDetached
	}
	h := math.Max(float64(len(l.rows))*l.rowHeight, l.clientHeight)
	return capture.Metrics{Top: l.top, ClientHeight: l.clientHeight, ScrollHeight: h}, nil
}

func (l *memberList) ScrollTo(ctx context.Context, top float64) error {
	h := math.Max(float64(len(l.rows))*l.rowHeight, l.clientHeight)
	l.top = math.Max(0, math.Min(top, h-l.clientHeight))
	return nil
}

func (l *memberList) visible(ctx context.Context) ([]entity.Candidate, error) {
	if l.detached {
		return nil, capture.ErrDetached
	}
	first := int(l.top / l.rowHeight)
	last := int(math.Ceil((l.top+l.clientHeight)/l.rowHeight)) - 1
	var out []entity.Candidate
	for i := first; i <= last && i < len(l.rows); i++ {
		out = append(out, l.rows[i])
	}
	return out, nil
}

type fakeSurface struct {
	mu sync.Mutex

	session   model.SessionState
	openTitle string

	references map[string]string
	chats      []string
	pageSize   int
	listOffset int
	archived   []string
	inArchived bool

	searchable []string
	typed      strings.Builder
	focused    bool
	clears     int

	detailsOK bool
	dialog    bool
	members   *memberList
	inline    []entity.Candidate
	closes    int
	noRegion  bool
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{session: model.SessionReady, pageSize: 5, detailsOK: true}
}

func (f *fakeSurface) SessionState(ctx context.Context) (model.SessionState, error) {
	return f.session, nil
}

func (f *fakeSurface) OpenTitle(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openTitle, nil
}

func (f *fakeSurface) OpenByReference(ctx context.Context, id string, archived bool) (bool, error) {
	title, ok := f.references[id]
	if ok {
		f.openTitle = title
	}
	return ok, nil
}

func (f *fakeSurface) OpenArchived(ctx context.Context) (bool, error) {
	if f.archived == nil {
		return false, nil
	}
	f.inArchived = true
	f.listOffset = 0
	return true, nil
}

func (f *fakeSurface) CloseArchived(ctx context.Context) error {
	f.inArchived = false
	return nil
}

func (f *fakeSurface) current() []string {
	if f.inArchived {
		return f.archived
	}
	return f.chats
}

func (f *fakeSurface) ListTitles(ctx context.Context) ([]string, error) {
	items := f.current()
	end := min(len(items), f.listOffset+f.pageSize)
	if f.listOffset >= end {
		return nil, nil
	}
	return append([]string(nil), items[f.listOffset:end]...), nil
}

func (f *fakeSurface) ClickListItem(ctx context.Context, title string) (bool, error) {
	f.openTitle = title
	f.inArchived = false
	return true, nil
}

func (f *fakeSurface) ScrollList(ctx context.Context, px float64) (bool, error) {
	if f.listOffset+f.pageSize >= len(f.current()) {
		return false, nil
	}
	f.listOffset++
	return true, nil
}

func (f *fakeSurface) ResetListScroll(ctx context.Context) error {
	f.listOffset = 0
	return nil
}

func (f *fakeSurface) DismissOverlays(ctx context.Context, presses int) error { return nil }

func (f *fakeSurface) FocusSearch(ctx context.Context) (bool, error) {
	f.focused = f.searchable != nil
	return f.focused, nil
}

func (f *fakeSurface) TypeChar(ctx context.Context, r rune) error {
	if !f.focused {
		return fmt.Errorf("search box not focused")
	}
	f.typed.WriteRune(r)
	return nil
}

func (f *fakeSurface) SearchResults(ctx context.Context) ([]string, error) {
	query := strings.ToLower(f.typed.String())
	var out []string
	for _, s := range f.searchable {
		if strings.Contains(strings.ToLower(s), query) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSurface) ClickSearchResult(ctx context.Context, title string) (bool, error) {
	f.openTitle = title
	return true, nil
}

func (f *fakeSurface) ClearSearch(ctx context.Context) error {
	f.clears++
	f.focused = false
	return nil
}

func (f *fakeSurface) OpenDetails(ctx context.Context) (bool, error) { return f.detailsOK, nil }

func (f *fakeSurface) OpenMembersDialog(ctx context.Context) (bool, error) { return f.dialog, nil }

func (f *fakeSurface) MembersContainer(ctx context.Context) (capture.Container, error) {
	if f.noRegion || f.members == nil {
		return nil, ErrScrollRegionNotFound
	}
	return f.members, nil
}

func (f *fakeSurface) VisibleCandidates(ctx context.Context) ([]entity.Candidate, error) {
	return f.members.visible(ctx)
}

func (f *fakeSurface) InlineCandidates(ctx context.Context) ([]entity.Candidate, error) {
	return f.inline, nil
}

func (f *fakeSurface) CloseOverlays(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func memberRows(n int) []entity.Candidate {
	rows := make([]entity.Candidate, n)
	for i := range rows {
		rows[i] = entity.Candidate{Text: fmt.Sprintf("Contact %03d", i), Phone: fmt.Sprintf("+55 11 9%08d", i)}
	}
	return rows
}
