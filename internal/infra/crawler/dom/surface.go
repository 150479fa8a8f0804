package dom

import (
	"context"
	"fmt"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/entity"
	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/clock"
	"github.com/LouYuanbo1/groupagent/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/groupagent/internal/infra/crawler/discovery"
	"github.com/LouYuanbo1/groupagent/internal/service/capture"
	"github.com/ternarybob/arbor"
)

// 各查找点的候选选择器,按优先级排列
var (
	listRoots = []string{
		`#pane-side`,
		`div[aria-label="Chat list"]`,
		`div[aria-label="Lista de conversas"]`,
		`#side div[role="grid"]`,
	}
	archivedButtons = []string{
		`#pane-side button`,
		`#pane-side div[role="button"]`,
		`#side button`,
	}
	archivedBack = []string{
		`[data-icon="back"]`,
		`button[aria-label*="Back"]`,
		`button[aria-label*="Voltar"]`,
	}
	searchBoxes = []string{
		`div[contenteditable="true"][data-tab="3"]`,
		`#side div[role="textbox"][contenteditable="true"]`,
		`#side div[contenteditable="true"]`,
	}
	headerTargets = []string{
		`#main header [role="button"]`,
		`#main header div[tabindex="0"]`,
		`#main header span[title]`,
	}
	infoPanels = []string{
		`#app > div > div > div[data-testid="panel"]`,
		`#app > div > div > .two`,
		`#app > div > div > div[role="navigation"]`,
		`[data-testid="chat-info-drawer"]`,
	}
)

const (
	archivedPattern = `arquivad|archived`
	seeAllPattern   = `\d+\s*(membros|members)|ver tud|see all`
)

type Delays struct {
	Click   time.Duration
	Details time.Duration
	Dialog  time.Duration
	Escape  time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		Click:   300 * time.Millisecond,
		Details: time.Second,
		Dialog:  1500 * time.Millisecond,
		Escape:  200 * time.Millisecond,
	}
}

// Surface 基于 CDP 脚本执行的页面操作面
type Surface struct {
	driver   chrome.Driver
	delays   Delays
	logger   arbor.ILogger
	sleep    func(ctx context.Context, d time.Duration) error
	listRoot string
}

func NewSurface(driver chrome.Driver, delays Delays, logger arbor.ILogger) *Surface {
	return &Surface{
		driver: driver,
		delays: delays,
		logger: logger,
		sleep:  clock.Sleep,
	}
}


func (s *Surface) evalBool(ctx context.Context, js string, args ...any) (bool, error) {
	var ok bool
	if err := s.driver.Eval(ctx, js, &ok, args...); err != nil {
		return false, err
	}
	return ok, nil
}

// firstSelector 用同一脚本依次尝试候选选择器,返回第一个成功的选择器
func (s *Surface) firstSelector(ctx context.Context, js string, selectors []string, extra ...any) (string, bool, error) {
	strategies := make([]discovery.Strategy[string], 0, len(selectors))
	for _, sel := range selectors {
		strategies = append(strategies, discovery.Strategy[string]{
			Name: sel,
			Find: func(ctx context.Context) (string, bool, error) {
				ok, err := s.evalBool(ctx, js, append([]any{sel}, extra...)...)
				return sel, ok, err
			},
		})
	}
	sel, _, err := discovery.First(ctx, strategies...)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, nil
	}
	return sel, true, nil
}

func (s *Surface) root(ctx context.Context) (string, error) {
	sel, ok, err := s.firstSelector(ctx, jsExists, listRoots)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("chat list not found")
	}
	s.listRoot = sel
	return sel, nil
}

func (s *Surface) SessionState(ctx context.Context) (model.SessionState, error) {
	var state model.SessionState
	if err := s.driver.Eval(ctx, jsSessionState, &state); err != nil {
		return "", err
	}
	return state, nil
}

func (s *Surface) OpenTitle(ctx context.Context) (string, error) {
	var title string
	if err := s.driver.Eval(ctx, jsOpenTitle, &title); err != nil {
		return "", err
	}
	return title, nil
}

func (s *Surface) OpenByReference(ctx context.Context, id string, archived bool) (bool, error) {
	return s.evalBool(ctx, jsOpenByReference, id, archived)
}

func (s *Surface) OpenArchived(ctx context.Context) (bool, error) {
	_, ok, err := s.firstSelector(ctx, jsClickByText, archivedButtons, archivedPattern)
	if err != nil || !ok {
		return false, err
	}
	if err := s.sleep(ctx, s.delays.Details); err != nil {
		return false, err
	}
	// 归档视图的标题栏应出现 "Archived"
	return s.evalBool(ctx, jsClickByText, `header span, header h1`, `^\s*(arquivad|archived)`)
}

func (s *Surface) CloseArchived(ctx context.Context) error {
	_, _, err := s.firstSelector(ctx, jsClickFirst, archivedBack)
	return err
}

func (s *Surface) ListTitles(ctx context.Context) ([]string, error) {
	root, err := s.root(ctx)
	if err != nil {
		return nil, err
	}
	var titles []string
	if err := s.driver.Eval(ctx, jsListTitles, &titles, root); err != nil {
		return nil, err
	}
	return titles, nil
}

func (s *Surface) ClickListItem(ctx context.Context, title string) (bool, error) {
	root := s.listRoot
	if root == "" {
		root = listRoots[0]
	}
	return s.evalBool(ctx, jsClickTitle, root, title)
}

func (s *Surface) ScrollList(ctx context.Context, px float64) (bool, error) {
	root, err := s.root(ctx)
	if err != nil {
		return false, err
	}
	return s.evalBool(ctx, jsScrollBy, root, px)
}

func (s *Surface) ResetListScroll(ctx context.Context) error {
	root, err := s.root(ctx)
	if err != nil {
		return err
	}
	_, err = s.evalBool(ctx, jsScrollReset, root)
	return err
}

func (s *Surface) DismissOverlays(ctx context.Context, presses int) error {
	for range presses {
		if err := s.driver.PressEscape(ctx); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.delays.Escape/2); err != nil {
			return err
		}
	}
	return nil
}

func (s *Surface) FocusSearch(ctx context.Context) (bool, error) {
	_, ok, err := s.firstSelector(ctx, jsFocus, searchBoxes)
	return ok, err
}

func (s *Surface) TypeChar(ctx context.Context, r rune) error {
	return s.driver.InsertText(ctx, string(r))
}

func (s *Surface) SearchResults(ctx context.Context) ([]string, error) {
	return s.ListTitles(ctx)
}

func (s *Surface) ClickSearchResult(ctx context.Context, title string) (bool, error) {
	return s.ClickListItem(ctx, title)
}

func (s *Surface) ClearSearch(ctx context.Context) error {
	_, _, err := s.firstSelector(ctx, jsClearSearch, searchBoxes)
	return err
}

func (s *Surface) OpenDetails(ctx context.Context) (bool, error) {
	_, ok, err := s.firstSelector(ctx, jsClickFirst, headerTargets)
	if err != nil || !ok {
		return false, err
	}
	if err := s.sleep(ctx, s.delays.Details); err != nil {
		return false, err
	}
	return true, nil
}

// OpenMembersDialog 点击 "N members / see all" 打开成员弹窗;小群没有该入口,返回 false
func (s *Surface) OpenMembersDialog(ctx context.Context) (bool, error) {
	if err := s.sleep(ctx, s.delays.Click); err != nil {
		return false, err
	}
	clicked, err := s.evalBool(ctx, jsClickByText, `div[role="button"]`, seeAllPattern)
	if err != nil || !clicked {
		return false, err
	}
	if err := s.sleep(ctx, s.delays.Dialog); err != nil {
		return false, err
	}
	return s.evalBool(ctx, jsDialogOpen)
}

func (s *Surface) MembersContainer(ctx context.Context) (capture.Container, error) {
	ok, err := s.evalBool(ctx, jsMarkScrollRegion, scrollMarker)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errScrollRegion
	}
	return &container{driver: s.driver}, nil
}

func (s *Surface) VisibleCandidates(ctx context.Context) ([]entity.Candidate, error) {
	var rows *[]rawRow
	if err := s.driver.Eval(ctx, jsReadRows, &rows, "["+scrollMarker+"]", rowSelectors, true); err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, capture.ErrDetached
	}
	return toCandidates(*rows), nil
}

func (s *Surface) InlineCandidates(ctx context.Context) ([]entity.Candidate, error) {
	panel, ok, err := s.firstSelector(ctx, jsExists, infoPanels)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("info panel not found")
	}
	var rows []rawRow
	if err := s.driver.Eval(ctx, jsReadRows, &rows, panel, rowSelectors, false); err != nil {
		return nil, err
	}
	return toCandidates(rows), nil
}

func (s *Surface) CloseOverlays(ctx context.Context) error {
	var clicked int
	if err := s.driver.Eval(ctx, jsCloseDialogs, &clicked, scrollMarker); err != nil {
		s.logger.Debug().Err(err).Msg("close dialog buttons failed")
	}
	if clicked > 0 {
		if err := s.sleep(ctx, s.delays.Escape); err != nil {
			return err
		}
	}
	if err := s.driver.PressEscape(ctx); err != nil {
		return err
	}
	return s.sleep(ctx, s.delays.Escape)
}
