package worker

import (
	"context"
	"errors"

	"github.com/LouYuanbo1/groupagent/internal/domain/entity"
	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/service/capture"
)

var (
	ErrTargetNotFound         = errors.New("target chat not found")
	ErrVerificationFailed     = errors.New("opened chat does not match target")
	ErrScrollRegionNotFound   = errors.New("members scroll region not found")
	ErrDetailsUnavailable     = errors.New("chat details panel could not be opened")
	ErrCaptureFailed          = errors.New("member capture failed")
	ErrInlineExtractionFailed = errors.New("inline member extraction failed")
)

// Surface 页面侧可执行的原子操作。实现负责定位页面元素,
// 上层只关心操作是否成功。
type Surface interface {
	SessionState(ctx context.Context) (model.SessionState, error)

	// OpenTitle 当前打开的会话标题,没有打开的会话时返回空串
	OpenTitle(ctx context.Context) (string, error)
	OpenByReference(ctx context.Context, id string, archived bool) (bool, error)

	OpenArchived(ctx context.Context) (bool, error)
	CloseArchived(ctx context.Context) error
	ListTitles(ctx context.Context) ([]string, error)
	ClickListItem(ctx context.Context, title string) (bool, error)
	// ScrollList 向下滚动会话列表,返回是否实际移动
	ScrollList(ctx context.Context, px float64) (bool, error)
	ResetListScroll(ctx context.Context) error

	DismissOverlays(ctx context.Context, presses int) error
	FocusSearch(ctx context.Context) (bool, error)
	TypeChar(ctx context.Context, r rune) error
	SearchResults(ctx context.Context) ([]string, error)
	ClickSearchResult(ctx context.Context, title string) (bool, error)
	ClearSearch(ctx context.Context) error

	OpenDetails(ctx context.Context) (bool, error)
	OpenMembersDialog(ctx context.Context) (bool, error)
	MembersContainer(ctx context.Context) (capture.Container, error)
	VisibleCandidates(ctx context.Context) ([]entity.Candidate, error)
	InlineCandidates(ctx context.Context) ([]entity.Candidate, error)
	CloseOverlays(ctx context.Context) error
}
