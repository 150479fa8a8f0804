package worker

import (
	"strings"

	"github.com/LouYuanbo1/groupagent/internal/service/collector"
	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

// foldTitle 规范化并做大小写折叠,用于标题比较。Caser 有状态,每次新建。
func foldTitle(s string) string {
	return cases.Fold().String(collector.NormalizeName(s))
}

// TitleMatches 标题相同、互相包含,或编辑距离不超过 maxDistance 时视为同一目标
func TitleMatches(title, target string, maxDistance int) bool {
	a, b := foldTitle(title), foldTitle(target)
	if a == "" || b == "" {
		return false
	}
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return levenshtein.ComputeDistance(a, b) <= maxDistance
}

// bestMatch 返回与目标距离最小的候选标题
func bestMatch(titles []string, target string, maxDistance int) (string, bool) {
	want := foldTitle(target)
	best, bestDist := "", maxDistance+1
	for _, t := range titles {
		got := foldTitle(t)
		if got == "" {
			continue
		}
		if got == want {
			return t, true
		}
		d := levenshtein.ComputeDistance(got, want)
		if strings.Contains(got, want) || strings.Contains(want, got) {
			d = min(d, maxDistance)
		}
		if d < bestDist {
			best, bestDist = t, d
		}
	}
	return best, best != ""
}
