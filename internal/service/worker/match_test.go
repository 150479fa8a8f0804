package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleMatches(t *testing.T) {
	cases := []struct {
		title, target string
		want          bool
	}{
		{"Weekend Trip", "Weekend Trip", true},
		{"weekend trip", "Weekend Trip", true},
		{"Weekend Trip 2024", "Weekend Trip", true},
		{"Trip", "Weekend Trip", true},
		{"Weekend Trjp", "Weekend Trip", true},
		{"Wekend Trp", "Weekend Trip", true},
		{"Family", "Weekend Trip", false},
		{"", "Weekend Trip", false},
		{"\u200eWeekend Trip\u200f", "Weekend Trip", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, TitleMatches(c.title, c.target, 3), "%q vs %q", c.title, c.target)
	}
}

func TestBestMatchPrefersClosestTitle(t *testing.T) {
	titles := []string{"Work", "Weekend Trip Planning", "Weekend Trip", "Weekend"}

	got, ok := bestMatch(titles, "weekend trip", 2)

	assert.True(t, ok)
	assert.Equal(t, "Weekend Trip", got)
}

func TestBestMatchRejectsDistantTitles(t *testing.T) {
	_, ok := bestMatch([]string{"Office", "Family"}, "Weekend Trip", 2)
	assert.False(t, ok)
}

func TestTitleMatchesCountsRuneEdits(t *testing.T) {
	assert.True(t, TitleMatches("São Paulo", "Sao Paulo", 1))
	assert.False(t, TitleMatches("São Paulo", "Sao Paulo", 0))
	assert.True(t, TitleMatches("Kitten Club", "Sitting Club", 3))
	assert.False(t, TitleMatches("Kitten Club", "Sitting Club", 2))

	got, ok := bestMatch([]string{"Sitting Club", "São Paulo"}, "Sao Paulo", 1)
	assert.True(t, ok)
	assert.Equal(t, "São Paulo", got)
}
