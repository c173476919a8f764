package analysis

import (
	"sort"

	"github.com/arturoeanton/repolens/internal/domain"
)

// BuildHeatmap buckets commits by weekday and hour. Both are read in the
// offset stored on each commit, so the result reflects the committers'
// local clocks rather than a single time zone.
func BuildHeatmap(commits []domain.Commit) domain.Heatmap {
	var h domain.Heatmap
	for _, c := range commits {
		day := (int(c.CommitDate.Weekday()) + 6) % 7
		h[day][c.CommitDate.Hour()]++
	}
	return h
}

// Authors lists contributors by commit count, most active first. Authors
// with equal counts keep the order of their first commit.
func Authors(commits []domain.Commit) []domain.AuthorStat {
	index := map[string]int{}
	authors := []domain.AuthorStat{}

	for _, c := range chronological(commits) {
		key := authorKey(c)
		i, ok := index[key]
		if !ok {
			index[key] = len(authors)
			authors = append(authors, domain.AuthorStat{
				Name:        c.Author,
				Email:       c.AuthorEmail,
				FirstCommit: c.CommitDate,
			})
			i = len(authors) - 1
		}
		authors[i].Commits++
		authors[i].LastCommit = c.CommitDate
	}

	sort.SliceStable(authors, func(i, j int) bool { return authors[i].Commits > authors[j].Commits })
	return authors
}

// Timeline counts commits per calendar date, oldest first.
func Timeline(commits []domain.Commit) []domain.DailyCount {
	counts := map[string]int{}
	for _, c := range commits {
		counts[c.CommitDate.Format("2006-01-02")]++
	}

	days := make([]domain.DailyCount, 0, len(counts))
	for d, n := range counts {
		days = append(days, domain.DailyCount{Date: d, Commits: n})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}
