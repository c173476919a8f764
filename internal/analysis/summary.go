// Package analysis reduces extracted repository data into summary and
// aggregate statistics. Everything here is pure and deterministic.
package analysis

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/arturoeanton/repolens/internal/domain"
)

const (
	secondsPerDay = 24 * 60 * 60

	// paceWindow is the number of consecutive commits inspected for the
	// peak pace.
	paceWindow = 5
)

// Summarize computes the statistics of one repository snapshot.
func Summarize(name string, snap *domain.Snapshot) domain.Summary {
	s := domain.Summary{
		Name:           name,
		NumCommits:     len(snap.Commits),
		NumBranches:    len(snap.Branches),
		TotalLines:     snap.CodeStats.TotalLines,
		FileCount:      snap.CodeStats.FileCount,
		FileExtensions: copyCounts(snap.CodeStats.FileExtensions),
		FrequentWords:  []domain.WordCount{},
	}
	if len(snap.Commits) == 0 {
		return s
	}

	ordered := chronological(snap.Commits)
	first := ordered[0].CommitDate
	last := ordered[len(ordered)-1].CommitDate
	s.FirstCommit = &first
	s.LastCommit = &last
	s.TimeSpanDays = daysBetween(first, last)
	s.CommitsPerDay = pace(len(ordered), first, last)

	gaps := gapsSeconds(ordered)
	if len(gaps) > 0 {
		s.MinSecondsBetweenCommits = math.Inf(1)
		total := 0.0
		for _, g := range gaps {
			total += g
			s.MinSecondsBetweenCommits = math.Min(s.MinSecondsBetweenCommits, g)
			s.MaxSecondsBetweenCommits = math.Max(s.MaxSecondsBetweenCommits, g)
		}
		s.AvgSecondsBetweenCommits = total / float64(len(gaps))
		s.PeakPaceSeconds = peakPace(ordered)
	}

	s.LinesPerCommit = float64(s.TotalLines) / float64(s.NumCommits)
	s.Contributors = countContributors(ordered)
	s.FrequentWords = TopWords(subjects(ordered), TopWordsLimit)
	return s
}

// pace is commits / max(1, days between first and last). Zero commits give zero.
func pace(n int, first, last time.Time) float64 {
	if n == 0 {
		return 0
	}
	return float64(n) / math.Max(1, daysBetween(first, last))
}

func daysBetween(first, last time.Time) float64 {
	return last.Sub(first).Seconds() / secondsPerDay
}

// chronological returns a copy of commits ordered by commit date, oldest
// first, with hash as the final tie-break.
func chronological(commits []domain.Commit) []domain.Commit {
	out := append([]domain.Commit(nil), commits...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CommitDate.Equal(out[j].CommitDate) {
			return out[i].CommitDate.Before(out[j].CommitDate)
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}

func gapsSeconds(ordered []domain.Commit) []float64 {
	if len(ordered) < 2 {
		return nil
	}
	gaps := make([]float64, 0, len(ordered)-1)
	for i := 1; i < len(ordered); i++ {
		gaps = append(gaps, ordered[i].CommitDate.Sub(ordered[i-1].CommitDate).Seconds())
	}
	return gaps
}

// peakPace is the smallest mean gap over any paceWindow consecutive commits.
// Shorter histories use the whole series as a single window.
func peakPace(ordered []domain.Commit) float64 {
	window := min(paceWindow, len(ordered))
	if window < 2 {
		return 0
	}
	best := math.Inf(1)
	for i := 0; i+window <= len(ordered); i++ {
		span := ordered[i+window-1].CommitDate.Sub(ordered[i].CommitDate).Seconds()
		best = math.Min(best, span/float64(window-1))
	}
	return best
}

func subjects(commits []domain.Commit) []string {
	out := make([]string, len(commits))
	for i, c := range commits {
		out[i] = c.Subject()
	}
	return out
}

func authorKey(c domain.Commit) string {
	if c.AuthorEmail != "" {
		return strings.ToLower(c.AuthorEmail)
	}
	return "name:" + c.Author
}

func countContributors(commits []domain.Commit) int {
	seen := map[string]struct{}{}
	for _, c := range commits {
		seen[authorKey(c)] = struct{}{}
	}
	return len(seen)
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
