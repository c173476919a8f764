// Package report renders job artifacts into exportable documents.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
)

const dateTimeLayout = "2006-01-02 15:04:05 -07:00"

// topAuthors bounds the contributor table.
const topAuthors = 10

// MarkdownRenderer writes the human readable report stored with each job.
type MarkdownRenderer struct{}

var _ port.ReportRenderer = MarkdownRenderer{}

// NewMarkdownRenderer creates a MarkdownRenderer.
func NewMarkdownRenderer() MarkdownRenderer { return MarkdownRenderer{} }

func (MarkdownRenderer) Format() string      { return "markdown" }
func (MarkdownRenderer) ContentType() string { return "text/markdown; charset=utf-8" }
func (MarkdownRenderer) Extension() string   { return ".md" }

// Render writes a. The output depends only on the artifact.
func (MarkdownRenderer) Render(w io.Writer, a *domain.Artifact) error {
	bw := bufio.NewWriter(w)
	md := &mdWriter{w: bw}

	md.line("# Repository Analysis Report")
	md.blank()
	md.line("Generated on %s for `%s`", a.GeneratedAt.UTC().Format(dateTimeLayout), a.RootPath)
	md.blank()

	writeOverview(md, a.AggregateStats)
	writeRepositories(md, a.Repositories)
	writeAuthors(md, a.Authors)
	writeActivity(md, a.Heatmap)
	writeWords(md, "Common Words in Commit Messages", a.AggregateStats.FrequentWords)
	writeSkipped(md, a.Skipped)

	if md.err != nil {
		return fmt.Errorf("render markdown: %w", md.err)
	}
	return bw.Flush()
}

// mdWriter remembers the first write error so callers can write freely.
type mdWriter struct {
	w   io.Writer
	err error
}

func (m *mdWriter) line(format string, args ...any) {
	if m.err != nil {
		return
	}
	_, m.err = fmt.Fprintf(m.w, format+"\n", args...)
}

func (m *mdWriter) blank() { m.line("") }

func writeOverview(md *mdWriter, s domain.AggregateStats) {
	md.line("## Overview")
	md.blank()
	md.line("- **Repositories Analyzed**: %d", s.ReposAnalyzed)
	if s.FirstCommit != nil && s.LastCommit != nil {
		md.line("- **Time Span**: %s to %s", s.FirstCommit.Format(dateTimeLayout), s.LastCommit.Format(dateTimeLayout))
		md.line("- **Duration**: %.2f days", s.TimeSpanDays)
	}
	md.line("- **Total Commits**: %s", humanize.Comma(int64(s.TotalCommits)))
	md.line("- **Total Branches**: %s", humanize.Comma(int64(s.TotalBranches)))
	md.line("- **Total Files**: %s", humanize.Comma(int64(s.TotalFiles)))
	md.line("- **Total Lines of Code**: %s", humanize.Comma(int64(s.TotalLines)))
	md.line("- **Average Commits per Day**: %.2f", s.OverallCommitsPerDay)
	if s.FastestPaceRepo != "" {
		md.line("- **Fastest Commit Pace**: %s between commits in %s", FormatSeconds(s.FastestPaceSeconds), s.FastestPaceRepo)
	}
	md.blank()
}

func writeRepositories(md *mdWriter, repos []domain.RepositoryAnalysis) {
	md.line("## Repository Breakdown")
	md.blank()
	if len(repos) == 0 {
		md.line("_No repositories analyzed._")
		md.blank()
		return
	}

	md.line("| Repository | Commits | Branches | Files | Lines | Commits/Day | Contributors |")
	md.line("|---|---:|---:|---:|---:|---:|---:|")
	for _, r := range repos {
		s := r.Summary
		md.line("| %s | %s | %d | %s | %s | %.2f | %d |", escapeCell(s.Name),
			humanize.Comma(int64(s.NumCommits)), s.NumBranches, humanize.Comma(int64(s.FileCount)),
			humanize.Comma(int64(s.TotalLines)), s.CommitsPerDay, s.Contributors)
	}
	md.blank()

	for _, r := range repos {
		s := r.Summary
		md.line("### %s", s.Name)
		md.blank()
		md.line("- **Path**: `%s`", r.Path)
		if current := currentBranch(r.Branches); current != "" {
			md.line("- **Current Branch**: %s", current)
		}
		md.line("- **Commits**: %s", humanize.Comma(int64(s.NumCommits)))
		md.line("- **Branches**: %d", s.NumBranches)
		md.line("- **Total Lines**: %s", humanize.Comma(int64(s.TotalLines)))
		if s.FirstCommit != nil && s.LastCommit != nil {
			md.line("- **First Commit**: %s", s.FirstCommit.Format(dateTimeLayout))
			md.line("- **Last Commit**: %s", s.LastCommit.Format(dateTimeLayout))
			md.line("- **Time Span**: %.2f days", s.TimeSpanDays)
			md.line("- **Commits per Day**: %.2f", s.CommitsPerDay)
		}
		if s.NumCommits > 1 {
			md.line("- **Average Time Between Commits**: %s", FormatSeconds(s.AvgSecondsBetweenCommits))
			md.line("- **Peak Pace**: %s between commits", FormatSeconds(s.PeakPaceSeconds))
		}
		if s.NumCommits > 0 {
			md.line("- **Lines per Commit**: %.2f", s.LinesPerCommit)
		}
		if exts := topExtensions(s.FileExtensions, 5); len(exts) > 0 {
			md.line("- **Top Extensions**: %s", strings.Join(exts, ", "))
		}
		if len(s.FrequentWords) > 0 {
			md.line("- **Common Words in Commit Messages**:")
			for _, w := range s.FrequentWords {
				md.line("  - '%s': %d occurrences", w.Word, w.Count)
			}
		}
		md.blank()
	}
}

func writeAuthors(md *mdWriter, authors []domain.AuthorStat) {
	if len(authors) == 0 {
		return
	}
	md.line("## Top Contributors")
	md.blank()
	md.line("| Author | Commits | First Commit | Last Commit |")
	md.line("|---|---:|---|---|")
	for i, a := range authors {
		if i == topAuthors {
			break
		}
		md.line("| %s | %s | %s | %s |", escapeCell(a.Name), humanize.Comma(int64(a.Commits)),
			a.FirstCommit.Format(time.DateOnly), a.LastCommit.Format(time.DateOnly))
	}
	md.blank()
}

func writeActivity(md *mdWriter, h domain.Heatmap) {
	if h.Total() == 0 {
		return
	}
	md.line("## Activity")
	md.blank()
	md.line("| Day | Commits | Busiest Hour |")
	md.line("|---|---:|---:|")
	for day, row := range h {
		total, busiest := 0, 0
		for hour, n := range row {
			total += n
			if n > row[busiest] {
				busiest = hour
			}
		}
		if total == 0 {
			md.line("| %s | 0 | - |", domain.Weekdays[day])
			continue
		}
		md.line("| %s | %d | %02d:00 |", domain.Weekdays[day], total, busiest)
	}
	md.blank()
}

func writeWords(md *mdWriter, title string, words []domain.WordCount) {
	if len(words) == 0 {
		return
	}
	md.line("## %s", title)
	md.blank()
	for _, w := range words {
		md.line("- '%s': %d occurrences", w.Word, w.Count)
	}
	md.blank()
}

func writeSkipped(md *mdWriter, skipped []domain.SkippedRepository) {
	if len(skipped) == 0 {
		return
	}
	md.line("## Skipped Repositories")
	md.blank()
	for _, s := range skipped {
		md.line("- `%s`: %s", s.Path, s.Error)
	}
	md.blank()
}

// paceUnits lists duration units from smallest to largest. A duration uses
// the first unit whose limit it is below; the last unit has no limit.
var paceUnits = []struct {
	limit time.Duration
	size  time.Duration
	name  string
}{
	{time.Minute, time.Second, "second"},
	{time.Hour, time.Minute, "minute"},
	{48 * time.Hour, time.Hour, "hour"},
	{0, 24 * time.Hour, "day"},
}

// FormatSeconds renders a duration given in seconds in the largest unit
// that keeps it readable, with at most one decimal.
func FormatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	for _, u := range paceUnits {
		if u.limit != 0 && d >= u.limit {
			continue
		}
		amount := humanize.FtoaWithDigits(float64(d)/float64(u.size), 1)
		if amount == "1" {
			return amount + " " + u.name
		}
		return amount + " " + u.name + "s"
	}
	return ""
}

func currentBranch(branches []domain.Branch) string {
	for _, b := range branches {
		if b.IsCurrent {
			return b.Name
		}
	}
	return ""
}

// topExtensions lists the n most common extensions as "ext (count)", most
// common first, ties by name.
func topExtensions(exts map[string]int, n int) []string {
	keys := make([]string, 0, len(exts))
	for k := range exts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if exts[keys[i]] != exts[keys[j]] {
			return exts[keys[i]] > exts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprintf("%s (%d)", k, exts[k])
	}
	return out
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
