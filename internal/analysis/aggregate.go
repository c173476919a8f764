package analysis

import (
	"sort"
	"time"

	"github.com/arturoeanton/repolens/internal/domain"
)

// canonical returns repos sorted by path and name so that every reduction
// below is independent of the order results arrived in.
func canonical(repos []domain.RepositoryAnalysis) []domain.RepositoryAnalysis {
	out := append([]domain.RepositoryAnalysis(nil), repos...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Aggregate combines per-repository results. Repositories without commits
// still count toward ReposAnalyzed but contribute nothing to time based
// figures.
func Aggregate(repos []domain.RepositoryAnalysis) domain.AggregateStats {
	ordered := canonical(repos)
	agg := domain.AggregateStats{
		ReposAnalyzed: len(ordered),
		FrequentWords: []domain.WordCount{},
	}

	var first, last time.Time
	for _, r := range ordered {
		s := r.Summary
		agg.TotalCommits += s.NumCommits
		agg.TotalBranches += s.NumBranches
		agg.TotalLines += s.TotalLines
		agg.TotalFiles += s.FileCount

		if s.FirstCommit != nil && (first.IsZero() || s.FirstCommit.Before(first)) {
			first = *s.FirstCommit
		}
		if s.LastCommit != nil && (last.IsZero() || s.LastCommit.After(last)) {
			last = *s.LastCommit
		}

		if avg := s.AvgSecondsBetweenCommits; avg > 0 && (agg.FastestPaceRepo == "" ||
			avg < agg.FastestPaceSeconds ||
			(avg == agg.FastestPaceSeconds && r.Name < agg.FastestPaceRepo)) {
			agg.FastestPaceRepo = r.Name
			agg.FastestPaceSeconds = s.AvgSecondsBetweenCommits
		}
	}

	if agg.TotalCommits > 0 {
		agg.FirstCommit = &first
		agg.LastCommit = &last
		agg.TimeSpanDays = daysBetween(first, last)
		agg.OverallCommitsPerDay = pace(agg.TotalCommits, first, last)
		agg.FrequentWords = TopWords(subjects(chronological(allCommits(ordered))), TopWordsLimit)
	}
	return agg
}

func allCommits(repos []domain.RepositoryAnalysis) []domain.Commit {
	var out []domain.Commit
	for _, r := range repos {
		out = append(out, r.Commits...)
	}
	return out
}

// Analyze builds the per-repository record for one extracted snapshot.
func Analyze(repo domain.Repository, snap *domain.Snapshot) domain.RepositoryAnalysis {
	name := repo.Name
	if name == "" {
		name = domain.NameFromPath(repo.Path)
	}
	return domain.RepositoryAnalysis{
		Name:         name,
		Path:         repo.Path,
		RelativePath: repo.RelativePath,
		Commits:      snap.Commits,
		Branches:     snap.Branches,
		CodeStats:    snap.CodeStats,
		Summary:      Summarize(name, snap),
	}
}

// BuildArtifact assembles the canonical artifact of a job.
func BuildArtifact(jobID, root string, repos []domain.RepositoryAnalysis, skipped []domain.SkippedRepository) *domain.Artifact {
	ordered := canonical(repos)
	commits := allCommits(ordered)

	combined := &domain.Snapshot{Commits: commits, CodeStats: domain.CodeStats{FileExtensions: map[string]int{}}}
	for _, r := range ordered {
		combined.Branches = append(combined.Branches, r.Branches...)
		combined.CodeStats.TotalLines += r.CodeStats.TotalLines
		combined.CodeStats.FileCount += r.CodeStats.FileCount
		for ext, n := range r.CodeStats.FileExtensions {
			combined.CodeStats.FileExtensions[ext] += n
		}
	}
	if skipped == nil {
		skipped = []domain.SkippedRepository{}
	}
	if ordered == nil {
		ordered = []domain.RepositoryAnalysis{}
	}

	return &domain.Artifact{
		JobID:          jobID,
		GeneratedAt:    time.Now().UTC(),
		RootPath:       root,
		Repositories:   ordered,
		Summary:        Summarize(domain.NameFromPath(root), combined),
		AggregateStats: Aggregate(ordered),
		Authors:        Authors(commits),
		Heatmap:        BuildHeatmap(commits),
		Timeline:       Timeline(commits),
		Skipped:        skipped,
	}
}
