package domain

import "time"

// Artifact is the stored result of a completed job.
type Artifact struct {
	JobID          string               `json:"job_id"`
	GeneratedAt    time.Time            `json:"generated_at"`
	RootPath       string               `json:"root_path"`
	Repositories   []RepositoryAnalysis `json:"repositories"`
	Summary        Summary              `json:"summary"`
	AggregateStats AggregateStats       `json:"aggregate_stats"`
	Authors        []AuthorStat         `json:"authors"`
	Heatmap        Heatmap              `json:"heatmap"`
	Timeline       []DailyCount         `json:"timeline"`
	Skipped        []SkippedRepository  `json:"skipped"`
}

// RepositoryAnalysis is the extraction and summary of one repository.
type RepositoryAnalysis struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	RelativePath string    `json:"relative_path"`
	Commits      []Commit  `json:"commits"`
	Branches     []Branch  `json:"branches"`
	CodeStats    CodeStats `json:"code_stats"`
	Summary      Summary   `json:"summary"`
}

// Summary holds per-repository statistics. Durations are in seconds.
type Summary struct {
	Name                     string         `json:"name"`
	NumCommits               int            `json:"num_commits"`
	NumBranches              int            `json:"num_branches"`
	TotalLines               int            `json:"total_lines"`
	FileCount                int            `json:"file_count"`
	FileExtensions           map[string]int `json:"file_extensions"`
	FirstCommit              *time.Time     `json:"first_commit"`
	LastCommit               *time.Time     `json:"last_commit"`
	TimeSpanDays             float64        `json:"time_span_days"`
	CommitsPerDay            float64        `json:"commits_per_day"`
	AvgSecondsBetweenCommits float64        `json:"avg_seconds_between_commits"`
	MinSecondsBetweenCommits float64        `json:"min_seconds_between_commits"`
	MaxSecondsBetweenCommits float64        `json:"max_seconds_between_commits"`
	PeakPaceSeconds          float64        `json:"peak_pace_seconds"`
	LinesPerCommit           float64        `json:"lines_per_commit"`
	Contributors             int            `json:"contributors"`
	FrequentWords            []WordCount    `json:"frequent_words"`
}

// AggregateStats combines all analyzed repositories.
type AggregateStats struct {
	ReposAnalyzed        int         `json:"repos_analyzed"`
	TotalCommits         int         `json:"total_commits"`
	TotalBranches        int         `json:"total_branches"`
	TotalLines           int         `json:"total_lines"`
	TotalFiles           int         `json:"total_files"`
	FirstCommit          *time.Time  `json:"first_commit"`
	LastCommit           *time.Time  `json:"last_commit"`
	TimeSpanDays         float64     `json:"time_span_days"`
	OverallCommitsPerDay float64     `json:"overall_commits_per_day"`
	FrequentWords        []WordCount `json:"frequent_words"`
	FastestPaceRepo      string      `json:"fastest_pace_repo,omitempty"`
	FastestPaceSeconds   float64     `json:"fastest_pace_seconds"`
}

// WordCount is one entry of a word frequency ranking.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// AuthorStat is the contribution of one author.
type AuthorStat struct {
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Commits     int       `json:"commits"`
	FirstCommit time.Time `json:"first_commit"`
	LastCommit  time.Time `json:"last_commit"`
}

// Heatmap counts commits by weekday (Monday = 0) and hour of day, both read
// in the offset recorded on the commit.
type Heatmap [7][24]int

// Total returns the number of commits counted.
func (h Heatmap) Total() int {
	n := 0
	for _, row := range h {
		for _, v := range row {
			n += v
		}
	}
	return n
}

// Weekdays labels the heatmap rows.
var Weekdays = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DailyCount is the number of commits on one calendar date (YYYY-MM-DD).
type DailyCount struct {
	Date    string `json:"date"`
	Commits int    `json:"commits"`
}

// SkippedRepository records a repository that could not be analyzed inside
// a multi-repository job.
type SkippedRepository struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// DirectoryEntry is one item of a directory listing.
type DirectoryEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Modified int64  `json:"modified"`
}

// DirectoryListing is the result of browsing a directory.
type DirectoryListing struct {
	CurrentDir string           `json:"current_dir"`
	ParentDir  string           `json:"parent_dir"`
	Contents   []DirectoryEntry `json:"contents"`
}
