package domain

import (
	"strings"
	"time"
)

// Snapshot is everything extracted from one repository at its current checkout.
type Snapshot struct {
	Commits   []Commit  `json:"commits"`
	Branches  []Branch  `json:"branches"`
	CodeStats CodeStats `json:"code_stats"`
}

// CurrentBranch returns the checked out branch name, or "" on a detached HEAD.
func (s *Snapshot) CurrentBranch() string {
	for _, b := range s.Branches {
		if b.IsCurrent {
			return b.Name
		}
	}
	return ""
}

// Commit is a single commit as reported by git log. CommitDate drives every
// time based statistic.
type Commit struct {
	Hash           string    `json:"hash"`
	Author         string    `json:"author"`
	AuthorEmail    string    `json:"author_email"`
	AuthorDate     time.Time `json:"author_date"`
	Committer      string    `json:"committer"`
	CommitterEmail string    `json:"committer_email"`
	CommitDate     time.Time `json:"commit_date"`
	Message        string    `json:"message"`
}

// Subject is the first line of the message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(subject)
}

// Branch is a local branch.
type Branch struct {
	Name      string `json:"name"`
	IsCurrent bool   `json:"is_current"`
}

// CodeStats describes the tracked files of the working tree.
type CodeStats struct {
	TotalLines     int            `json:"total_lines"`
	FileCount      int            `json:"file_count"`
	BinaryFiles    int            `json:"binary_files"`
	FileExtensions map[string]int `json:"file_extensions"`
	Languages      map[string]int `json:"languages"`
}

// NoExtension is the histogram key for files without an extension.
const NoExtension = "(none)"
