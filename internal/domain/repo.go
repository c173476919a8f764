package domain

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Repository is a discovered or saved Git repository. Discovered entries have
// an empty ID until they are saved.
type Repository struct {
	ID                string     `json:"id,omitempty"             db:"id"`
	Name              string     `json:"name"                     db:"name"`
	Path              string     `json:"path"                     db:"path"`
	RelativePath      string     `json:"relative_path"            db:"relative_path"`
	IsFavorite        bool       `json:"is_favorite"              db:"is_favorite"`
	Tags              Tags       `json:"tags"                     db:"tags"`
	LastAccessed      *time.Time `json:"last_accessed"            db:"last_accessed"`
	LastCommitDate    *time.Time `json:"last_commit_date"         db:"last_commit_date"`
	LastAnalysisJobID *string    `json:"last_analysis_job_id"     db:"last_analysis_job_id"`
	CreatedAt         *time.Time `json:"created_at,omitempty"     db:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"     db:"updated_at"`
}

// NameFromPath returns the final path segment, used when no name is given.
func NameFromPath(path string) string {
	return filepath.Base(filepath.Clean(path))
}

// RepositoryPatch carries the mutable fields of a repository. Nil fields are
// left unchanged.
type RepositoryPatch struct {
	ID           string  `json:"id,omitempty"`
	Name         *string `json:"name,omitempty"`
	Path         *string `json:"path,omitempty"`
	RelativePath *string `json:"relative_path,omitempty"`
	IsFavorite   *bool   `json:"is_favorite,omitempty"`
	Tags         *Tags   `json:"tags,omitempty"`
}

// Apply writes the non-nil patch fields onto r.
func (p RepositoryPatch) Apply(r *Repository) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Path != nil {
		r.Path = *p.Path
	}
	if p.RelativePath != nil {
		r.RelativePath = *p.RelativePath
	}
	if p.IsFavorite != nil {
		r.IsFavorite = *p.IsFavorite
	}
	if p.Tags != nil {
		r.Tags = *p.Tags
	}
}

// Sort keys accepted by RepositoryFilter.SortBy.
const (
	SortByName           = "name"
	SortByLastAccessed   = "last_accessed"
	SortByLastCommitDate = "last_commit_date"
	SortByCreatedAt      = "created_at"
)

// RepositoryFilter narrows and orders a repository listing.
type RepositoryFilter struct {
	Search     string
	IsFavorite *bool
	Tags       Tags
	SortBy     string
	SortDesc   bool
	Limit      int
	Offset     int
}

// NormalizeSortKey maps user supplied sort keys, including the camelCase
// spellings older clients send, onto a column key. Unknown keys yield "".
func NormalizeSortKey(key string) string {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", "name":
		return SortByName
	case "last_accessed", "lastaccessed":
		return SortByLastAccessed
	case "last_commit_date", "lastcommitdate":
		return SortByLastCommitDate
	case "created_at", "createdat":
		return SortByCreatedAt
	}
	return ""
}

// Tags is a case-preserving set of labels compared case-insensitively.
// It is persisted as a comma separated string.
type Tags []string

// ParseTags splits a delimited tag string, trimming whitespace and dropping
// empty and case-insensitive duplicate entries.
func ParseTags(s string) Tags {
	return NormalizeTags([]string{s})
}

// NormalizeTags splits every entry on commas, trims each tag and keeps the
// first spelling of each case-insensitive duplicate. The result survives a
// round trip through the stored form unchanged.
func NormalizeTags(in []string) Tags {
	out := Tags{}
	seen := make(map[string]struct{}, len(in))
	for _, entry := range in {
		for _, t := range strings.Split(entry, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			key := strings.ToLower(t)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// String renders the storage form.
func (t Tags) String() string {
	return strings.Join(t, ",")
}

// Has reports whether tag is present, ignoring case.
func (t Tags) Has(tag string) bool {
	for _, v := range t {
		if strings.EqualFold(v, tag) {
			return true
		}
	}
	return false
}

// HasAny reports whether any of other is present.
func (t Tags) HasAny(other Tags) bool {
	for _, o := range other {
		if t.Has(o) {
			return true
		}
	}
	return false
}

// MarshalJSON always emits an array.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

// UnmarshalJSON accepts either "a, b" or ["a", "b"].
func (t *Tags) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = ParseTags(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("tags must be a string or an array of strings")
	}
	*t = NormalizeTags(list)
	return nil
}
