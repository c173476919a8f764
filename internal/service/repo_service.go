package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
)

// RepoService manages saved repositories and discovery.
type RepoService struct {
	store        port.RepositoryStore
	finder       port.RepoFinder
	defaultDepth int
}

// NewRepoService creates a new repository service.
func NewRepoService(store port.RepositoryStore, finder port.RepoFinder, defaultDepth int) *RepoService {
	return &RepoService{store: store, finder: finder, defaultDepth: defaultDepth}
}

// Discover lists the repositories below baseDir. A negative depth uses the
// configured default.
func (s *RepoService) Discover(ctx context.Context, baseDir string, depth int) ([]domain.Repository, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, port.NewValidationError(port.KindMissing, "base_dir is required", "query", "base_dir")
	}
	depth = s.ResolveDepth(depth)
	repos, err := s.finder.Discover(ctx, baseDir, depth)
	if err != nil {
		return nil, err
	}
	slog.Info("repositories discovered", "base_dir", baseDir, "depth", depth, "count", len(repos))
	return repos, nil
}

// ResolveDepth replaces a negative depth with the configured default.
func (s *RepoService) ResolveDepth(depth int) int {
	if depth < 0 {
		return s.defaultDepth
	}
	return depth
}

// Create validates r and saves it. Saving a path that already exists updates
// the existing record.
func (s *RepoService) Create(ctx context.Context, r domain.Repository) (*domain.Repository, error) {
	path := strings.TrimSpace(r.Path)
	if path == "" {
		return nil, port.NewValidationError(port.KindMissing, "path is required", "body", "path")
	}
	r.Path = filepath.Clean(path)
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		r.Name = domain.NameFromPath(r.Path)
	}
	r.Tags = domain.NormalizeTags(r.Tags)

	saved, err := s.store.CreateRepository(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("save repository: %w", err)
	}
	slog.Info("repository saved", "repo_id", saved.ID, "path", saved.Path)
	return saved, nil
}

// Get returns a repository and records the access.
func (s *RepoService) Get(ctx context.Context, id string) (*domain.Repository, error) {
	if err := s.store.TouchRepository(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetRepository(ctx, id)
}

// Update applies patch to the repository id.
func (s *RepoService) Update(ctx context.Context, id string, patch domain.RepositoryPatch) (*domain.Repository, error) {
	if err := validatePatch(&patch, "body"); err != nil {
		return nil, err
	}
	return s.store.UpdateRepository(ctx, id, patch)
}

// BatchUpdate applies every patch or none of them.
func (s *RepoService) BatchUpdate(ctx context.Context, patches []domain.RepositoryPatch) ([]domain.Repository, error) {
	if len(patches) == 0 {
		return nil, port.NewValidationError(port.KindMissing, "at least one update is required", "body")
	}
	var errs port.ValidationErrors
	for i := range patches {
		if err := validatePatch(&patches[i], "body", fmt.Sprint(i)); err != nil {
			if ve, ok := err.(port.ValidationErrors); ok {
				errs = append(errs, ve...)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return s.store.BatchUpdateRepositories(ctx, patches)
}

// validatePatch rejects blank names and paths and normalizes the rest.
func validatePatch(p *domain.RepositoryPatch, location ...string) error {
	var errs port.ValidationErrors
	at := func(field string) []string {
		return append(append([]string{}, location...), field)
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			errs = append(errs, port.FieldError{Location: at("name"), Message: "name must not be empty", Kind: port.KindInvalid})
		}
		p.Name = &name
	}
	if p.Path != nil {
		path := strings.TrimSpace(*p.Path)
		if path == "" {
			errs = append(errs, port.FieldError{Location: at("path"), Message: "path must not be empty", Kind: port.KindInvalid})
		} else {
			path = filepath.Clean(path)
		}
		p.Path = &path
	}
	if p.Tags != nil {
		tags := domain.NormalizeTags(*p.Tags)
		p.Tags = &tags
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Delete removes a repository. Its jobs are kept.
func (s *RepoService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteRepository(ctx, id); err != nil {
		return err
	}
	slog.Info("repository deleted", "repo_id", id)
	return nil
}

// List returns the repositories matching f.
func (s *RepoService) List(ctx context.Context, f domain.RepositoryFilter) ([]domain.Repository, error) {
	if f.Limit < 0 {
		return nil, port.NewValidationError(port.KindInvalid, "limit must not be negative", "query", "limit")
	}
	if f.Offset < 0 {
		return nil, port.NewValidationError(port.KindInvalid, "offset must not be negative", "query", "offset")
	}
	return s.store.ListRepositories(ctx, f)
}

// SetFavorite sets the favorite flag, or flips it when favorite is nil.
func (s *RepoService) SetFavorite(ctx context.Context, id string, favorite *bool) (*domain.Repository, error) {
	value := false
	if favorite != nil {
		value = *favorite
	} else {
		current, err := s.store.GetRepository(ctx, id)
		if err != nil {
			return nil, err
		}
		value = !current.IsFavorite
	}
	return s.store.SetFavorite(ctx, id, value)
}

// Tags returns every tag in use.
func (s *RepoService) Tags(ctx context.Context) ([]string, error) {
	return s.store.ListTags(ctx)
}

// Search matches query against names, paths and tags.
func (s *RepoService) Search(ctx context.Context, query string, limit int) ([]domain.Repository, error) {
	if strings.TrimSpace(query) == "" {
		return nil, port.NewValidationError(port.KindMissing, "query is required", "query", "query")
	}
	return s.store.SearchRepositories(ctx, query, limit)
}
