package handler

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
	"github.com/arturoeanton/repolens/internal/service"
)

// RepoHandler handles saved repository CRUD.
type RepoHandler struct {
	repoService *service.RepoService
}

// NewRepoHandler creates a new repo handler.
func NewRepoHandler(repoService *service.RepoService) *RepoHandler {
	return &RepoHandler{repoService: repoService}
}

// Register sets up repository routes. Fixed paths come before /:id.
func (h *RepoHandler) Register(router fiber.Router) {
	repos := router.Group("/repositories")
	repos.Get("/", h.List)
	repos.Post("/", h.Create)
	repos.Get("/tags", h.Tags)
	repos.Get("/search", h.Search)
	repos.Put("/batch", h.BatchUpdate)
	repos.Post("/batch_update", h.BatchUpdate)
	repos.Get("/:id", h.Get)
	repos.Put("/:id", h.Update)
	repos.Delete("/:id", h.Delete)
	repos.Post("/:id/favorite", h.Favorite)
}

type createRepositoryRequest struct {
	Name         string      `json:"name"`
	Path         string      `json:"path"`
	RelativePath string      `json:"relative_path"`
	IsFavorite   bool        `json:"is_favorite"`
	Tags         domain.Tags `json:"tags"`
}

// List returns saved repositories matching the query filters.
func (h *RepoHandler) List(c fiber.Ctx) error {
	f := domain.RepositoryFilter{
		Search: c.Query("search"),
		SortBy: c.Query("sort_by"),
	}
	if tags := c.Query("tags"); tags != "" {
		f.Tags = domain.ParseTags(tags)
	}

	var err error
	if f.IsFavorite, err = queryBool(c, "is_favorite"); err != nil {
		return writeError(c, err)
	}
	switch strings.ToLower(c.Query("sort_order")) {
	case "", "asc":
	case "desc":
		f.SortDesc = true
	default:
		return writeError(c, port.NewValidationError(port.KindInvalid, "sort_order must be asc or desc", "query", "sort_order"))
	}
	if f.Limit, err = queryInt(c, "limit", 0); err != nil {
		return writeError(c, err)
	}
	if f.Offset, err = queryInt(c, "offset", 0); err != nil {
		return writeError(c, err)
	}

	repos, err := h.repoService.List(c.Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(repos)
}

// Create saves a repository, or updates the one already saved at its path.
func (h *RepoHandler) Create(c fiber.Ctx) error {
	var req createRepositoryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return invalidBody(c, err)
	}
	repo, err := h.repoService.Create(c.Context(), domain.Repository{
		Name:         req.Name,
		Path:         req.Path,
		RelativePath: req.RelativePath,
		IsFavorite:   req.IsFavorite,
		Tags:         req.Tags,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(repo)
}

// Get returns one repository and records the access.
func (h *RepoHandler) Get(c fiber.Ctx) error {
	repo, err := h.repoService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(repo)
}

// Update applies a partial update.
func (h *RepoHandler) Update(c fiber.Ctx) error {
	var patch domain.RepositoryPatch
	if err := c.Bind().JSON(&patch); err != nil {
		return invalidBody(c, err)
	}
	repo, err := h.repoService.Update(c.Context(), c.Params("id"), patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(repo)
}

// BatchUpdate applies a list of partial updates atomically.
func (h *RepoHandler) BatchUpdate(c fiber.Ctx) error {
	var patches []domain.RepositoryPatch
	if err := c.Bind().JSON(&patches); err != nil {
		return invalidBody(c, err)
	}
	repos, err := h.repoService.BatchUpdate(c.Context(), patches)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"updated": len(repos), "repositories": repos})
}

// Delete removes a repository.
func (h *RepoHandler) Delete(c fiber.Ctx) error {
	if err := h.repoService.Delete(c.Context(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Favorite sets the favorite flag from the body or the is_favorite query
// parameter, and flips it when neither is given.
func (h *RepoHandler) Favorite(c fiber.Ctx) error {
	value, err := queryBool(c, "is_favorite")
	if err != nil {
		return writeError(c, err)
	}
	if value == nil && len(c.Body()) > 0 {
		var body struct {
			IsFavorite *bool `json:"is_favorite"`
		}
		if err := c.Bind().JSON(&body); err != nil {
			return invalidBody(c, err)
		}
		value = body.IsFavorite
	}

	repo, err := h.repoService.SetFavorite(c.Context(), c.Params("id"), value)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(repo)
}

// Tags returns every tag in use.
func (h *RepoHandler) Tags(c fiber.Ctx) error {
	tags, err := h.repoService.Tags(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(tags)
}

// Search matches the query against names, paths and tags.
func (h *RepoHandler) Search(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return writeError(c, err)
	}
	repos, err := h.repoService.Search(c.Context(), c.Query("query"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(repos)
}
