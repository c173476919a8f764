package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repolens/internal/adapter/fsys"
	"github.com/arturoeanton/repolens/internal/service"
)

// BrowseHandler serves filesystem browsing and repository discovery.
type BrowseHandler struct {
	repoService *service.RepoService
}

// NewBrowseHandler creates a new browse handler.
func NewBrowseHandler(repoService *service.RepoService) *BrowseHandler {
	return &BrowseHandler{repoService: repoService}
}

// Register sets up browse routes.
func (h *BrowseHandler) Register(router fiber.Router) {
	router.Get("/browse_directory", h.Browse)
	router.Get("/discover_repos", h.Discover)
}

// Browse lists a directory. An empty directory means the home directory.
func (h *BrowseHandler) Browse(c fiber.Ctx) error {
	listing, err := fsys.Browse(c.Query("directory"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(listing)
}

// Discover finds the repositories below base_dir.
func (h *BrowseHandler) Discover(c fiber.Ctx) error {
	baseDir := c.Query("base_dir")
	depth, err := queryInt(c, "depth", -1)
	if err != nil {
		return writeError(c, err)
	}

	depth = h.repoService.ResolveDepth(depth)

	repos, err := h.repoService.Discover(c.Context(), baseDir, depth)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"base_dir":     baseDir,
		"depth":        depth,
		"repositories": repos,
		"count":        len(repos),
	})
}
