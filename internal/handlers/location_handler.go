package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pobtrack/pob-backend/internal/loctree"
	"github.com/sirupsen/logrus"
)

// LocationSource provides the current location tree
type LocationSource interface {
	Tree(ctx context.Context) (*loctree.Tree, error)
}

// LocationHandler serves location lists for scope pickers
type LocationHandler struct {
	locations LocationSource
	logger    *logrus.Logger
}

// NewLocationHandler creates a new LocationHandler
func NewLocationHandler(locations LocationSource, logger *logrus.Logger) *LocationHandler {
	return &LocationHandler{locations: locations, logger: logger}
}

// PublicLocations handles GET /api/v1/locations/public
func (h *LocationHandler) PublicLocations(c *gin.Context) {
	tree, err := h.locations.Tree(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tree.Flatten())
}

// LocationTree handles GET /api/v1/locations/tree
func (h *LocationHandler) LocationTree(c *gin.Context) {
	tree, err := h.locations.Tree(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	roots := tree.Roots()
	if roots == nil {
		roots = []*loctree.Node{}
	}
	c.JSON(http.StatusOK, roots)
}
