package contest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trailsbuddy/internal/api"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ListOpen(c *gin.Context) {
	contests, err := h.repo.ListOpen(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load contests"})
		return
	}
	c.JSON(http.StatusOK, contests)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("contestID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid contest id"})
		return
	}

	contest, err := h.repo.GetByID(c.Request.Context(), h.repo.pool, id)
	if err != nil {
		if err == ErrNotFound {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "contest not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load contest"})
		return
	}

	c.JSON(http.StatusOK, contest)
}
