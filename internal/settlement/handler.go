package settlement

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trailsbuddy/internal/api"
	"trailsbuddy/internal/contest"
)

type Handler struct {
	settler *Settler
}

func NewHandler(settler *Settler) *Handler {
	return &Handler{settler: settler}
}

// Cancel closes an active contest, refunding every engaged player. Admin only.
func (h *Handler) Cancel(c *gin.Context) {
	contestID, err := strconv.ParseInt(c.Param("contestID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid contest id"})
		return
	}

	if err := h.settler.CancelContest(c.Request.Context(), contestID); err != nil {
		switch {
		case errors.Is(err, contest.ErrNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ErrContestNotActive):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "contest cancelled"})
}
