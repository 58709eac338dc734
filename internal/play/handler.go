package play

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trailsbuddy/internal/api"
	"trailsbuddy/internal/auth"
	"trailsbuddy/internal/contest"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type PayRequest struct {
	BonusAmount int64 `json:"bonus_amount" binding:"gte=0"`
}

type AnswerRequest struct {
	QuestionNo       int `json:"question_no" binding:"required"`
	SelectedOptionID int `json:"selected_option_id" binding:"required"`
}

func (h *Handler) Pay(c *gin.Context) {
	userID, contestID, ok := identify(c)
	if !ok {
		return
	}

	var req PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.service.Pay(c.Request.Context(), userID, contestID, req.BonusAmount); err != nil {
		respondPlayError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "entry fee paid"})
}

func (h *Handler) Start(c *gin.Context) {
	userID, contestID, ok := identify(c)
	if !ok {
		return
	}

	if err := h.service.Start(c.Request.Context(), userID, contestID); err != nil {
		respondPlayError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "contest started"})
}

func (h *Handler) Resume(c *gin.Context) {
	userID, contestID, ok := identify(c)
	if !ok {
		return
	}

	if err := h.service.Resume(c.Request.Context(), userID, contestID); err != nil {
		respondPlayError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "contest resumed"})
}

func (h *Handler) NextQuestion(c *gin.Context) {
	userID, contestID, ok := identify(c)
	if !ok {
		return
	}

	question, err := h.service.NextQuestion(c.Request.Context(), userID, contestID)
	if err != nil {
		respondPlayError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

func (h *Handler) Answer(c *gin.Context) {
	userID, contestID, ok := identify(c)
	if !ok {
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "question_no and selected_option_id are required"})
		return
	}

	result, err := h.service.Answer(c.Request.Context(), userID, contestID, req.QuestionNo, req.SelectedOptionID)
	if err != nil {
		respondPlayError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Finish(c *gin.Context) {
	userID, contestID, ok := identify(c)
	if !ok {
		return
	}

	if err := h.service.Finish(c.Request.Context(), userID, contestID); err != nil {
		respondPlayError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "contest finished"})
}

func (h *Handler) GetTracker(c *gin.Context) {
	userID, contestID, ok := identify(c)
	if !ok {
		return
	}

	tracker, err := h.service.Tracker(c.Request.Context(), userID, contestID)
	if err != nil {
		respondPlayError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracker)
}

func identify(c *gin.Context) (userID, contestID int64, ok bool) {
	userID, ok = auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return 0, 0, false
	}
	contestID, err := strconv.ParseInt(c.Param("contestID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid contest id"})
		return 0, 0, false
	}
	return userID, contestID, true
}

// respondPlayError maps business errors to 4xx and everything else to 500.
func respondPlayError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contest.ErrNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrTrackerNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrContestNotActive),
		errors.Is(err, ErrContestNotRunning),
		errors.Is(err, ErrNotPaid),
		errors.Is(err, ErrNoEntryFee),
		errors.Is(err, ErrInvalidBonusSplit),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrAlreadyAnswered),
		errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrAllAnswered),
		errors.Is(err, ErrWrongStatus):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
	}
}
