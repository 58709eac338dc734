package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trailsbuddy/internal/api"
	"trailsbuddy/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type TopUpRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type WithdrawRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	ReceiverUpiID string `json:"receiver_upi_id" binding:"required"`
}

type ReferralRequest struct {
	ReferredUserID int64 `json:"referred_user_id" binding:"required"`
	ReferrerUserID int64 `json:"referrer_user_id" binding:"required"`
	Bonus          int64 `json:"bonus" binding:"required,gt=0"`
}

type FailWithdrawalRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	balance, err := h.service.Balance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.service.Transactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, txs)
}

func (h *Handler) TopUp(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "amount must be positive"})
		return
	}

	if err := h.service.TopUp(c.Request.Context(), userID, req.Amount); err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to top up wallet"})
		return
	}

	balance, err := h.service.Balance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load wallet after top up"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "wallet recharged", "balance": balance})
}

func (h *Handler) Withdraw(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "amount and receiver_upi_id are required"})
		return
	}

	transactionID, err := h.service.Withdraw(c.Request.Context(), userID, req.Amount, req.ReceiverUpiID)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "insufficient withdrawable balance"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to initiate withdrawal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "withdrawal initiated", "transaction_id": transactionID})
}

func (h *Handler) CompleteWithdrawal(c *gin.Context) {
	transactionID, err := strconv.ParseInt(c.Param("transactionID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid transaction id"})
		return
	}

	if err := h.service.CompleteWithdrawal(c.Request.Context(), transactionID); err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "pending withdrawal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to complete withdrawal"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "withdrawal completed"})
}

func (h *Handler) FailWithdrawal(c *gin.Context) {
	transactionID, err := strconv.ParseInt(c.Param("transactionID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid transaction id"})
		return
	}

	var req FailWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "reason is required"})
		return
	}

	if err := h.service.FailWithdrawal(c.Request.Context(), transactionID, req.Reason); err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "pending withdrawal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to reverse withdrawal"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "withdrawal reversed"})
}

func (h *Handler) GrantReferral(c *gin.Context) {
	var req ReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "referred_user_id, referrer_user_id and bonus are required"})
		return
	}

	if err := h.service.GrantReferralBonuses(c.Request.Context(), req.ReferredUserID, req.ReferrerUserID, req.Bonus); err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to grant referral bonuses"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "referral bonuses credited"})
}
