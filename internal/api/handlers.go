/**
 * @description
 * This file contains the HTTP handler functions for the payment-service.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * business logic in the service layer, and mapping its errors onto HTTP responses.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/transfa/payment-service/internal/app"
	"github.com/transfa/payment-service/internal/domain"
	"github.com/transfa/payment-service/internal/store"
	"github.com/transfa/payment-service/pkg/paytmclient"
)

const maxBodyBytes = 1 << 20

// PaymentService is the business logic the handlers depend on.
type PaymentService interface {
	CreateOrder(ctx context.Context, userID, planID string) (*domain.OrderResult, error)
	VerifyPayment(ctx context.Context, params map[string]string) (*domain.ApplyResult, error)
	History(ctx context.Context, userID string) ([]domain.Transaction, error)
}

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service PaymentService
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service PaymentService) *Handler {
	return &Handler{service: service}
}

type createOrderRequest struct {
	Plan string `json:"plan"`
}

type paidOrderResponse struct {
	Token      string `json:"token"`
	OrderID    string `json:"orderId"`
	Amount     string `json:"amount"`
	MerchantID string `json:"merchantId"`
}

type freeOrderResponse struct {
	Message      string               `json:"message"`
	Subscription *domain.Subscription `json:"subscription"`
	Amount       json.Number          `json:"amount"`
}

type gatewayErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type verifyPaymentResponse struct {
	Message      string               `json:"message"`
	Subscription *domain.Subscription `json:"subscription"`
}

type transactionResponse struct {
	ID                    string    `json:"id"`
	OrderID               string    `json:"orderId"`
	Plan                  string    `json:"plan"`
	Amount                string    `json:"amount"`
	Currency              string    `json:"currency"`
	ExternalTransactionID string    `json:"transactionId"`
	Status                string    `json:"status"`
	CreatedAt             time.Time `json:"createdAt"`
}

// handleCreateOrder starts a plan purchase for the authenticated user.
func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.CreateOrder(r.Context(), userID, req.Plan)
	if err != nil {
		h.writeCreateOrderError(w, userID, err)
		return
	}

	if result.Free {
		respondWithJSON(w, http.StatusOK, freeOrderResponse{
			Message:      result.Message,
			Subscription: result.Subscription,
			Amount:       json.Number(result.Amount.String()),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, paidOrderResponse{
		Token:      result.Token,
		OrderID:    result.OrderID,
		Amount:     result.Amount.StringFixed(2),
		MerchantID: result.MerchantID,
	})
}

func (h *Handler) writeCreateOrderError(w http.ResponseWriter, userID string, err error) {
	var (
		rejected  *paytmclient.RejectedError
		parseErr  *paytmclient.ParseError
		rateLimit *app.RateLimitError
	)

	switch {
	case errors.Is(err, app.ErrPlanRequired):
		respondWithError(w, http.StatusBadRequest, "Plan is required")
	case errors.Is(err, app.ErrUnknownPlan):
		respondWithError(w, http.StatusBadRequest, "Invalid plan selected")
	case errors.As(err, &rateLimit):
		w.Header().Set("Retry-After", strconv.Itoa(rateLimit.RetryAfterSeconds))
		respondWithError(w, http.StatusTooManyRequests, "Too many order attempts, please retry later")
	case errors.Is(err, app.ErrOrderInProgress):
		respondWithError(w, http.StatusConflict, "An order is already being created for this account")
	case errors.As(err, &rejected):
		respondWithJSON(w, http.StatusBadGateway, gatewayErrorResponse{
			Error:   "Paytm Init Failed",
			Code:    rejected.Code,
			Details: rejected.Message,
		})
	case errors.As(err, &parseErr):
		respondWithJSON(w, http.StatusBadGateway, gatewayErrorResponse{
			Error:   "Paytm Init Failed",
			Details: "unexpected response from payment gateway",
		})
	case errors.Is(err, paytmclient.ErrGatewayUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, "Payment gateway unavailable, please retry")
	default:
		log.Printf("level=error component=api msg=\"create order failed\" user_id=%s err=%v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create order")
	}
}

// handleVerifyPayment processes the gateway callback. It accepts either a JSON
// object or a form-encoded body, as the gateway posts the latter.
func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	params, err := readCallbackParams(w, r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.VerifyPayment(r.Context(), params)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, verifyPaymentResponse{
			Message:      "Payment verified successfully",
			Subscription: result.Subscription,
		})
	case errors.Is(err, app.ErrPaymentNotSucceeded):
		respondWithError(w, http.StatusBadRequest, "Payment failed or pending")
	case errors.Is(err, app.ErrInvalidSignature):
		respondWithError(w, http.StatusUnauthorized, "Invalid payment signature")
	case errors.Is(err, store.ErrOrderNotFound):
		respondWithError(w, http.StatusNotFound, "Order not found")
	default:
		log.Printf("level=error component=api msg=\"verify payment failed\" order_id=%s err=%v", params[app.CallbackOrderID], err)
		respondWithError(w, http.StatusInternalServerError, "Failed to verify payment")
	}
}

func readCallbackParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		params := make(map[string]string, len(r.PostForm))
		for key, values := range r.PostForm {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
		return params, nil
	}

	var raw map[string]interface{}
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	params := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			params[key] = ""
		case string:
			params[key] = v
		default:
			params[key] = fmt.Sprint(v)
		}
	}
	return params, nil
}

// handleHistory lists the authenticated user's payments, newest first.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	transactions, err := h.service.History(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api msg=\"history lookup failed\" user_id=%s err=%v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch payment history")
		return
	}

	response := make([]transactionResponse, 0, len(transactions))
	for _, txn := range transactions {
		response = append(response, transactionResponse{
			ID:                    txn.ID.String(),
			OrderID:               txn.OrderID,
			Plan:                  txn.PlanID,
			Amount:                txn.Amount.StringFixed(2),
			Currency:              txn.Currency,
			ExternalTransactionID: txn.ExternalTransactionID,
			Status:                txn.Status,
			CreatedAt:             txn.CreatedAt,
		})
	}
	respondWithJSON(w, http.StatusOK, response)
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
