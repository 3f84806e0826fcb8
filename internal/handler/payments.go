package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/service"
	"github.com/openshelter/lending-engine/pkg/response"
)

type PaymentHandler struct {
	service   *service.PaymentService
	validator *validator.Validate
}

func NewPaymentHandler(service *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		validator: newValidator(),
	}
}

// CreatePayment handles POST /payments. A replayed ledger reference answers
// 200 with the original result instead of 201.
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var request domain.MakePaymentRequest
	if !decode(w, r, h.validator, &request) {
		return
	}

	result, err := h.service.ApplyPayment(r.Context(), &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	if result.Replayed {
		response.Success(w, result)
		return
	}
	response.Created(w, result)
}

// GetPayments handles GET /payments?walletAddress=&loanId=
func (h *PaymentHandler) GetPayments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.PaymentFilter{WalletAddress: query.Get("walletAddress")}

	if raw := query.Get("loanId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "loanId must be a UUID")
			return
		}
		filter.LoanID = &id
	}

	payments, err := h.service.ListPayments(r.Context(), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, payments)
}
