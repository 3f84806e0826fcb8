package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/service"
	"github.com/openshelter/lending-engine/pkg/response"
)

type LoanHandler struct {
	service   *service.LoanService
	validator *validator.Validate
}

func NewLoanHandler(service *service.LoanService) *LoanHandler {
	return &LoanHandler{
		service:   service,
		validator: newValidator(),
	}
}

// CreateLoan handles POST /loans
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateLoanRequest
	if !decode(w, r, h.validator, &request) {
		return
	}

	loan, err := h.service.Apply(r.Context(), &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, domain.CreateLoanResponse{LoanID: loan.ID, Loan: loan})
}

// GetLoan handles GET /loans/{loanId}
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}

	loan, err := h.service.Get(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loan)
}

// ListLoans handles GET /loans?walletAddress= and GET /loans?loanId=
func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if raw := query.Get("loanId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "loanId must be a UUID")
			return
		}

		loan, err := h.service.Get(r.Context(), id)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.Success(w, loan)
		return
	}

	loans, err := h.service.List(r.Context(), query.Get("walletAddress"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loans)
}

// UpdateLoanStatus handles PUT /loans/{loanId}/status
func (h *LoanHandler) UpdateLoanStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}

	var request domain.UpdateLoanStatusRequest
	if !decode(w, r, h.validator, &request) {
		return
	}

	loan, err := h.service.Transition(r.Context(), id, request.Status, request.LedgerRef)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loan)
}
