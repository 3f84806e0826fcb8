package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/service"
	"github.com/openshelter/lending-engine/pkg/response"
)

type VisaHandler struct {
	service   *service.VisaService
	validator *validator.Validate
}

func NewVisaHandler(service *service.VisaService) *VisaHandler {
	return &VisaHandler{
		service:   service,
		validator: newValidator(),
	}
}

// CreateVisaApplication handles POST /visa-applications
func (h *VisaHandler) CreateVisaApplication(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateVisaApplicationRequest
	if !decode(w, r, h.validator, &request) {
		return
	}

	app, err := h.service.Create(r.Context(), &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, domain.CreateVisaApplicationResponse{ApplicationID: app.ApplicationID, ID: app.ID})
}

// GetVisaApplication handles GET /visa-applications/{applicationId}
func (h *VisaHandler) GetVisaApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.Get(r.Context(), mux.Vars(r)["applicationId"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, app)
}

// ListVisaApplications handles GET /visa-applications?walletAddress=
func (h *VisaHandler) ListVisaApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.service.List(r.Context(), r.URL.Query().Get("walletAddress"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, apps)
}

// UpdateVisaApplication handles PUT /visa-applications/{applicationId}
func (h *VisaHandler) UpdateVisaApplication(w http.ResponseWriter, r *http.Request) {
	var request domain.UpdateVisaApplicationRequest
	if !decode(w, r, h.validator, &request) {
		return
	}

	app, err := h.service.Update(r.Context(), mux.Vars(r)["applicationId"], &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, app)
}
