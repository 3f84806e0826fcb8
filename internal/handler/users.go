package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/service"
	"github.com/openshelter/lending-engine/pkg/response"
)

type UserHandler struct {
	service   *service.UserService
	validator *validator.Validate
}

func NewUserHandler(service *service.UserService) *UserHandler {
	return &UserHandler{
		service:   service,
		validator: newValidator(),
	}
}

// CreateUser handles POST /users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateUserRequest
	if !decode(w, r, h.validator, &request) {
		return
	}

	user, err := h.service.CreateUser(r.Context(), &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, domain.CreateUserResponse{UserID: user.ID})
}

// GetUser handles GET /users/{wallet}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), mux.Vars(r)["wallet"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, user)
}

// UpdateUser handles PUT /users/{wallet}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var request domain.UpdateUserRequest
	if !decode(w, r, h.validator, &request) {
		return
	}

	user, err := h.service.UpdateUser(r.Context(), mux.Vars(r)["wallet"], &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, user)
}

// SyncCredentials handles POST /users/{wallet}/sync
func (h *UserHandler) SyncCredentials(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.SyncCredentials(r.Context(), mux.Vars(r)["wallet"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, user)
}
