package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/openshelter/lending-engine/internal/metrics"
	"github.com/openshelter/lending-engine/pkg/response"
)

type Handlers struct {
	Users    *UserHandler
	Loans    *LoanHandler
	Payments *PaymentHandler
	Visas    *VisaHandler
	Health   *HealthHandler
}

// NewRouter mounts the API under /api/v1 next to /health, /health/ready and
// /metrics. CORS wraps the whole router so preflight requests never reach mux.
func NewRouter(h Handlers, logger *slog.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(metrics.Middleware)
	router.Use(response.LoggingMiddleware(logger))

	// Health check
	router.HandleFunc("/health", h.Health.Health).Methods("GET")
	router.HandleFunc("/health/ready", h.Health.Ready).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/users", h.Users.CreateUser).Methods("POST")
	api.HandleFunc("/users/{wallet}", h.Users.GetUser).Methods("GET")
	api.HandleFunc("/users/{wallet}", h.Users.UpdateUser).Methods("PUT")
	api.HandleFunc("/users/{wallet}/sync", h.Users.SyncCredentials).Methods("POST")

	api.HandleFunc("/loans", h.Loans.CreateLoan).Methods("POST")
	api.HandleFunc("/loans", h.Loans.ListLoans).Methods("GET")
	api.HandleFunc("/loans/{loanId}", h.Loans.GetLoan).Methods("GET")
	api.HandleFunc("/loans/{loanId}/status", h.Loans.UpdateLoanStatus).Methods("PUT")

	api.HandleFunc("/payments", h.Payments.CreatePayment).Methods("POST")
	api.HandleFunc("/payments", h.Payments.GetPayments).Methods("GET")

	api.HandleFunc("/visa-applications", h.Visas.CreateVisaApplication).Methods("POST")
	api.HandleFunc("/visa-applications", h.Visas.ListVisaApplications).Methods("GET")
	api.HandleFunc("/visa-applications/{applicationId}", h.Visas.GetVisaApplication).Methods("GET")
	api.HandleFunc("/visa-applications/{applicationId}", h.Visas.UpdateVisaApplication).Methods("PUT")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "route not found")
	})

	return response.CORSMiddleware(router)
}
