package handler

import (
	"net/http"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/service"
)

type CustomerHandler struct {
	customers *service.CustomerService
}

func NewCustomerHandler(customers *service.CustomerService) *CustomerHandler {
	return &CustomerHandler{customers: customers}
}

type upsertCustomerRequest struct {
	Fee       domain.Asset `json:"fee"`
	Overdraft domain.Asset `json:"overdraft"`
	Role      domain.Role  `json:"role"`
	Enabled   bool         `json:"enabled"`
	Memo      string       `json:"memo"`
}

// Upsert creates or replaces the customer record named in the path.
func (h *CustomerHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	account, err := nameParam(r, "account")
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	var req upsertCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customer, err := h.customers.Upsert(r.Context(), requestAuth(r), service.UpsertCustomerCmd{
		Account:   account,
		Fee:       req.Fee,
		Overdraft: req.Overdraft,
		Role:      req.Role,
		Enabled:   req.Enabled,
		Memo:      req.Memo,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, customer)
}

// Erase deletes the customer record. The memo travels as a query parameter.
func (h *CustomerHandler) Erase(w http.ResponseWriter, r *http.Request) {
	account, err := nameParam(r, "account")
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if err := h.customers.Erase(r.Context(), requestAuth(r), account, r.URL.Query().Get("memo")); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := nameParam(r, "account")
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	customer, err := h.customers.Get(r.Context(), account)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, customer)
}
