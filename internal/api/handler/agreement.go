package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/models"
	"github.com/ayo6706/token-ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

type AgreementHandler struct {
	agreements *service.AgreementService
}

func NewAgreementHandler(agreements *service.AgreementService) *AgreementHandler {
	return &AgreementHandler{agreements: agreements}
}

type upsertAgreementRequest struct {
	Payer          domain.Name           `json:"payer"`
	Payee          domain.Name           `json:"payee"`
	ServiceID      uint32                `json:"service_id"`
	Price          domain.Asset          `json:"price"`
	BeginsAt       time.Time             `json:"begins_at"`
	TotalPeriods   uint32                `json:"total_periods"`
	ChargedPeriods uint32                `json:"charged_periods"`
	Enabled        domain.AgreementState `json:"enabled"`
	Memo           string                `json:"memo"`
}

type chargeRequest struct {
	Amount domain.Asset `json:"amount"`
	Memo   string       `json:"memo"`
}

type agreementView struct {
	models.Agreement
	NextEligibleAt time.Time `json:"next_eligible_at"`
}

func viewOf(a models.Agreement) agreementView {
	return agreementView{Agreement: a, NextEligibleAt: a.NextEligible()}
}

func viewsOf(items []models.Agreement) []agreementView {
	out := make([]agreementView, 0, len(items))
	for _, a := range items {
		out = append(out, viewOf(a))
	}
	return out
}

func (h *AgreementHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertAgreementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.agreements.Upsert(r.Context(), requestAuth(r), service.UpsertAgreementCmd{
		Payer:          req.Payer,
		Payee:          req.Payee,
		ServiceID:      req.ServiceID,
		Price:          req.Price,
		BeginsAt:       req.BeginsAt,
		TotalPeriods:   req.TotalPeriods,
		ChargedPeriods: req.ChargedPeriods,
		Enabled:        req.Enabled,
		Memo:           req.Memo,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, viewOf(a))
}

func (h *AgreementHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, err := agreementKeyParam(r)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	a, err := h.agreements.Get(r.Context(), key)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, viewOf(a))
}

func (h *AgreementHandler) Erase(w http.ResponseWriter, r *http.Request) {
	key, err := agreementKeyParam(r)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if err := h.agreements.Erase(r.Context(), requestAuth(r), key, r.URL.Query().Get("memo")); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgreementHandler) Charge(w http.ResponseWriter, r *http.Request) {
	key, err := agreementKeyParam(r)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	var req chargeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.agreements.Charge(r.Context(), requestAuth(r), key, req.Amount, req.Memo)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, viewOf(a))
}

// List answers one of the three secondary index lookups, picked by which
// pair of query parameters is present.
func (h *AgreementHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payee, payer, service := domain.Name(q.Get("payee")), domain.Name(q.Get("payer")), q.Get("service")

	var (
		items []models.Agreement
		err   error
	)
	switch {
	case payee != "" && payer != "" && service == "":
		items, err = h.agreements.ListByPayeePayer(r.Context(), payee, payer)
	case payer != "" && service != "" && payee == "":
		var id uint32
		if id, err = parseServiceID(service); err == nil {
			items, err = h.agreements.ListByPayerService(r.Context(), payer, id)
		}
	case payee != "" && service != "" && payer == "":
		var id uint32
		if id, err = parseServiceID(service); err == nil {
			items, err = h.agreements.ListByPayeeService(r.Context(), payee, id)
		}
	default:
		RespondError(w, r, http.StatusBadRequest, "agreements/invalid-query",
			"query needs exactly two of payee, payer, service")
		return
	}
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"agreements": viewsOf(items)})
}

func agreementKeyParam(r *http.Request) (models.AgreementKey, error) {
	payer, err := nameParam(r, "payer")
	if err != nil {
		return models.AgreementKey{}, err
	}
	payee, err := nameParam(r, "payee")
	if err != nil {
		return models.AgreementKey{}, err
	}
	id, err := parseServiceID(chi.URLParam(r, "service"))
	if err != nil {
		return models.AgreementKey{}, err
	}
	return models.AgreementKey{Payer: payer, Payee: payee, ServiceID: id}, nil
}
