package handler

import (
	"net/http"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/service"
)

type SymbolHandler struct {
	ledger *service.LedgerService
}

func NewSymbolHandler(ledger *service.LedgerService) *SymbolHandler {
	return &SymbolHandler{ledger: ledger}
}

type createSymbolRequest struct {
	Issuer    domain.Name  `json:"issuer"`
	MaxSupply domain.Asset `json:"max_supply"`
}

// Create registers a new symbol. The token must prove the issuer.
func (h *SymbolHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSymbolRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	stats, err := h.ledger.CreateSymbol(r.Context(), requestAuth(r), req.Issuer, req.MaxSupply)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, stats)
}

func (h *SymbolHandler) List(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.ListSymbols(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"symbols": nonNil(stats)})
}

func (h *SymbolHandler) Get(w http.ResponseWriter, r *http.Request) {
	code, err := symbolCodeParam(r)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	stats, err := h.ledger.GetSupply(r.Context(), code)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
