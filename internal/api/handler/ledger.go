package handler

import (
	"net/http"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/service"
)

// LedgerHandler serves supply and balance movements.
type LedgerHandler struct {
	ledger *service.LedgerService
}

func NewLedgerHandler(ledger *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

type issueRequest struct {
	To       domain.Name  `json:"to"`
	Quantity domain.Asset `json:"quantity"`
	Memo     string       `json:"memo"`
}

type retireRequest struct {
	Quantity domain.Asset `json:"quantity"`
	Memo     string       `json:"memo"`
}

type transferRequest struct {
	From     domain.Name  `json:"from"`
	To       domain.Name  `json:"to"`
	Quantity domain.Asset `json:"quantity"`
	Memo     string       `json:"memo"`
}

type balanceRequest struct {
	Owner  domain.Name `json:"owner"`
	Symbol string      `json:"symbol"`
	Payer  domain.Name `json:"payer,omitempty"`
}

type movementResponse struct {
	Status   string       `json:"status"`
	Quantity domain.Asset `json:"quantity"`
}

func (h *LedgerHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.ledger.Issue(r.Context(), requestAuth(r), req.To, req.Quantity, req.Memo); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, movementResponse{Status: "issued", Quantity: req.Quantity})
}

func (h *LedgerHandler) Retire(w http.ResponseWriter, r *http.Request) {
	var req retireRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.ledger.Retire(r.Context(), requestAuth(r), req.Quantity, req.Memo); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, movementResponse{Status: "retired", Quantity: req.Quantity})
}

func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.ledger.Transfer(r.Context(), requestAuth(r), req.From, req.To, req.Quantity, req.Memo); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, movementResponse{Status: "transferred", Quantity: req.Quantity})
}

// Open creates a zero balance row. Symbol uses the "4,TOK" form; payer
// defaults to the owner.
func (h *LedgerHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Payer == "" {
		req.Payer = req.Owner
	}
	sym, err := domain.ParseSymbol(req.Symbol)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if err := h.ledger.Open(r.Context(), requestAuth(r), req.Owner, sym, req.Payer); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LedgerHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sym, err := domain.ParseSymbol(req.Symbol)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if err := h.ledger.Close(r.Context(), requestAuth(r), req.Owner, sym); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LedgerHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := nameParam(r, "owner")
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	balances, err := h.ledger.ListBalances(r.Context(), owner)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"owner": owner, "balances": nonNil(balances)})
}

func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := nameParam(r, "owner")
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	code, err := symbolCodeParam(r)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	bal, err := h.ledger.GetBalance(r.Context(), owner, code)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, bal)
}
