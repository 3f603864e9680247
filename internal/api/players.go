package api

import (
	"net/http"

	"shadowrealms/internal/ledger"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Category    string `json:"category"`
		Language    string `json:"language"`
	}
	if err := s.decodeBody(r, "register", &in); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := s.ledger.Register(r.Context(), ledger.RegisterInput{
		ID:          in.ID,
		DisplayName: in.DisplayName,
		Category:    in.Category,
		Language:    in.Language,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePlayer(w http.ResponseWriter, r *http.Request) {
	var in ledger.PartialUpdate
	if err := s.decodeBody(r, "update", &in); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := s.ledger.ApplyPartialUpdate(r.Context(), pathParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Field string `json:"field"`
		Delta int64  `json:"delta"`
	}
	if err := s.decodeBody(r, "adjust", &in); err != nil {
		writeDomainError(w, err)
		return
	}
	field, err := ledger.ParseField(in.Field)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.ledger.AdjustBalance(r.Context(), pathParam(r, "id"), field, in.Delta)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ItemCode string `json:"item_code"`
		Price    int64  `json:"price"`
	}
	if err := s.decodeBody(r, "purchase", &in); err != nil {
		writeDomainError(w, err)
		return
	}
	sale, err := s.ledger.Purchase(r.Context(), ledger.PurchaseInput{
		PlayerID:       pathParam(r, "id"),
		ItemCode:       in.ItemCode,
		Price:          in.Price,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sales, err := s.ledger.ListSales(r.Context(), pathParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody("sales", sales))
}

func (s *Server) handleWager(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := s.decodeBody(r, "wager", &in); err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.ledger.Wager(r.Context(), pathParam(r, "id"), in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePurgePlayer(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Purge(r.Context(), pathParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleResetPlayers(w http.ResponseWriter, r *http.Request) {
	n, err := s.ledger.Reset(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "purged": n})
}
