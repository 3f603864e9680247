package api

import (
	"net/http"

	"shadowrealms/internal/ledger"
)

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OwnerID string `json:"owner_id"`
	}
	if err := s.decodeBody(r, "claim", &in); err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := s.ledger.Claim(r.Context(), pathParam(r, "resource"), in.OwnerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := s.ledger.GetClaim(r.Context(), pathParam(r, "resource"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := s.ledger.ListClaims(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody("claims", claims))
}

func (s *Server) handlePurgeClaim(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.PurgeClaim(r.Context(), pathParam(r, "resource")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type bondRequest struct {
	IDA         string `json:"id_a"`
	IDB         string `json:"id_b"`
	Kind        string `json:"kind"`
	InitiatorID string `json:"initiator_id,omitempty"`
}

func (s *Server) handleCreateBond(w http.ResponseWriter, r *http.Request) {
	var in bondRequest
	if err := s.decodeBody(r, "bond", &in); err != nil {
		writeDomainError(w, err)
		return
	}
	b, err := s.ledger.CreateBond(r.Context(), ledger.BondInput{
		IDA:         in.IDA,
		IDB:         in.IDB,
		Kind:        in.Kind,
		InitiatorID: in.InitiatorID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleBreakBond(w http.ResponseWriter, r *http.Request) {
	var in bondRequest
	if err := s.decodeBody(r, "unbond", &in); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.ledger.BreakBond(r.Context(), in.IDA, in.IDB, in.Kind); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListBonds(w http.ResponseWriter, r *http.Request) {
	bonds, err := s.ledger.ListBonds(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody("bonds", bonds))
}

func (s *Server) handlePartner(w http.ResponseWriter, r *http.Request) {
	b, err := s.ledger.Partner(r.Context(), pathParam(r, "id"), pathParam(r, "kind"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleRecordLink(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SourceID string `json:"source_id"`
		TargetID string `json:"target_id"`
		LinkType string `json:"link_type"`
		Label    string `json:"label"`
	}
	if err := s.decodeBody(r, "link", &in); err != nil {
		writeDomainError(w, err)
		return
	}
	l, err := s.ledger.RecordDirectedLink(r.Context(), ledger.LinkInput{
		SourceID: in.SourceID,
		TargetID: in.TargetID,
		LinkType: in.LinkType,
		Label:    in.Label,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	dir, err := ledger.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	links, err := s.ledger.ListLinks(r.Context(), pathParam(r, "id"), dir, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody("links", links))
}
