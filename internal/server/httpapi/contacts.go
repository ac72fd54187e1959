package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/go-chi/chi/v5"
)

type invitePayload struct {
	Email       string   `json:"email"`
	AccessLevel string   `json:"access_level"`
	RecordIDs   []string `json:"record_ids,omitempty"`
}

type acceptPayload struct {
	Token     string `json:"token"`
	PublicKey []byte `json:"public_key"`
}

type declinePayload struct {
	Token string `json:"token"`
}

type contactResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	AccessLevel string   `json:"access_level"`
	Status      string   `json:"status"`
	RecordIDs   []string `json:"record_ids,omitempty"`
}

func toContactResponse(c *models.TrustedContact) contactResponse {
	return contactResponse{
		ID:          c.ID,
		Email:       c.Email,
		AccessLevel: string(c.AccessLevel),
		Status:      string(c.Status),
		RecordIDs:   c.RecordIDs,
	}
}

func (s *Server) handleInviteContact(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	var req invitePayload
	if !decodeBody(w, r, &req) {
		return
	}
	contact, err := s.contacts.Invite(r.Context(), claims.ActorID, req.Email,
		models.AccessLevel(req.AccessLevel), req.RecordIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContactResponse(contact))
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	contacts, err := s.contacts.ListByOwner(r.Context(), claims.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	result := make([]contactResponse, 0, len(contacts))
	for _, contact := range contacts {
		result = append(result, toContactResponse(contact))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRevokeContact(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	if err := s.contacts.Revoke(r.Context(), claims.ActorID, chi.URLParam(r, "id"), time.Now()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDepositEscrow seals the keys of every record in the contact's scope
// to the contact's public key. Requires a live owner session because the
// master key is needed to unwrap the envelopes.
func (s *Server) handleDepositEscrow(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	deposited, err := s.escrow.Deposit(r.Context(), claims.ActorID, claims.SessionID,
		chi.URLParam(r, "id"), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deposited": deposited})
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptPayload
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := s.contacts.Accept(r.Context(), req.Token, req.PublicKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) handleDeclineInvite(w http.ResponseWriter, r *http.Request) {
	var req declinePayload
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.contacts.Decline(r.Context(), req.Token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
