package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/go-chi/chi/v5"
)

type requestResponse struct {
	ID               string     `json:"id"`
	State            string     `json:"state"`
	RequestedAt      time.Time  `json:"requested_at"`
	WaitStartedAt    *time.Time `json:"wait_started_at,omitempty"`
	WaitDeadline     *time.Time `json:"wait_deadline,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolutionReason string     `json:"resolution_reason,omitempty"`
}

type grantTokenResponse struct {
	ID          string    `json:"id"`
	RecordID    string    `json:"record_id"`
	SealedKey   []byte    `json:"sealed_key"`
	ReadOnly    bool      `json:"read_only"`
	DownloadURL string    `json:"download_url,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toRequestResponse(r *models.AccessRequest) requestResponse {
	resp := requestResponse{
		ID:               r.ID,
		State:            string(r.State),
		RequestedAt:      r.RequestedAt,
		WaitStartedAt:    r.WaitStartedAt,
		ResolvedAt:       r.ResolvedAt,
		ResolutionReason: r.ResolutionReason,
	}
	if deadline, ok := r.WaitDeadline(); ok {
		resp.WaitDeadline = &deadline
	}
	return resp
}

func (s *Server) handleCreateAccessRequest(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	request, err := s.emergency.RequestAccess(r.Context(), claims.ActorID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(request))
}

func (s *Server) handleListOwnerRequests(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	requests, err := s.emergency.GetForOwner(r.Context(), claims.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponses(requests))
}

func (s *Server) handleListContactRequests(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	requests, err := s.emergency.GetForContact(r.Context(), claims.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponses(requests))
}

func toRequestResponses(requests []*models.AccessRequest) []requestResponse {
	result := make([]requestResponse, 0, len(requests))
	for _, r := range requests {
		result = append(result, toRequestResponse(r))
	}
	return result
}

func (s *Server) handleDenyRequest(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	request, err := s.emergency.Deny(r.Context(), chi.URLParam(r, "id"), claims.ActorID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(request))
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	request, err := s.emergency.Cancel(r.Context(), chi.URLParam(r, "id"), claims.ActorID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(request))
}

func (s *Server) handleRevokeRequest(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	request, err := s.emergency.Revoke(r.Context(), chi.URLParam(r, "id"), claims.ActorID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(request))
}

func (s *Server) handleRequestGrants(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	tokens, err := s.emergency.GrantsForRequest(r.Context(), chi.URLParam(r, "id"), claims.ActorID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	result := make([]grantTokenResponse, 0, len(tokens))
	for _, token := range tokens {
		result = append(result, grantTokenResponse{
			ID:          token.ID,
			RecordID:    token.RecordID,
			SealedKey:   token.SealedKey,
			ReadOnly:    token.ReadOnly,
			DownloadURL: token.DownloadURL,
			ExpiresAt:   token.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, result)
}
