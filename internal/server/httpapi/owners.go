package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
)

type registerRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type saltResponse struct {
	Salt []byte `json:"salt"`
}

type settingsPayload struct {
	InactivityThresholdSecs int64 `json:"inactivity_threshold_secs"`
	WaitingPeriodSecs       int64 `json:"waiting_period_secs"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserName == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username and password are required"})
		return
	}

	owner, err := s.owners.Register(r.Context(), req.UserName, []byte(req.Password))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": owner.ID})
}

func (s *Server) handleSalt(w http.ResponseWriter, r *http.Request) {
	userName := r.URL.Query().Get("username")
	if userName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username is required"})
		return
	}
	salt, err := s.owners.GetSalt(r.Context(), userName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saltResponse{Salt: salt})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := s.owners.Login(r.Context(), req.UserName, []byte(req.Password), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	s.owners.Logout(r.Context(), claims.SessionID)
	w.WriteHeader(http.StatusNoContent)
}

// handleActivity is the explicit heartbeat. Authenticated owner traffic also
// counts as activity via the router, so this endpoint exists for clients that
// want to check in without touching any data.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	if err := s.activity.RecordActivity(r.Context(), claims.ActorID, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	owner, err := s.owners.Get(r.Context(), claims.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{
		InactivityThresholdSecs: int64(owner.InactivityThreshold.Seconds()),
		WaitingPeriodSecs:       int64(owner.WaitingPeriod.Seconds()),
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	var req settingsPayload
	if !decodeBody(w, r, &req) {
		return
	}
	if req.InactivityThresholdSecs <= 0 || req.WaitingPeriodSecs <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "thresholds must be positive"})
		return
	}
	err := s.owners.UpdateSettings(r.Context(), claims.ActorID,
		time.Duration(req.InactivityThresholdSecs)*time.Second,
		time.Duration(req.WaitingPeriodSecs)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
