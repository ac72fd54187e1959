package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/go-chi/chi/v5"
)

type recordPayload struct {
	Title string `json:"title"`
	Data  []byte `json:"data"`
}

type updateRecordPayload struct {
	Title   string `json:"title"`
	Data    []byte `json:"data"`
	Version int64  `json:"version"`
}

type recordResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type uploadURLResponse struct {
	StorageKey string `json:"storage_key"`
	URL        string `json:"url"`
}

func toRecordResponse(r *models.Record) recordResponse {
	return recordResponse{
		ID:        r.ID,
		Title:     r.Title,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	var req recordPayload
	if !decodeBody(w, r, &req) {
		return
	}
	record, err := s.records.Create(r.Context(), claims.ActorID, claims.SessionID, req.Title, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordResponse(record))
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	records, err := s.records.List(r.Context(), claims.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	result := make([]recordResponse, 0, len(records))
	for _, record := range records {
		result = append(result, toRecordResponse(record))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	record, err := s.records.Get(r.Context(), claims.ActorID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	// owners get the sealed payload too: decryption happens client-side
	writeJSON(w, http.StatusOK, struct {
		recordResponse
		EncryptedData []byte `json:"encrypted_data"`
		Nonce         []byte `json:"nonce"`
		KeyEnvelope   []byte `json:"key_envelope"`
		EnvelopeNonce []byte `json:"envelope_nonce"`
		StorageKey    string `json:"storage_key,omitempty"`
	}{
		recordResponse: toRecordResponse(record),
		EncryptedData:  record.EncryptedData,
		Nonce:          record.Nonce,
		KeyEnvelope:    record.KeyEnvelope,
		EnvelopeNonce:  record.EnvelopeNonce,
		StorageKey:     record.StorageKey,
	})
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	var req updateRecordPayload
	if !decodeBody(w, r, &req) {
		return
	}
	record, err := s.records.Update(r.Context(), claims.ActorID, claims.SessionID,
		chi.URLParam(r, "id"), req.Title, req.Data, req.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(record))
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	if err := s.records.Delete(r.Context(), claims.ActorID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	key, url, err := s.records.UploadURL(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadURLResponse{StorageKey: key, URL: url})
}
