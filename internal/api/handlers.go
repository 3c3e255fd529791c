package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pairpad/internal/models"
	"pairpad/internal/repository"
	"pairpad/internal/session"
	"pairpad/internal/store"
)

type Handlers struct {
	log      *zap.Logger
	hub      *session.Hub
	store    *store.Store
	sessions *repository.SessionRepository
	history  *repository.HistoryRepository
	baseURL  string
}

func NewHandlers(log *zap.Logger, hub *session.Hub, st *store.Store, sessions *repository.SessionRepository, history *repository.HistoryRepository, baseURL string) *Handlers {
	return &Handlers{
		log:      log,
		hub:      hub,
		store:    st,
		sessions: sessions,
		history:  history,
		baseURL:  baseURL,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) ListLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.Languages())
}

/*** Session CRUD ***/

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	req := models.SessionCreateRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Language == "" {
		req.Language = models.LangJavaScript
	}
	if !req.Language.Valid() {
		http.Error(w, "unsupported language: "+string(req.Language), http.StatusBadRequest)
		return
	}
	if req.ExpiresIn == 0 {
		req.ExpiresIn = 24
	}
	if req.ExpiresIn < 1 || req.ExpiresIn > 168 {
		http.Error(w, "expiresIn must be between 1 and 168 hours", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	stored := &models.StoredSession{
		SessionID:    uuid.New().String(),
		Title:        req.Title,
		Language:     string(req.Language),
		Code:         fmt.Sprintf("// Write your %s code here\n", req.Language),
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(req.ExpiresIn) * time.Hour),
		LastModified: now,
	}
	if err := h.sessions.Create(r.Context(), stored); err != nil {
		h.log.Error("create session", zap.Error(err))
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, h.sessionResponse(stored))
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	stored, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(stored))
}

func (h *Handlers) UpdateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req models.SessionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Language != nil && !req.Language.Valid() {
		http.Error(w, "unsupported language: "+string(*req.Language), http.StatusBadRequest)
		return
	}

	stored, err := h.sessions.Update(r.Context(), sessionID, req.Language, req.Title)
	if err != nil {
		sessionError(w, err)
		return
	}
	// Keep live hub state in step when the session is hydrated.
	if req.Language != nil {
		if err := h.store.ApplyLanguageChange(sessionID, *req.Language); err != nil &&
			!errors.Is(err, models.ErrSessionNotFound) {
			h.log.Warn("apply language to live session", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(stored))
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		sessionError(w, err)
		return
	}
	h.hub.CloseSession(sessionID)
	h.store.Evict(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

/*** Code persistence ***/

func (h *Handlers) GetCode(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	stored, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		sessionError(w, err)
		return
	}

	resp := models.CodeResponse{
		SessionID:    sessionID,
		Code:         stored.Code,
		Language:     models.Language(stored.Language),
		LastModified: stored.LastModified,
	}
	// A hydrated session may be ahead of the persisted copy.
	if snap, snapErr := h.store.Snapshot(sessionID); snapErr == nil {
		resp.Code = snap.Code
		resp.Language = snap.Language
		resp.LastModified = snap.LastActivity
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) SaveCode(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req models.CodeSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.Language.Valid() {
		http.Error(w, "unsupported language: "+string(req.Language), http.StatusBadRequest)
		return
	}

	if err := h.sessions.SaveCode(r.Context(), sessionID, req.Code, req.Language); err != nil {
		sessionError(w, err)
		return
	}
	if _, err := h.store.ApplyCodeUpdate(sessionID, req.Code); err == nil {
		_ = h.store.ApplyLanguageChange(sessionID, req.Language)
	}
	writeJSON(w, http.StatusOK, models.CodeSaveResponse{
		SessionID: sessionID,
		SavedAt:   time.Now().UTC(),
	})
}

/*** Roster + history ***/

func (h *Handlers) GetParticipants(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		sessionError(w, err)
		return
	}
	participants := []models.ParticipantInfo{}
	if snap, err := h.store.Snapshot(sessionID); err == nil {
		participants = snap.Participants
	}
	writeJSON(w, http.StatusOK, models.ParticipantsResponse{
		SessionID:    sessionID,
		Participants: participants,
	})
}

type historyEntryResponse struct {
	Timestamp     time.Time `json:"timestamp"`
	ParticipantID string    `json:"participantId"`
	ChangeType    string    `json:"changeType"`
	Snapshot      string    `json:"snapshot,omitempty"`
}

func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		sessionError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.history.BySession(r.Context(), sessionID, limit)
	if err != nil {
		h.log.Error("load history", zap.String("sessionId", sessionID), zap.Error(err))
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			Timestamp:     e.OccurredAt,
			ParticipantID: e.ParticipantID,
			ChangeType:    e.ChangeType,
			Snapshot:      e.Snapshot,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"history":   out,
	})
}

/*** Collab WebSocket: session-scoped broadcast hub ***/

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := session.NewClient(conn)
	welcome, err := h.hub.Connect(r.Context(), sessionID, client)
	if err != nil {
		// Fatal: no retry, no broadcast side effects.
		_ = conn.WriteJSON(models.ErrorFrame(models.CodeSessionNotFound, "session not found: "+sessionID))
		return
	}
	defer h.hub.Disconnect(sessionID, client)

	if err := client.Send(models.NewFrame(models.TypeWelcome, "", welcome)); err != nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame models.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			// Recoverable: the connection stays open.
			_ = client.Send(models.ErrorFrame(models.CodeInvalidMessage, "malformed frame"))
			continue
		}
		h.hub.HandleFrame(sessionID, client, frame)
	}
}

func (h *Handlers) sessionResponse(s *models.StoredSession) models.SessionResponse {
	return models.SessionResponse{
		SessionID:          s.SessionID,
		Title:              s.Title,
		Language:           models.Language(s.Language),
		CreatedAt:          s.CreatedAt,
		ExpiresAt:          s.ExpiresAt,
		ActiveParticipants: h.store.ParticipantCount(s.SessionID),
		URL:                h.baseURL + "/interview/" + s.SessionID,
	}
}

func sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
