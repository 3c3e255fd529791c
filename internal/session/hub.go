package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pairpad/internal/history"
	"pairpad/internal/metrics"
	"pairpad/internal/models"
	"pairpad/internal/store"
)

// Persister writes hub-accepted updates through to the persistence layer so
// the stored copy reflects the latest update the hub accepted.
type Persister interface {
	SaveCode(ctx context.Context, sessionID, code string, language models.Language) error
	SaveLanguage(ctx context.Context, sessionID string, language models.Language) error
}

type frameHandler func(sessionID string, c *Client, frame models.Frame)

// Hub is the message router: it validates inbound frames, mutates the session
// store and fans resulting frames out through the registry. Connection states
// run Connecting → Joined → Active → Closed; Connect covers the first
// transition, HandleFrame the middle, Disconnect the last.
type Hub struct {
	store    *store.Store
	registry *Registry
	recorder history.Recorder
	persist  Persister
	log      *zap.Logger

	rateLimit rate.Limit
	rateBurst int

	handlers map[string]frameHandler
}

func NewHub(st *store.Store, reg *Registry, rec history.Recorder, persist Persister, log *zap.Logger, frameRate float64, frameBurst int) *Hub {
	h := &Hub{
		store:     st,
		registry:  reg,
		recorder:  rec,
		persist:   persist,
		log:       log,
		rateLimit: rate.Limit(frameRate),
		rateBurst: frameBurst,
	}
	h.handlers = map[string]frameHandler{
		models.TypeJoin:           h.handleJoin,
		models.TypeCodeUpdate:     h.handleCodeUpdate,
		models.TypeCursorPosition: h.handleCursor,
		models.TypeLanguageChange: h.handleLanguageChange,
		models.TypePing:           h.handlePing,
	}
	return h
}

// Connect validates the session, admits the connection and returns the
// welcome payload. On models.ErrSessionNotFound the caller sends the fatal
// error frame and closes the transport; nothing was registered.
func (h *Hub) Connect(ctx context.Context, sessionID string, c *Client) (models.WelcomeData, error) {
	if _, err := h.store.GetOrLoad(ctx, sessionID); err != nil {
		return models.WelcomeData{}, err
	}

	if c.ParticipantID() == "" {
		c.setParticipantID(newParticipantID())
	}
	if h.rateLimit > 0 {
		c.setLimiter(rate.NewLimiter(h.rateLimit, h.rateBurst))
	}

	// Register before snapshotting: an event landing in between reaches the
	// connection as a regular frame, where the reverse order would drop it.
	h.registry.Register(sessionID, c)
	metrics.ActiveConnections.Inc()

	snap, err := h.store.Snapshot(sessionID)
	if err != nil {
		h.registry.Unregister(sessionID, c)
		metrics.ActiveConnections.Dec()
		return models.WelcomeData{}, err
	}

	return models.WelcomeData{
		SessionID:    sessionID,
		CurrentCode:  snap.Code,
		Language:     snap.Language,
		Participants: snap.Participants,
	}, nil
}

// HandleFrame dispatches one inbound frame. Recoverable failures answer the
// sender with an error frame and leave the connection open.
func (h *Hub) HandleFrame(sessionID string, c *Client, frame models.Frame) {
	handler, ok := h.handlers[frame.Type]
	if !ok {
		metrics.FramesReceived.WithLabelValues("invalid").Inc()
		h.sendError(c, models.CodeInvalidMessage, "unknown frame type: "+frame.Type)
		return
	}
	metrics.FramesReceived.WithLabelValues(frame.Type).Inc()

	// Pings are exempt from the budget so a backing-off client stays alive.
	if frame.Type != models.TypePing && !c.Allow() {
		h.sendError(c, models.CodeRateLimitExceeded, "frame rate limit exceeded")
		return
	}

	// Identity is fixed at connect; the participantId stamped on inbound
	// frames is never trusted for roster bookkeeping.
	handler(sessionID, c, frame)
}

// Disconnect runs the close sequence exactly once per connection: unregister,
// drop the roster entry, notify the remaining participants.
func (h *Hub) Disconnect(sessionID string, c *Client) {
	if !c.departed.CompareAndSwap(false, true) {
		return
	}
	h.registry.Unregister(sessionID, c)
	metrics.ActiveConnections.Dec()

	if !c.joined.Load() {
		return
	}
	count, err := h.store.RemoveParticipant(sessionID, c.ParticipantID())
	if err != nil {
		return
	}
	frame := models.NewFrame(models.TypeUserLeft, c.ParticipantID(), models.UserLeftData{
		ParticipantCount: count,
	})
	h.registry.Broadcast(sessionID, frame, nil)
}

// CloseSession force-closes every connection and evicts cached state. Used on
// session deletion and TTL expiry.
func (h *Hub) CloseSession(sessionID string) {
	h.registry.CloseSession(sessionID)
}

func (h *Hub) handleJoin(sessionID string, c *Client, frame models.Frame) {
	var join models.JoinData
	if err := models.DecodeData(frame.Data, &join); err != nil {
		h.sendError(c, models.CodeInvalidMessage, "malformed join payload")
		return
	}
	if join.Name == "" {
		join.Name = "Anonymous User"
	}
	c.Name = join.Name

	count, err := h.store.AddParticipant(sessionID, c.ParticipantID(), join.Name)
	if err != nil {
		h.sendError(c, models.CodeInvalidMessage, err.Error())
		return
	}
	c.joined.Store(true)

	frameOut := models.NewFrame(models.TypeUserJoined, c.ParticipantID(), models.UserJoinedData{
		Name:             join.Name,
		ParticipantCount: count,
	})
	h.registry.Broadcast(sessionID, frameOut, c)
}

func (h *Hub) handleCodeUpdate(sessionID string, c *Client, frame models.Frame) {
	var update models.CodeUpdateData
	if err := models.DecodeData(frame.Data, &update); err != nil {
		h.sendError(c, models.CodeInvalidMessage, "malformed code-update payload")
		return
	}

	version, err := h.store.ApplyCodeUpdate(sessionID, update.Code)
	if err != nil {
		h.sendError(c, models.CodeInvalidMessage, err.Error())
		return
	}

	frameOut := models.NewFrame(models.TypeCodeUpdate, c.ParticipantID(), models.CodeUpdateData{
		Code:    update.Code,
		Version: version,
	})
	h.registry.Broadcast(sessionID, frameOut, c)

	snap, snapErr := h.store.Snapshot(sessionID)
	if snapErr == nil {
		h.persistAsync(sessionID, update.Code, snap.Language)
	}
	h.recordAsync(sessionID, c.ParticipantID(), models.TypeCodeUpdate, update.Code)
}

func (h *Hub) handleCursor(sessionID string, c *Client, frame models.Frame) {
	// Transient: fan out as-is, never persisted.
	frameOut := models.NewFrame(models.TypeCursorPosition, c.ParticipantID(), frame.Data)
	h.registry.Broadcast(sessionID, frameOut, c)
}

func (h *Hub) handleLanguageChange(sessionID string, c *Client, frame models.Frame) {
	var change models.LanguageChangeData
	if err := models.DecodeData(frame.Data, &change); err != nil {
		h.sendError(c, models.CodeInvalidMessage, "malformed language-change payload")
		return
	}

	if err := h.store.ApplyLanguageChange(sessionID, change.Language); err != nil {
		if errors.Is(err, models.ErrInvalidLanguage) {
			h.sendError(c, models.CodeInvalidMessage, "invalid language: "+string(change.Language))
			return
		}
		h.sendError(c, models.CodeInvalidMessage, err.Error())
		return
	}

	frameOut := models.NewFrame(models.TypeLanguageChanged, c.ParticipantID(), models.LanguageChangeData{
		Language: change.Language,
	})
	h.registry.Broadcast(sessionID, frameOut, c)

	h.persistLanguageAsync(sessionID, change.Language)
	h.recordAsync(sessionID, c.ParticipantID(), models.TypeLanguageChange, string(change.Language))
}

func (h *Hub) handlePing(sessionID string, c *Client, _ models.Frame) {
	c.TouchPing()
	if err := c.Send(models.NewFrame(models.TypePong, "", nil)); err != nil {
		h.log.Debug("pong write failed", zap.String("sessionId", sessionID), zap.Error(err))
	}
}

func (h *Hub) sendError(c *Client, code, message string) {
	if err := c.Send(models.ErrorFrame(code, message)); err != nil {
		h.log.Debug("error frame write failed", zap.String("code", code), zap.Error(err))
	}
}

func (h *Hub) persistAsync(sessionID, code string, language models.Language) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.persist.SaveCode(ctx, sessionID, code, language); err != nil {
			h.log.Warn("code write-through failed",
				zap.String("sessionId", sessionID), zap.Error(err))
		}
	}()
}

func (h *Hub) persistLanguageAsync(sessionID string, language models.Language) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.persist.SaveLanguage(ctx, sessionID, language); err != nil {
			h.log.Warn("language write-through failed",
				zap.String("sessionId", sessionID), zap.Error(err))
		}
	}()
}

func (h *Hub) recordAsync(sessionID, participantID, changeType, snapshot string) {
	event := models.HistoryEvent{
		SessionID:     sessionID,
		Timestamp:     time.Now().UTC(),
		ParticipantID: participantID,
		ChangeType:    changeType,
		Snapshot:      snapshot,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.recorder.Record(ctx, event); err != nil {
			h.log.Warn("history record failed",
				zap.String("sessionId", sessionID), zap.Error(err))
		}
	}()
}
