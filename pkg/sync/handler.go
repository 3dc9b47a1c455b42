package sync

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/prepcal/prepcal/internal/rest"
	"github.com/prepcal/prepcal/pkg/event"
)

type Handler struct {
	engine          *Engine
	repo            event.Repository
	intervalMinutes int
}

func NewHandler(engine *Engine, repo event.Repository, intervalMinutes int) *Handler {
	return &Handler{engine: engine, repo: repo, intervalMinutes: intervalMinutes}
}

type SyncResultDTO struct {
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Deleted int    `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

type SyncStatusDTO struct {
	Authenticated       bool       `json:"authenticated"`
	HasSyncToken        bool       `json:"hasSyncToken"`
	SyncIntervalMinutes int        `json:"syncIntervalMinutes"`
	CalendarId          string     `json:"calendarId"`
	LastSyncTime        *time.Time `json:"lastSyncTime"`
	LastSyncSuccess     *bool      `json:"lastSyncSuccess"`
	LastSyncError       string     `json:"lastSyncError,omitempty"`
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Run(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			rest.WriteError(w, http.StatusBadRequest, "Google Calendar credentials are not configured")
			return
		}
		log.Errorf("Sync failed: %v", err)
		rest.WriteJSON(w, http.StatusInternalServerError, SyncResultDTO{Error: err.Error()})
		return
	}
	rest.WriteJSON(w, http.StatusOK, SyncResultDTO{
		Created: stats.Created,
		Updated: stats.Updated,
		Deleted: stats.Deleted,
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := SyncStatusDTO{
		Authenticated:       h.engine.gateway.HasCredentials(),
		HasSyncToken:        h.engine.tracker.HasToken(h.engine.calendarId),
		SyncIntervalMinutes: h.intervalMinutes,
		CalendarId:          h.engine.calendarId,
	}
	if attempt := h.engine.tracker.LastAttempt(); attempt != nil {
		status.LastSyncTime = &attempt.Time
		status.LastSyncSuccess = &attempt.Success
		status.LastSyncError = attempt.Error
	}
	rest.WriteJSON(w, http.StatusOK, status)
}

// PushEvent pushes the event's checklist back to its calendar description,
// and for a recurring instance also pushes every diverged sibling of its
// series.
func (h *Handler) PushEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.pathEvent(w, r)
	if !ok {
		return
	}

	stats, err := h.engine.PushRecurringInstances(r.Context(), *ev)
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			rest.WriteError(w, http.StatusBadRequest, "Google Calendar credentials are not configured")
			return
		}
		log.Errorf("Push failed for event %s: %v", ev.ID, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to push items to calendar")
		return
	}
	if stats.Pushed == 0 && stats.Failed > 0 {
		rest.WriteJSON(w, http.StatusInternalServerError, stats)
		return
	}
	rest.WriteJSON(w, http.StatusOK, stats)
}

type seriesItemRequest struct {
	Name string `json:"name"`
}

// AddSeriesItem adds an item to all future unconfirmed instances of the
// event's recurring series.
func (h *Handler) AddSeriesItem(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.pathEvent(w, r)
	if !ok {
		return
	}
	if ev.IsArchived {
		rest.WriteError(w, http.StatusBadRequest, "Cannot modify an archived event")
		return
	}
	if ev.RecurringEventID == "" {
		rest.WriteError(w, http.StatusBadRequest, "Event is not part of a recurring series")
		return
	}

	var body seriesItemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		rest.WriteError(w, http.StatusBadRequest, "Item name is required")
		return
	}

	stats, err := h.engine.PushItemToRecurringInstances(r.Context(), *ev, body.Name)
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			rest.WriteError(w, http.StatusBadRequest, "Google Calendar credentials are not configured")
			return
		}
		log.Errorf("Series item fan-out failed for event %s: %v", ev.ID, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to add item to series")
		return
	}
	rest.WriteJSON(w, http.StatusOK, stats)
}

// DeleteSeriesItem removes an item by name from all future unconfirmed
// instances of the event's recurring series.
func (h *Handler) DeleteSeriesItem(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.pathEvent(w, r)
	if !ok {
		return
	}
	if ev.IsArchived {
		rest.WriteError(w, http.StatusBadRequest, "Cannot modify an archived event")
		return
	}
	if ev.RecurringEventID == "" {
		rest.WriteError(w, http.StatusBadRequest, "Event is not part of a recurring series")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		rest.WriteError(w, http.StatusBadRequest, "Item name is required")
		return
	}

	stats, err := h.engine.DeleteItemFromRecurringInstances(r.Context(), *ev, name)
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			rest.WriteError(w, http.StatusBadRequest, "Google Calendar credentials are not configured")
			return
		}
		log.Errorf("Series item removal failed for event %s: %v", ev.ID, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to remove item from series")
		return
	}
	rest.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) pathEvent(w http.ResponseWriter, r *http.Request) (*event.Event, bool) {
	eventId, err := uuid.Parse(mux.Vars(r)["eventId"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid event id")
		return nil, false
	}
	ev, err := h.repo.GetEvent(r.Context(), eventId)
	if err != nil {
		log.Errorf("Failed to load event %s: %v", eventId, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to load event")
		return nil, false
	}
	if ev == nil {
		rest.WriteError(w, http.StatusNotFound, "Event not found")
		return nil, false
	}
	return ev, true
}
