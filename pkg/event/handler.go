package event

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prepcal/prepcal/internal/rest"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type ItemDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsChecked bool   `json:"isChecked"`
	Source    string `json:"source"`
}

type AttendeeDTO struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus"`
}

type ConfirmationDTO struct {
	ConfirmedAt time.Time `json:"confirmedAt"`
	ConfirmedBy int       `json:"confirmedBy"`
}

type EventDTO struct {
	ID                 string    `json:"id"`
	GoogleEventID      string    `json:"googleEventId"`
	RecurringEventID   string    `json:"recurringEventId,omitempty"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	StartTime          time.Time `json:"start"`
	EndTime            time.Time `json:"end"`
	LastSynced         time.Time `json:"lastSynced"`
	IsArchived         bool      `json:"isArchived"`
	HasUnpushedChanges bool      `json:"hasUnpushedChanges"`
	Items              []ItemDTO `json:"items"`
}

type EventDetailDTO struct {
	EventDTO
	Attendees     []AttendeeDTO     `json:"attendees"`
	Confirmations []ConfirmationDTO `json:"confirmations"`
}

type UpcomingDTO struct {
	Today    []EventDTO `json:"today"`
	Tomorrow []EventDTO `json:"tomorrow"`
	Later    []EventDTO `json:"later"`
}

func toItemDTOs(items []Item) []ItemDTO {
	dtos := make([]ItemDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, ItemDTO{
			ID:        item.ID.String(),
			Name:      item.Name,
			IsChecked: item.IsChecked,
			Source:    item.Source,
		})
	}
	return dtos
}

func toEventDTO(overview Overview) EventDTO {
	return EventDTO{
		ID:                 overview.ID.String(),
		GoogleEventID:      overview.GoogleEventID,
		RecurringEventID:   overview.RecurringEventID,
		Title:              overview.Title,
		Description:        overview.Description,
		StartTime:          overview.StartTime,
		EndTime:            overview.EndTime,
		LastSynced:         overview.LastSynced,
		IsArchived:         overview.IsArchived,
		HasUnpushedChanges: overview.HasUnpushedChanges,
		Items:              toItemDTOs(overview.Items),
	}
}

func toEventDTOs(overviews []Overview) []EventDTO {
	dtos := make([]EventDTO, 0, len(overviews))
	for _, overview := range overviews {
		dtos = append(dtos, toEventDTO(overview))
	}
	return dtos
}

func (h *Handler) GetUpcoming(w http.ResponseWriter, r *http.Request) {
	upcoming, err := h.service.ListUpcoming(r.Context())
	if err != nil {
		log.Errorf("failed to list upcoming events: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to list upcoming events")
		return
	}

	rest.WriteJSON(w, http.StatusOK, UpcomingDTO{
		Today:    toEventDTOs(upcoming.Today),
		Tomorrow: toEventDTOs(upcoming.Tomorrow),
		Later:    toEventDTOs(upcoming.Later),
	})
}

func (h *Handler) GetArchived(w http.ResponseWriter, r *http.Request) {
	archived, err := h.service.ListArchived(r.Context())
	if err != nil {
		log.Errorf("failed to list archived events: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to list archived events")
		return
	}
	rest.WriteJSON(w, http.StatusOK, toEventDTOs(archived))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathEventId(w, r)
	if !ok {
		return
	}

	detail, err := h.service.GetDetail(r.Context(), eventId)
	if err != nil {
		writeServiceError(w, err, "Failed to get event")
		return
	}

	dto := EventDetailDTO{
		EventDTO: toEventDTO(Overview{
			Event:              detail.Event,
			Items:              detail.Items,
			HasUnpushedChanges: detail.HasUnpushedChanges,
		}),
		Attendees:     make([]AttendeeDTO, 0, len(detail.Attendees)),
		Confirmations: make([]ConfirmationDTO, 0, len(detail.Confirmations)),
	}
	for _, attendee := range detail.Attendees {
		dto.Attendees = append(dto.Attendees, AttendeeDTO{
			Email:          attendee.Email,
			DisplayName:    attendee.DisplayName,
			ResponseStatus: attendee.ResponseStatus,
		})
	}
	for _, confirmation := range detail.Confirmations {
		dto.Confirmations = append(dto.Confirmations, ConfirmationDTO{
			ConfirmedAt: confirmation.ConfirmedAt,
			ConfirmedBy: confirmation.ConfirmedBy,
		})
	}
	rest.WriteJSON(w, http.StatusOK, dto)
}

type addItemRequest struct {
	Name string `json:"name"`
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathEventId(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		rest.WriteError(w, http.StatusBadRequest, "Item name is required")
		return
	}

	item, err := h.service.AddItem(r.Context(), eventId, req.Name)
	if err != nil {
		writeServiceError(w, err, "Failed to add item")
		return
	}
	rest.WriteJSON(w, http.StatusCreated, ItemDTO{
		ID:        item.ID.String(),
		Name:      item.Name,
		IsChecked: item.IsChecked,
		Source:    item.Source,
	})
}

type itemProgressDTO struct {
	ItemID       string `json:"itemId"`
	IsChecked    bool   `json:"isChecked"`
	CheckedCount int    `json:"checkedCount"`
	TotalCount   int    `json:"totalCount"`
	AllChecked   bool   `json:"allChecked"`
}

func (h *Handler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathEventId(w, r)
	if !ok {
		return
	}
	itemId, err := uuid.Parse(mux.Vars(r)["itemId"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	progress, err := h.service.ToggleItem(r.Context(), eventId, itemId)
	if err != nil {
		writeServiceError(w, err, "Failed to toggle item")
		return
	}
	rest.WriteJSON(w, http.StatusOK, itemProgressDTO{
		ItemID:       progress.Item.ID.String(),
		IsChecked:    progress.Item.IsChecked,
		CheckedCount: progress.CheckedCount,
		TotalCount:   progress.TotalCount,
		AllChecked:   progress.AllChecked,
	})
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathEventId(w, r)
	if !ok {
		return
	}
	itemId, err := uuid.Parse(mux.Vars(r)["itemId"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	if err := h.service.DeleteItem(r.Context(), eventId, itemId); err != nil {
		writeServiceError(w, err, "Failed to delete item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathEventId(w, r)
	if !ok {
		return
	}

	confirmation, err := h.service.Confirm(r.Context(), eventId)
	if err != nil {
		writeServiceError(w, err, "Failed to confirm checklist")
		return
	}
	rest.WriteJSON(w, http.StatusCreated, ConfirmationDTO{
		ConfirmedAt: confirmation.ConfirmedAt,
		ConfirmedBy: confirmation.ConfirmedBy,
	})
}

func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathEventId(w, r)
	if !ok {
		return
	}
	if err := h.service.Archive(r.Context(), eventId); err != nil {
		writeServiceError(w, err, "Failed to archive event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Unarchive(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathEventId(w, r)
	if !ok {
		return
	}
	if err := h.service.Unarchive(r.Context(), eventId); err != nil {
		writeServiceError(w, err, "Failed to unarchive event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathEventId(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	eventId, err := uuid.Parse(mux.Vars(r)["eventId"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid event id")
		return uuid.Nil, false
	}
	return eventId, true
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrItemNotFound):
		rest.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEventArchived), errors.Is(err, ErrItemsUnchecked):
		rest.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error(err)
		rest.WriteError(w, http.StatusInternalServerError, fallback)
	}
}
