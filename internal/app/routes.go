package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/prepcal/prepcal/internal/rest"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Events
	r.HandleFunc("/api/event/upcoming", deps.EventHandler.GetUpcoming).Methods("GET")
	r.HandleFunc("/api/event/archive", deps.EventHandler.GetArchived).Methods("GET")
	r.HandleFunc("/api/event/{eventId}", deps.EventHandler.GetEvent).Methods("GET")
	r.HandleFunc("/api/event/{eventId}/archive", deps.EventHandler.Archive).Methods("POST")
	r.HandleFunc("/api/event/{eventId}/unarchive", deps.EventHandler.Unarchive).Methods("POST")
	r.HandleFunc("/api/event/{eventId}/confirm", deps.EventHandler.Confirm).Methods("POST")

	// Checklist items
	r.HandleFunc("/api/event/{eventId}/item", deps.EventHandler.AddItem).Methods("POST")
	r.HandleFunc("/api/event/{eventId}/item/{itemId}/toggle", deps.EventHandler.ToggleItem).Methods("POST")
	r.HandleFunc("/api/event/{eventId}/item/{itemId}", deps.EventHandler.DeleteItem).Methods("DELETE")

	// Calendar push
	r.HandleFunc("/api/event/{eventId}/push", deps.SyncHandler.PushEvent).Methods("POST")
	r.HandleFunc("/api/event/{eventId}/series/item", deps.SyncHandler.AddSeriesItem).Methods("POST")
	r.HandleFunc("/api/event/{eventId}/series/item", deps.SyncHandler.DeleteSeriesItem).Queries("name", "{name}").Methods("DELETE")

	// Sync
	r.HandleFunc("/api/sync", deps.SyncHandler.TriggerSync).Methods("POST")
	r.HandleFunc("/api/sync/status", deps.SyncHandler.GetStatus).Methods("GET")

	// Health
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		rest.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
}
