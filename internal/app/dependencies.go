package app

import (
	"database/sql"

	"github.com/prepcal/prepcal/internal/config"
	"github.com/prepcal/prepcal/internal/scheduler"
	"github.com/prepcal/prepcal/internal/utils"
	"github.com/prepcal/prepcal/pkg/event"
	"github.com/prepcal/prepcal/pkg/google"
	"github.com/prepcal/prepcal/pkg/sync"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock utils.Clock

	EventRepo    event.Repository
	EventService *event.Service
	EventHandler *event.Handler

	GoogleClient *google.Client

	SyncTracker *sync.Tracker
	SyncEngine  *sync.Engine
	SyncHandler *sync.Handler

	Scheduler *scheduler.Scheduler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *sql.DB, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = &utils.SystemClock{}

	deps.EventRepo = event.NewRepository(db)
	deps.EventService = event.NewService(deps.EventRepo, deps.Clock)
	deps.EventHandler = event.NewHandler(deps.EventService)

	deps.GoogleClient = google.NewClient(cfg.Google)

	deps.SyncTracker = sync.NewTracker()
	deps.SyncEngine = sync.NewEngine(deps.EventRepo, deps.GoogleClient, deps.SyncTracker, cfg.Google.CalendarId, deps.Clock)
	deps.SyncHandler = sync.NewHandler(deps.SyncEngine, deps.EventRepo, cfg.Sync.IntervalMinutes)

	deps.Scheduler = scheduler.New(deps.SyncEngine, cfg.Sync.IntervalMinutes)

	return deps
}
