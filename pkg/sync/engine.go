// Package sync reconciles the Google Calendar event stream against the
// local event store. Google is authoritative for event metadata and the
// description-derived item list; the local store is authoritative for
// checked state, archival and confirmations.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/prepcal/prepcal/internal/utils"
	"github.com/prepcal/prepcal/pkg/checklist"
	"github.com/prepcal/prepcal/pkg/event"
	"github.com/prepcal/prepcal/pkg/google"
)

// ErrNoCredentials is returned when no refresh token is configured; the
// engine never touches the network in that case.
var ErrNoCredentials = errors.New("no valid credentials")

// Full syncs pull a windowed snapshot from two hours in the past (matching
// how long finished events stay visible) to thirty days ahead.
const (
	pastWindow   = 2 * time.Hour
	futureWindow = 30 * 24 * time.Hour
)

// Stats counts the effects of one sync cycle.
type Stats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Gateway is the remote calendar boundary consumed by the engine. The
// production implementation is google.Client; tests use a stub.
type Gateway interface {
	HasCredentials() bool
	ListIncremental(ctx context.Context, calendarId, syncToken string) (*gcal.Events, error)
	ListWindow(ctx context.Context, calendarId string, timeMin, timeMax time.Time) (*gcal.Events, error)
	ListPage(ctx context.Context, calendarId, pageToken string) (*gcal.Events, error)
	GetEvent(ctx context.Context, calendarId, eventId string) (*gcal.Event, error)
	UpdateEvent(ctx context.Context, calendarId, eventId string, ev *gcal.Event) (*gcal.Event, error)
}

type Engine struct {
	repo       event.Repository
	gateway    Gateway
	tracker    *Tracker
	calendarId string
	clock      utils.Clock

	// Serializes sync cycles: a cycle is not reentrant-safe because of the
	// token read/write around the transaction.
	runMu stdsync.Mutex
}

func NewEngine(repo event.Repository, gateway Gateway, tracker *Tracker, calendarId string, clock utils.Clock) *Engine {
	return &Engine{
		repo:       repo,
		gateway:    gateway,
		tracker:    tracker,
		calendarId: calendarId,
		clock:      clock,
	}
}

// Run executes one sync cycle: a token-based incremental pull when a token
// is held, otherwise a windowed full sync. An expired token is recovered
// exactly once by demoting to a full sync; any further failure propagates.
// The whole reconciliation commits atomically, but the tracker reflects
// the attempt outcome even when the cycle rolls back.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if !e.gateway.HasCredentials() {
		log.Warn("No valid credentials, skipping sync")
		e.tracker.RecordFailure(e.clock.Now(), "No valid credentials")
		return Stats{}, ErrNoCredentials
	}

	for attempt := 0; ; attempt++ {
		token := e.tracker.Token(e.calendarId)

		stats, newToken, err := e.syncOnce(ctx, token)
		if err != nil {
			if errors.Is(err, google.ErrSyncTokenExpired) && token != "" && attempt == 0 {
				log.Info("Sync token expired, performing full sync")
				e.tracker.ClearToken(e.calendarId)
				continue
			}
			e.tracker.RecordFailure(e.clock.Now(), err.Error())
			return Stats{}, err
		}

		if newToken != "" {
			e.tracker.SetToken(e.calendarId, newToken)
		}
		e.tracker.RecordSuccess(e.clock.Now())
		log.Infof("Sync completed: created=%d updated=%d deleted=%d", stats.Created, stats.Updated, stats.Deleted)
		return stats, nil
	}
}

// syncOnce walks every page of one pull and reconciles each record inside
// a single transaction. It returns the next continuation token when the
// last page offered one; an empty return means "no token change".
func (e *Engine) syncOnce(ctx context.Context, token string) (Stats, string, error) {
	var stats Stats
	var newToken string
	isFullSync := token == ""
	seen := make(map[string]struct{})

	err := e.repo.WithTransaction(ctx, func(repo event.Repository) error {
		var page *gcal.Events
		var err error
		if isFullSync {
			now := e.clock.Now()
			page, err = e.gateway.ListWindow(ctx, e.calendarId, now.Add(-pastWindow), now.Add(futureWindow))
		} else {
			page, err = e.gateway.ListIncremental(ctx, e.calendarId, token)
		}
		if err != nil {
			return err
		}

		for {
			if err := e.reconcilePage(ctx, repo, page.Items, &stats, seen, isFullSync); err != nil {
				return err
			}
			if page.NextSyncToken != "" {
				newToken = page.NextSyncToken
			}
			if page.NextPageToken == "" {
				break
			}
			page, err = e.gateway.ListPage(ctx, e.calendarId, page.NextPageToken)
			if err != nil {
				return err
			}
		}

		// A full snapshot omits cancelled records, so local events the
		// snapshot stayed silent about are gone remotely.
		if isFullSync {
			deleted, err := e.sweepOrphans(ctx, repo, seen)
			if err != nil {
				return err
			}
			stats.Deleted += deleted
		}
		return nil
	})
	if err != nil {
		return Stats{}, "", err
	}
	return stats, newToken, nil
}

// reconcilePage applies one page worth of remote records. It is the single
// reducer shared by the first page and every continuation page of both
// sync modes.
func (e *Engine) reconcilePage(ctx context.Context, repo event.Repository, records []*gcal.Event, stats *Stats, seen map[string]struct{}, isFullSync bool) error {
	for _, record := range records {
		if record.Status == "cancelled" {
			deleted, err := e.deleteByGoogleEventID(ctx, repo, record.Id)
			if err != nil {
				return err
			}
			if deleted {
				stats.Deleted++
			}
			continue
		}

		if isFullSync {
			seen[record.Id] = struct{}{}
		}
		created, err := e.upsert(ctx, repo, record)
		if err != nil {
			return err
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}
	return nil
}

// upsert creates or updates the local mirror of one remote record and
// reports whether a new event was created.
func (e *Engine) upsert(ctx context.Context, repo event.Repository, record *gcal.Event) (bool, error) {
	start, err := parseEventTime(record.Start)
	if err != nil {
		return false, fmt.Errorf("event %s: %w", record.Id, err)
	}
	end, err := parseEventTime(record.End)
	if err != nil {
		return false, fmt.Errorf("event %s: %w", record.Id, err)
	}

	title := record.Summary
	if title == "" {
		title = "Untitled"
	}

	existing, err := repo.FindByGoogleEventID(ctx, record.Id)
	if err != nil {
		return false, err
	}

	if existing == nil {
		// A rescheduled recurring instance arrives under a fresh id while
		// the old one is silently cancelled: clear the stale same-day
		// sibling before inserting.
		if record.RecurringEventId != "" {
			if err := e.cleanupOrphanedInstance(ctx, repo, record.RecurringEventId, start, record.Id); err != nil {
				return false, err
			}
		}

		created, err := repo.CreateEvent(ctx, event.Event{
			GoogleEventID:    record.Id,
			RecurringEventID: record.RecurringEventId,
			Title:            title,
			Description:      record.Description,
			StartTime:        start,
			EndTime:          end,
			LastSynced:       e.clock.Now(),
		})
		if err != nil {
			return false, err
		}
		if err := e.syncItems(ctx, repo, created, record.Description); err != nil {
			return false, err
		}
		if err := syncAttendees(ctx, repo, created.ID, record.Attendees); err != nil {
			return false, err
		}
		return true, nil
	}

	timeChanged := !existing.StartTime.Equal(start) || !existing.EndTime.Equal(end)

	existing.Title = title
	existing.Description = record.Description
	existing.StartTime = start
	existing.EndTime = end
	existing.RecurringEventID = record.RecurringEventId
	existing.LastSynced = e.clock.Now()
	if err := repo.UpdateEvent(ctx, *existing); err != nil {
		return false, err
	}

	// A rescheduled occurrence invalidates prior preparation: being ready
	// for the old time says nothing about the new one.
	if timeChanged && !existing.IsArchived {
		log.Infof("Event time changed, resetting checklist for %q", existing.Title)
		if err := repo.UncheckAllItems(ctx, existing.ID); err != nil {
			return false, err
		}
	}

	if record.RecurringEventId != "" {
		if err := e.cleanupOrphanedInstance(ctx, repo, record.RecurringEventId, start, record.Id); err != nil {
			return false, err
		}
	}

	if err := e.syncItems(ctx, repo, *existing, record.Description); err != nil {
		return false, err
	}
	if err := syncAttendees(ctx, repo, existing.ID, record.Attendees); err != nil {
		return false, err
	}
	return false, nil
}

// syncItems reconciles the event's checklist against the names extracted
// from the new description. Names still present keep their item identity
// and checked state; names that disappeared are deleted regardless of
// provenance, because the description is the authoritative item list once
// local changes have been pushed. Archived events are frozen.
func (e *Engine) syncItems(ctx context.Context, repo event.Repository, ev event.Event, description string) error {
	if ev.IsArchived {
		return nil
	}

	parsed := make(map[string]struct{})
	for _, name := range checklist.Extract(description) {
		parsed[name] = struct{}{}
	}

	items, err := repo.ListItems(ctx, ev.ID)
	if err != nil {
		return err
	}
	existingNames := make(map[string]event.Item, len(items))
	for _, item := range items {
		existingNames[item.Name] = item
	}

	for name := range parsed {
		if _, ok := existingNames[name]; !ok {
			if _, err := repo.CreateItem(ctx, event.Item{
				EventID: ev.ID,
				Name:    name,
				Source:  event.SourceParsed,
			}); err != nil {
				return err
			}
		}
	}

	for name, item := range existingNames {
		if _, ok := parsed[name]; !ok {
			if err := repo.DeleteItem(ctx, item.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func syncAttendees(ctx context.Context, repo event.Repository, eventId uuid.UUID, remote []*gcal.EventAttendee) error {
	attendees := make([]event.Attendee, 0, len(remote))
	for _, att := range remote {
		responseStatus := att.ResponseStatus
		if responseStatus == "" {
			responseStatus = "needsAction"
		}
		attendees = append(attendees, event.Attendee{
			Email:          att.Email,
			DisplayName:    att.DisplayName,
			ResponseStatus: responseStatus,
		})
	}
	return repo.ReplaceAttendees(ctx, eventId, attendees)
}

// cleanupOrphanedInstance deletes stale instances of a recurring series
// that share the new record's calendar day but carry a different id. A
// series has at most one true occurrence per day, so a same-day sibling is
// the leftover of a reschedule whose cancellation a full snapshot never
// reports. Runs on both the creation and the update path so whichever
// first observes the replacement cleans up.
func (e *Engine) cleanupOrphanedInstance(ctx context.Context, repo event.Repository, recurringEventId string, newStart time.Time, newGoogleEventId string) error {
	dayStart := time.Date(newStart.Year(), newStart.Month(), newStart.Day(), 0, 0, 0, 0, newStart.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	orphans, err := repo.FindSeriesSiblingsOnDay(ctx, recurringEventId, newGoogleEventId, dayStart, dayEnd)
	if err != nil {
		return err
	}
	for _, orphan := range orphans {
		log.Infof("Removing orphaned recurring instance: %q at %s (replaced by new instance at %s)",
			orphan.Title, orphan.StartTime, newStart)
		if err := repo.DeleteEvent(ctx, orphan.ID); err != nil {
			return err
		}
	}
	return nil
}

// sweepOrphans deletes non-archived local events inside the sync window
// that the full snapshot did not mention. Candidacy uses the end-time
// lower bound (events stay visible until two hours past their end) and
// the start-time upper bound, mirroring the snapshot request window.
func (e *Engine) sweepOrphans(ctx context.Context, repo event.Repository, seen map[string]struct{}) (int, error) {
	now := e.clock.Now()
	candidates, err := repo.ListActiveBetween(ctx, now.Add(-pastWindow), now.Add(futureWindow))
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, candidate := range candidates {
		if _, ok := seen[candidate.GoogleEventID]; ok {
			continue
		}
		log.Infof("Removing orphaned event (deleted from Google): %q", candidate.Title)
		if err := repo.DeleteEvent(ctx, candidate.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (e *Engine) deleteByGoogleEventID(ctx context.Context, repo event.Repository, googleEventId string) (bool, error) {
	existing, err := repo.FindByGoogleEventID(ctx, googleEventId)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.IsArchived {
		return false, nil
	}
	if err := repo.DeleteEvent(ctx, existing.ID); err != nil {
		return false, err
	}
	return true, nil
}

// parseEventTime parses a Google Calendar start/end value. A dateTime is a
// zoned instant ("Z" meaning UTC); a bare date is an all-day value pinned
// to local midnight.
func parseEventTime(edt *gcal.EventDateTime) (time.Time, error) {
	if edt == nil {
		return time.Time{}, errors.New("missing event time")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid dateTime %q: %w", edt.DateTime, err)
		}
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", edt.Date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", edt.Date, err)
	}
	return t, nil
}
