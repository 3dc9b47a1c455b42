package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error

	CreateEvent(ctx context.Context, event Event) (Event, error)
	UpdateEvent(ctx context.Context, event Event) error
	UpdateDescription(ctx context.Context, eventId uuid.UUID, description string) error
	SetArchived(ctx context.Context, eventId uuid.UUID, archived bool) error
	DeleteEvent(ctx context.Context, eventId uuid.UUID) error
	GetEvent(ctx context.Context, eventId uuid.UUID) (*Event, error)
	FindByGoogleEventID(ctx context.Context, googleEventId string) (*Event, error)
	ListActiveBetween(ctx context.Context, endAfter, startBefore time.Time) ([]Event, error)
	ListArchived(ctx context.Context) ([]Event, error)
	FindSeriesSiblingsOnDay(ctx context.Context, recurringEventId, excludeGoogleEventId string, dayStart, dayEnd time.Time) ([]Event, error)
	FindSeriesInstances(ctx context.Context, recurringEventId string, excludeEventId uuid.UUID, startAfter *time.Time) ([]Event, error)

	ListItems(ctx context.Context, eventId uuid.UUID) ([]Item, error)
	GetItem(ctx context.Context, itemId uuid.UUID) (*Item, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	DeleteItem(ctx context.Context, itemId uuid.UUID) error
	SetItemChecked(ctx context.Context, itemId uuid.UUID, checked bool) error
	UncheckAllItems(ctx context.Context, eventId uuid.UUID) error

	ListAttendees(ctx context.Context, eventId uuid.UUID) ([]Attendee, error)
	ReplaceAttendees(ctx context.Context, eventId uuid.UUID, attendees []Attendee) error

	CreateConfirmation(ctx context.Context, confirmation Confirmation) (Confirmation, error)
	ListConfirmations(ctx context.Context, eventId uuid.UUID) ([]Confirmation, error)
	HasConfirmations(ctx context.Context, eventId uuid.UUID) (bool, error)
}

type RepositoryImpl struct {
	db *sql.DB
	tx *sql.Tx
}

func NewRepository(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db, tx: nil}
}

// getQueryer returns the appropriate database interface for queries (either tx or db)
func (r *RepositoryImpl) getQueryer() interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *RepositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// The Rollback will be a no-op if the transaction was already committed
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	txRepo := &RepositoryImpl{db: r.db, tx: tx}

	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

const eventColumns = `id, google_event_id, recurring_event_id, title, description,
              start_time, end_time, last_synced, is_archived`

func (r *RepositoryImpl) CreateEvent(ctx context.Context, event Event) (Event, error) {
	query := `INSERT INTO event (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	_, err := r.getQueryer().ExecContext(ctx, query,
		event.ID.String(), event.GoogleEventID, event.RecurringEventID, event.Title, event.Description,
		event.StartTime.UnixMilli(), event.EndTime.UnixMilli(), event.LastSynced.UnixMilli(), event.IsArchived)
	if err != nil {
		err := fmt.Errorf("could not store event: %w", err)
		log.Error(err)
		return Event{}, err
	}

	return event, nil
}

func (r *RepositoryImpl) UpdateEvent(ctx context.Context, event Event) error {
	query := `UPDATE event
              SET google_event_id = ?, recurring_event_id = ?, title = ?, description = ?,
                  start_time = ?, end_time = ?, last_synced = ?, is_archived = ?
              WHERE id = ?`

	_, err := r.getQueryer().ExecContext(ctx, query,
		event.GoogleEventID, event.RecurringEventID, event.Title, event.Description,
		event.StartTime.UnixMilli(), event.EndTime.UnixMilli(), event.LastSynced.UnixMilli(), event.IsArchived,
		event.ID.String())
	if err != nil {
		err := fmt.Errorf("could not update event: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) UpdateDescription(ctx context.Context, eventId uuid.UUID, description string) error {
	query := "UPDATE event SET description = ? WHERE id = ?"
	_, err := r.getQueryer().ExecContext(ctx, query, description, eventId.String())
	if err != nil {
		err := fmt.Errorf("could not update event description: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) SetArchived(ctx context.Context, eventId uuid.UUID, archived bool) error {
	query := "UPDATE event SET is_archived = ? WHERE id = ?"
	_, err := r.getQueryer().ExecContext(ctx, query, archived, eventId.String())
	if err != nil {
		err := fmt.Errorf("could not update archived flag: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

// DeleteEvent removes an event; items, attendees and confirmations go with
// it through ON DELETE CASCADE.
func (r *RepositoryImpl) DeleteEvent(ctx context.Context, eventId uuid.UUID) error {
	query := "DELETE FROM event WHERE id = ?"
	_, err := r.getQueryer().ExecContext(ctx, query, eventId.String())
	if err != nil {
		err := fmt.Errorf("could not delete event: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) GetEvent(ctx context.Context, eventId uuid.UUID) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM event WHERE id = ?`
	return r.queryOneEvent(ctx, query, eventId.String())
}

func (r *RepositoryImpl) FindByGoogleEventID(ctx context.Context, googleEventId string) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM event WHERE google_event_id = ?`
	return r.queryOneEvent(ctx, query, googleEventId)
}

func (r *RepositoryImpl) queryOneEvent(ctx context.Context, query string, args ...interface{}) (*Event, error) {
	row := r.getQueryer().QueryRowContext(ctx, query, args...)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		err := fmt.Errorf("could not read event: %w", err)
		log.Error(err)
		return nil, err
	}
	return event, nil
}

// ListActiveBetween returns non-archived events with end_time >= endAfter
// and start_time < startBefore, ordered by start time. The asymmetric
// window (end-time lower bound, start-time upper bound) matches both the
// orphan-sweep candidacy rule and the upcoming-events view.
func (r *RepositoryImpl) ListActiveBetween(ctx context.Context, endAfter, startBefore time.Time) ([]Event, error) {
	query := `SELECT ` + eventColumns + `
              FROM event
              WHERE is_archived = 0 AND end_time >= ? AND start_time < ?
              ORDER BY start_time`

	return r.queryEvents(ctx, query, endAfter.UnixMilli(), startBefore.UnixMilli())
}

func (r *RepositoryImpl) ListArchived(ctx context.Context) ([]Event, error) {
	query := `SELECT ` + eventColumns + `
              FROM event
              WHERE is_archived = 1
              ORDER BY start_time DESC`

	return r.queryEvents(ctx, query)
}

// FindSeriesSiblingsOnDay finds non-archived instances of a recurring
// series that start on the given calendar day but carry a different Google
// event id. These are stale replaced instances left behind by full syncs,
// which never report cancellations.
func (r *RepositoryImpl) FindSeriesSiblingsOnDay(ctx context.Context, recurringEventId, excludeGoogleEventId string, dayStart, dayEnd time.Time) ([]Event, error) {
	query := `SELECT ` + eventColumns + `
              FROM event
              WHERE recurring_event_id = ?
                AND google_event_id != ?
                AND start_time >= ?
                AND start_time < ?
                AND is_archived = 0`

	return r.queryEvents(ctx, query, recurringEventId, excludeGoogleEventId, dayStart.UnixMilli(), dayEnd.UnixMilli())
}

// FindSeriesInstances returns the non-archived instances of a recurring
// series other than excludeEventId. A non-nil startAfter restricts the
// result to instances starting strictly after that instant.
func (r *RepositoryImpl) FindSeriesInstances(ctx context.Context, recurringEventId string, excludeEventId uuid.UUID, startAfter *time.Time) ([]Event, error) {
	query := `SELECT ` + eventColumns + `
              FROM event
              WHERE recurring_event_id = ?
                AND id != ?
                AND is_archived = 0`
	args := []interface{}{recurringEventId, excludeEventId.String()}
	if startAfter != nil {
		query += " AND start_time > ?"
		args = append(args, startAfter.UnixMilli())
	}
	query += " ORDER BY start_time"

	return r.queryEvents(ctx, query, args...)
}

func (r *RepositoryImpl) queryEvents(ctx context.Context, query string, args ...interface{}) ([]Event, error) {
	rows, err := r.getQueryer().QueryContext(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not query events: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, 10)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			err := fmt.Errorf("could not scan event row: %w", err)
			log.Error(err)
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var event Event
	var id string
	var startMillis, endMillis, syncedMillis int64
	err := row.Scan(&id, &event.GoogleEventID, &event.RecurringEventID, &event.Title, &event.Description,
		&startMillis, &endMillis, &syncedMillis, &event.IsArchived)
	if err != nil {
		return nil, err
	}
	event.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid event id %q: %w", id, err)
	}
	event.StartTime = time.UnixMilli(startMillis)
	event.EndTime = time.UnixMilli(endMillis)
	event.LastSynced = time.UnixMilli(syncedMillis)
	return &event, nil
}

func (r *RepositoryImpl) ListItems(ctx context.Context, eventId uuid.UUID) ([]Item, error) {
	query := `SELECT id, event_id, name, is_checked, source FROM item WHERE event_id = ? ORDER BY rowid`

	rows, err := r.getQueryer().QueryContext(ctx, query, eventId.String())
	if err != nil {
		err := fmt.Errorf("could not query items: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	items := make([]Item, 0, 10)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			err := fmt.Errorf("could not scan item row: %w", err)
			log.Error(err)
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *RepositoryImpl) GetItem(ctx context.Context, itemId uuid.UUID) (*Item, error) {
	query := `SELECT id, event_id, name, is_checked, source FROM item WHERE id = ?`

	row := r.getQueryer().QueryRowContext(ctx, query, itemId.String())
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		err := fmt.Errorf("could not read item: %w", err)
		log.Error(err)
		return nil, err
	}
	return item, nil
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var id, eventId string
	if err := row.Scan(&id, &eventId, &item.Name, &item.IsChecked, &item.Source); err != nil {
		return nil, err
	}
	var err error
	if item.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid item id %q: %w", id, err)
	}
	if item.EventID, err = uuid.Parse(eventId); err != nil {
		return nil, fmt.Errorf("invalid item event id %q: %w", eventId, err)
	}
	return &item, nil
}

func (r *RepositoryImpl) CreateItem(ctx context.Context, item Item) (Item, error) {
	query := "INSERT INTO item (id, event_id, name, is_checked, source) VALUES (?, ?, ?, ?, ?)"

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Source == "" {
		item.Source = SourceParsed
	}
	_, err := r.getQueryer().ExecContext(ctx, query,
		item.ID.String(), item.EventID.String(), item.Name, item.IsChecked, item.Source)
	if err != nil {
		err := fmt.Errorf("could not store item: %w", err)
		log.Error(err)
		return Item{}, err
	}
	return item, nil
}

func (r *RepositoryImpl) DeleteItem(ctx context.Context, itemId uuid.UUID) error {
	query := "DELETE FROM item WHERE id = ?"
	_, err := r.getQueryer().ExecContext(ctx, query, itemId.String())
	if err != nil {
		err := fmt.Errorf("could not delete item: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) SetItemChecked(ctx context.Context, itemId uuid.UUID, checked bool) error {
	query := "UPDATE item SET is_checked = ? WHERE id = ?"
	_, err := r.getQueryer().ExecContext(ctx, query, checked, itemId.String())
	if err != nil {
		err := fmt.Errorf("could not update item checked state: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) UncheckAllItems(ctx context.Context, eventId uuid.UUID) error {
	query := "UPDATE item SET is_checked = 0 WHERE event_id = ?"
	_, err := r.getQueryer().ExecContext(ctx, query, eventId.String())
	if err != nil {
		err := fmt.Errorf("could not reset item checked states: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) ListAttendees(ctx context.Context, eventId uuid.UUID) ([]Attendee, error) {
	query := `SELECT id, event_id, email, display_name, response_status FROM attendee WHERE event_id = ? ORDER BY rowid`

	rows, err := r.getQueryer().QueryContext(ctx, query, eventId.String())
	if err != nil {
		err := fmt.Errorf("could not query attendees: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	attendees := make([]Attendee, 0, 10)
	for rows.Next() {
		var attendee Attendee
		var id, evId string
		if err := rows.Scan(&id, &evId, &attendee.Email, &attendee.DisplayName, &attendee.ResponseStatus); err != nil {
			err := fmt.Errorf("could not scan attendee row: %w", err)
			log.Error(err)
			return nil, err
		}
		if attendee.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid attendee id %q: %w", id, err)
		}
		if attendee.EventID, err = uuid.Parse(evId); err != nil {
			return nil, fmt.Errorf("invalid attendee event id %q: %w", evId, err)
		}
		attendees = append(attendees, attendee)
	}
	return attendees, rows.Err()
}

// ReplaceAttendees deletes every attendee row for the event and inserts the
// given set. There is no local attendee state to preserve.
func (r *RepositoryImpl) ReplaceAttendees(ctx context.Context, eventId uuid.UUID, attendees []Attendee) error {
	_, err := r.getQueryer().ExecContext(ctx, "DELETE FROM attendee WHERE event_id = ?", eventId.String())
	if err != nil {
		err := fmt.Errorf("could not delete attendees: %w", err)
		log.Error(err)
		return err
	}

	query := "INSERT INTO attendee (id, event_id, email, display_name, response_status) VALUES (?, ?, ?, ?, ?)"
	for _, attendee := range attendees {
		if attendee.ID == uuid.Nil {
			attendee.ID = uuid.New()
		}
		if attendee.ResponseStatus == "" {
			attendee.ResponseStatus = "needsAction"
		}
		_, err := r.getQueryer().ExecContext(ctx, query,
			attendee.ID.String(), eventId.String(), attendee.Email, attendee.DisplayName, attendee.ResponseStatus)
		if err != nil {
			err := fmt.Errorf("could not store attendee: %w", err)
			log.Error(err)
			return err
		}
	}
	return nil
}

func (r *RepositoryImpl) CreateConfirmation(ctx context.Context, confirmation Confirmation) (Confirmation, error) {
	query := "INSERT INTO checklist_confirmation (id, event_id, confirmed_at, confirmed_by) VALUES (?, ?, ?, ?)"

	if confirmation.ID == uuid.Nil {
		confirmation.ID = uuid.New()
	}
	if confirmation.ConfirmedBy == 0 {
		confirmation.ConfirmedBy = 1
	}
	_, err := r.getQueryer().ExecContext(ctx, query,
		confirmation.ID.String(), confirmation.EventID.String(), confirmation.ConfirmedAt.UnixMilli(), confirmation.ConfirmedBy)
	if err != nil {
		err := fmt.Errorf("could not store confirmation: %w", err)
		log.Error(err)
		return Confirmation{}, err
	}
	return confirmation, nil
}

func (r *RepositoryImpl) ListConfirmations(ctx context.Context, eventId uuid.UUID) ([]Confirmation, error) {
	query := `SELECT id, event_id, confirmed_at, confirmed_by FROM checklist_confirmation WHERE event_id = ? ORDER BY confirmed_at`

	rows, err := r.getQueryer().QueryContext(ctx, query, eventId.String())
	if err != nil {
		err := fmt.Errorf("could not query confirmations: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	confirmations := make([]Confirmation, 0, 4)
	for rows.Next() {
		var confirmation Confirmation
		var id, evId string
		var confirmedMillis int64
		if err := rows.Scan(&id, &evId, &confirmedMillis, &confirmation.ConfirmedBy); err != nil {
			err := fmt.Errorf("could not scan confirmation row: %w", err)
			log.Error(err)
			return nil, err
		}
		if confirmation.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid confirmation id %q: %w", id, err)
		}
		if confirmation.EventID, err = uuid.Parse(evId); err != nil {
			return nil, fmt.Errorf("invalid confirmation event id %q: %w", evId, err)
		}
		confirmation.ConfirmedAt = time.UnixMilli(confirmedMillis)
		confirmations = append(confirmations, confirmation)
	}
	return confirmations, rows.Err()
}

func (r *RepositoryImpl) HasConfirmations(ctx context.Context, eventId uuid.UUID) (bool, error) {
	query := "SELECT COUNT(1) FROM checklist_confirmation WHERE event_id = ?"

	var count int
	if err := r.getQueryer().QueryRowContext(ctx, query, eventId.String()).Scan(&count); err != nil {
		err := fmt.Errorf("could not count confirmations: %w", err)
		log.Error(err)
		return false, err
	}
	return count > 0, nil
}
