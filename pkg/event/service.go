package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prepcal/prepcal/internal/utils"
	"github.com/prepcal/prepcal/pkg/checklist"
	log "github.com/sirupsen/logrus"
)

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrItemNotFound   = errors.New("item not found")
	ErrEventArchived  = errors.New("event is archived")
	ErrItemsUnchecked = errors.New("not all checklist items are checked")
)

// Overview is an event with its checklist, as shown in list views.
type Overview struct {
	Event
	Items              []Item
	HasUnpushedChanges bool
}

// Detail is the full event view including attendees and the confirmation
// audit trail.
type Detail struct {
	Event
	Items              []Item
	Attendees          []Attendee
	Confirmations      []Confirmation
	HasUnpushedChanges bool
}

// Upcoming groups the active events of the next two weeks into display
// buckets. "Today" keeps events visible until two hours past their end.
type Upcoming struct {
	Today    []Overview
	Tomorrow []Overview
	Later    []Overview
}

// ItemProgress reports the checklist state after toggling one item.
type ItemProgress struct {
	Item         Item
	CheckedCount int
	TotalCount   int
	AllChecked   bool
}

type Service struct {
	repo  Repository
	clock utils.Clock
}

func NewService(repo Repository, clock utils.Clock) *Service {
	return &Service{repo: repo, clock: clock}
}

// ListUpcoming returns the active events from two hours ago through two
// weeks ahead, bucketed by local calendar day.
func (s *Service) ListUpcoming(ctx context.Context) (*Upcoming, error) {
	now := s.clock.Now()
	twoHoursAgo := now.Add(-2 * time.Hour)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfTomorrow := startOfToday.AddDate(0, 0, 1)
	startOfDayAfter := startOfToday.AddDate(0, 0, 2)
	inTwoWeeks := now.AddDate(0, 0, 14)

	events, err := s.repo.ListActiveBetween(ctx, twoHoursAgo, inTwoWeeks)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	upcoming := &Upcoming{}
	for _, ev := range events {
		overview, err := s.overviewOf(ctx, ev)
		if err != nil {
			return nil, err
		}
		switch {
		case ev.StartTime.Before(startOfTomorrow):
			upcoming.Today = append(upcoming.Today, overview)
		case ev.StartTime.Before(startOfDayAfter):
			upcoming.Tomorrow = append(upcoming.Tomorrow, overview)
		default:
			upcoming.Later = append(upcoming.Later, overview)
		}
	}
	return upcoming, nil
}

func (s *Service) ListArchived(ctx context.Context) ([]Overview, error) {
	events, err := s.repo.ListArchived(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived events: %w", err)
	}

	overviews := make([]Overview, 0, len(events))
	for _, ev := range events {
		overview, err := s.overviewOf(ctx, ev)
		if err != nil {
			return nil, err
		}
		overviews = append(overviews, overview)
	}
	return overviews, nil
}

func (s *Service) overviewOf(ctx context.Context, ev Event) (Overview, error) {
	items, err := s.repo.ListItems(ctx, ev.ID)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to list items: %w", err)
	}
	return Overview{
		Event:              ev,
		Items:              items,
		HasUnpushedChanges: HasUnpushedChanges(ev, items),
	}, nil
}

func (s *Service) GetDetail(ctx context.Context, eventId uuid.UUID) (*Detail, error) {
	ev, err := s.repo.GetEvent(ctx, eventId)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if ev == nil {
		return nil, ErrEventNotFound
	}

	items, err := s.repo.ListItems(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	attendees, err := s.repo.ListAttendees(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendees: %w", err)
	}
	confirmations, err := s.repo.ListConfirmations(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmations: %w", err)
	}

	return &Detail{
		Event:              *ev,
		Items:              items,
		Attendees:          attendees,
		Confirmations:      confirmations,
		HasUnpushedChanges: HasUnpushedChanges(*ev, items),
	}, nil
}

// AddItem appends a manual checklist item to a non-archived event.
func (s *Service) AddItem(ctx context.Context, eventId uuid.UUID, name string) (Item, error) {
	ev, err := s.mutableEvent(ctx, eventId)
	if err != nil {
		return Item{}, err
	}

	item := Item{
		EventID: ev.ID,
		Name:    strings.TrimSpace(name),
		Source:  SourceManual,
	}
	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return Item{}, fmt.Errorf("failed to store item: %w", err)
	}
	return created, nil
}

func (s *Service) DeleteItem(ctx context.Context, eventId, itemId uuid.UUID) error {
	if _, err := s.mutableEvent(ctx, eventId); err != nil {
		return err
	}
	item, err := s.eventItem(ctx, eventId, itemId)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

func (s *Service) ToggleItem(ctx context.Context, eventId, itemId uuid.UUID) (*ItemProgress, error) {
	if _, err := s.mutableEvent(ctx, eventId); err != nil {
		return nil, err
	}
	item, err := s.eventItem(ctx, eventId, itemId)
	if err != nil {
		return nil, err
	}

	item.IsChecked = !item.IsChecked
	if err := s.repo.SetItemChecked(ctx, item.ID, item.IsChecked); err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}

	items, err := s.repo.ListItems(ctx, eventId)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	checkedCount := 0
	for _, i := range items {
		if i.IsChecked {
			checkedCount++
		}
	}
	return &ItemProgress{
		Item:         *item,
		CheckedCount: checkedCount,
		TotalCount:   len(items),
		AllChecked:   checkedCount == len(items),
	}, nil
}

// Confirm appends a confirmation record. Every item must be checked and the
// event must not be archived.
func (s *Service) Confirm(ctx context.Context, eventId uuid.UUID) (Confirmation, error) {
	ev, err := s.mutableEvent(ctx, eventId)
	if err != nil {
		return Confirmation{}, err
	}

	items, err := s.repo.ListItems(ctx, ev.ID)
	if err != nil {
		return Confirmation{}, fmt.Errorf("failed to list items: %w", err)
	}
	for _, item := range items {
		if !item.IsChecked {
			return Confirmation{}, ErrItemsUnchecked
		}
	}

	confirmation, err := s.repo.CreateConfirmation(ctx, Confirmation{
		EventID:     ev.ID,
		ConfirmedAt: s.clock.Now(),
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("failed to store confirmation: %w", err)
	}
	log.Infof("Checklist confirmed for event %q", ev.Title)
	return confirmation, nil
}

func (s *Service) Archive(ctx context.Context, eventId uuid.UUID) error {
	ev, err := s.repo.GetEvent(ctx, eventId)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}
	if ev == nil {
		return ErrEventNotFound
	}
	return s.repo.SetArchived(ctx, eventId, true)
}

// Unarchive is the only mutation allowed on an archived event.
func (s *Service) Unarchive(ctx context.Context, eventId uuid.UUID) error {
	ev, err := s.repo.GetEvent(ctx, eventId)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}
	if ev == nil {
		return ErrEventNotFound
	}
	return s.repo.SetArchived(ctx, eventId, false)
}

func (s *Service) mutableEvent(ctx context.Context, eventId uuid.UUID) (*Event, error) {
	ev, err := s.repo.GetEvent(ctx, eventId)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if ev == nil {
		return nil, ErrEventNotFound
	}
	if ev.IsArchived {
		return nil, ErrEventArchived
	}
	return ev, nil
}

func (s *Service) eventItem(ctx context.Context, eventId, itemId uuid.UUID) (*Item, error) {
	item, err := s.repo.GetItem(ctx, itemId)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if item == nil || item.EventID != eventId {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// HasUnpushedChanges reports whether the event's current item names differ
// from the names its stored description parses to. The stored description
// is the last state Google has seen, so a difference means a push is due.
// No remote call is involved.
func HasUnpushedChanges(ev Event, items []Item) bool {
	localNames := make(map[string]struct{}, len(items))
	for _, item := range items {
		localNames[item.Name] = struct{}{}
	}
	parsedNames := make(map[string]struct{})
	for _, name := range checklist.Extract(ev.Description) {
		parsedNames[name] = struct{}{}
	}
	if len(localNames) != len(parsedNames) {
		return true
	}
	for name := range localNames {
		if _, ok := parsedNames[name]; !ok {
			return true
		}
	}
	return false
}
