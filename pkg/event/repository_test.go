package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepcal/prepcal/internal/test_utils"
)

var baseTime = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *RepositoryImpl {
	t.Helper()
	db := test_utils.SetupTestDB(t)
	return NewRepository(db)
}

func sampleEvent(googleEventId string) Event {
	return Event{
		GoogleEventID: googleEventId,
		Title:         "Camping trip",
		Description:   "Items:\n- Tent\n",
		StartTime:     baseTime.Add(24 * time.Hour),
		EndTime:       baseTime.Add(26 * time.Hour),
		LastSynced:    baseTime,
	}
}

func TestCreateAndGetEvent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	stored, err := repo.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Camping trip", stored.Title)
	assert.Equal(t, "g-1", stored.GoogleEventID)
	assert.True(t, stored.StartTime.Equal(created.StartTime))
	assert.False(t, stored.IsArchived)
}

func TestGetEventNotFound(t *testing.T) {
	repo := newTestRepo(t)

	stored, err := repo.GetEvent(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestFindByGoogleEventID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)

	found, err := repo.FindByGoogleEventID(ctx, "g-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	missing, err := repo.FindByGoogleEventID(ctx, "g-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateEvent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)

	created.Title = "Renamed"
	created.StartTime = created.StartTime.Add(time.Hour)
	require.NoError(t, repo.UpdateEvent(ctx, created))

	stored, err := repo.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)
	assert.True(t, stored.StartTime.Equal(created.StartTime))
}

func TestUpdateDescription(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateDescription(ctx, created.ID, "Items:\n- Stove\n"))

	stored, err := repo.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Items:\n- Stove\n", stored.Description)
}

func TestDeleteEventCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)
	item, err := repo.CreateItem(ctx, Item{EventID: created.ID, Name: "Tent", Source: SourceParsed})
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceAttendees(ctx, created.ID, []Attendee{{Email: "a@example.com"}}))
	_, err = repo.CreateConfirmation(ctx, Confirmation{EventID: created.ID, ConfirmedAt: baseTime})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteEvent(ctx, created.ID))

	stored, err := repo.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	orphanItem, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, orphanItem)

	attendees, err := repo.ListAttendees(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, attendees)

	confirmations, err := repo.ListConfirmations(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, confirmations)
}

func TestListActiveBetween(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	inWindow := sampleEvent("g-1")
	_, err := repo.CreateEvent(ctx, inWindow)
	require.NoError(t, err)

	past := sampleEvent("g-2")
	past.StartTime = baseTime.Add(-48 * time.Hour)
	past.EndTime = baseTime.Add(-47 * time.Hour)
	_, err = repo.CreateEvent(ctx, past)
	require.NoError(t, err)

	farFuture := sampleEvent("g-3")
	farFuture.StartTime = baseTime.AddDate(0, 2, 0)
	farFuture.EndTime = farFuture.StartTime.Add(time.Hour)
	_, err = repo.CreateEvent(ctx, farFuture)
	require.NoError(t, err)

	archived := sampleEvent("g-4")
	archived.IsArchived = true
	_, err = repo.CreateEvent(ctx, archived)
	require.NoError(t, err)

	events, err := repo.ListActiveBetween(ctx, baseTime.Add(-2*time.Hour), baseTime.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "g-1", events[0].GoogleEventID)
}

func TestListActiveBetweenOrdersByStartTime(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	later := sampleEvent("g-later")
	later.StartTime = baseTime.Add(48 * time.Hour)
	later.EndTime = later.StartTime.Add(time.Hour)
	_, err := repo.CreateEvent(ctx, later)
	require.NoError(t, err)

	sooner := sampleEvent("g-sooner")
	_, err = repo.CreateEvent(ctx, sooner)
	require.NoError(t, err)

	events, err := repo.ListActiveBetween(ctx, baseTime, baseTime.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "g-sooner", events[0].GoogleEventID)
	assert.Equal(t, "g-later", events[1].GoogleEventID)
}

func TestSetArchivedAndListArchived(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)

	require.NoError(t, repo.SetArchived(ctx, created.ID, true))

	archived, err := repo.ListArchived(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, created.ID, archived[0].ID)

	require.NoError(t, repo.SetArchived(ctx, created.ID, false))
	archived, err = repo.ListArchived(ctx)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestFindSeriesSiblingsOnDay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	dayStart := time.Date(2025, 5, 11, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	sameDay := sampleEvent("g-old")
	sameDay.RecurringEventID = "series-1"
	sameDay.StartTime = dayStart.Add(9 * time.Hour)
	sameDay.EndTime = sameDay.StartTime.Add(time.Hour)
	stale, err := repo.CreateEvent(ctx, sameDay)
	require.NoError(t, err)

	otherDay := sampleEvent("g-next-week")
	otherDay.RecurringEventID = "series-1"
	otherDay.StartTime = dayStart.AddDate(0, 0, 7)
	otherDay.EndTime = otherDay.StartTime.Add(time.Hour)
	_, err = repo.CreateEvent(ctx, otherDay)
	require.NoError(t, err)

	otherSeries := sampleEvent("g-other")
	otherSeries.RecurringEventID = "series-2"
	otherSeries.StartTime = dayStart.Add(10 * time.Hour)
	otherSeries.EndTime = otherSeries.StartTime.Add(time.Hour)
	_, err = repo.CreateEvent(ctx, otherSeries)
	require.NoError(t, err)

	archivedSibling := sampleEvent("g-archived")
	archivedSibling.RecurringEventID = "series-1"
	archivedSibling.StartTime = dayStart.Add(11 * time.Hour)
	archivedSibling.EndTime = archivedSibling.StartTime.Add(time.Hour)
	archivedSibling.IsArchived = true
	_, err = repo.CreateEvent(ctx, archivedSibling)
	require.NoError(t, err)

	siblings, err := repo.FindSeriesSiblingsOnDay(ctx, "series-1", "g-new", dayStart, dayEnd)
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, stale.ID, siblings[0].ID)

	// The replacement itself is excluded by google event id
	siblings, err = repo.FindSeriesSiblingsOnDay(ctx, "series-1", "g-old", dayStart, dayEnd)
	require.NoError(t, err)
	assert.Empty(t, siblings)
}

func TestFindSeriesInstances(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	source := sampleEvent("g-source")
	source.RecurringEventID = "series-1"
	sourceEvent, err := repo.CreateEvent(ctx, source)
	require.NoError(t, err)

	future := sampleEvent("g-future")
	future.RecurringEventID = "series-1"
	future.StartTime = baseTime.AddDate(0, 0, 7)
	future.EndTime = future.StartTime.Add(time.Hour)
	futureEvent, err := repo.CreateEvent(ctx, future)
	require.NoError(t, err)

	past := sampleEvent("g-past")
	past.RecurringEventID = "series-1"
	past.StartTime = baseTime.AddDate(0, 0, -7)
	past.EndTime = past.StartTime.Add(time.Hour)
	pastEvent, err := repo.CreateEvent(ctx, past)
	require.NoError(t, err)

	archived := sampleEvent("g-archived")
	archived.RecurringEventID = "series-1"
	archived.StartTime = baseTime.AddDate(0, 0, 14)
	archived.EndTime = archived.StartTime.Add(time.Hour)
	archived.IsArchived = true
	_, err = repo.CreateEvent(ctx, archived)
	require.NoError(t, err)

	// Without a time bound: every non-archived sibling
	all, err := repo.FindSeriesInstances(ctx, "series-1", sourceEvent.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// With a time bound: future siblings only
	onlyFuture, err := repo.FindSeriesInstances(ctx, "series-1", sourceEvent.ID, &baseTime)
	require.NoError(t, err)
	require.Len(t, onlyFuture, 1)
	assert.Equal(t, futureEvent.ID, onlyFuture[0].ID)
	assert.NotEqual(t, pastEvent.ID, onlyFuture[0].ID)
}

func TestItemLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)

	item, err := repo.CreateItem(ctx, Item{EventID: ev.ID, Name: "Tent", Source: SourceParsed})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, item.ID)
	assert.False(t, item.IsChecked)

	require.NoError(t, repo.SetItemChecked(ctx, item.ID, true))
	stored, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.IsChecked)

	require.NoError(t, repo.DeleteItem(ctx, item.ID))
	gone, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestUncheckAllItems(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)
	first, err := repo.CreateItem(ctx, Item{EventID: ev.ID, Name: "Tent", Source: SourceParsed})
	require.NoError(t, err)
	second, err := repo.CreateItem(ctx, Item{EventID: ev.ID, Name: "Stove", Source: SourceManual})
	require.NoError(t, err)
	require.NoError(t, repo.SetItemChecked(ctx, first.ID, true))
	require.NoError(t, repo.SetItemChecked(ctx, second.ID, true))

	require.NoError(t, repo.UncheckAllItems(ctx, ev.ID))

	items, err := repo.ListItems(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.False(t, item.IsChecked)
	}
}

func TestReplaceAttendees(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)

	require.NoError(t, repo.ReplaceAttendees(ctx, ev.ID, []Attendee{
		{Email: "alice@example.com", DisplayName: "Alice", ResponseStatus: "accepted"},
	}))
	require.NoError(t, repo.ReplaceAttendees(ctx, ev.ID, []Attendee{
		{Email: "bob@example.com", ResponseStatus: "needsAction"},
	}))

	attendees, err := repo.ListAttendees(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, attendees, 1)
	assert.Equal(t, "bob@example.com", attendees[0].Email)
}

func TestConfirmations(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)

	has, err := repo.HasConfirmations(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, has)

	first, err := repo.CreateConfirmation(ctx, Confirmation{EventID: ev.ID, ConfirmedAt: baseTime})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)

	_, err = repo.CreateConfirmation(ctx, Confirmation{EventID: ev.ID, ConfirmedAt: baseTime.Add(time.Hour)})
	require.NoError(t, err)

	has, err = repo.HasConfirmations(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, has)

	confirmations, err := repo.ListConfirmations(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, confirmations, 2)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	expected := errors.New("boom")
	err := repo.WithTransaction(ctx, func(txRepo Repository) error {
		if _, err := txRepo.CreateEvent(ctx, sampleEvent("g-1")); err != nil {
			return err
		}
		return expected
	})
	assert.ErrorIs(t, err, expected)

	stored, err := repo.FindByGoogleEventID(ctx, "g-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestWithTransactionCommits(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.WithTransaction(ctx, func(txRepo Repository) error {
		_, err := txRepo.CreateEvent(ctx, sampleEvent("g-1"))
		return err
	})
	require.NoError(t, err)

	stored, err := repo.FindByGoogleEventID(ctx, "g-1")
	require.NoError(t, err)
	assert.NotNil(t, stored)
}
