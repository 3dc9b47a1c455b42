package event

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepcal/prepcal/internal/utils"
)

func newTestService(t *testing.T) (*Service, *RepositoryImpl, *utils.MockClock) {
	t.Helper()
	repo := newTestRepo(t)
	clock := &utils.MockClock{FixedNow: baseTime}
	return NewService(repo, clock), repo, clock
}

func TestListUpcomingBuckets(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	// baseTime is 12:00 UTC, so local day boundaries are in UTC
	today := sampleEvent("g-today")
	today.StartTime = baseTime.Add(4 * time.Hour)
	today.EndTime = today.StartTime.Add(time.Hour)
	_, err := repo.CreateEvent(ctx, today)
	require.NoError(t, err)

	tomorrow := sampleEvent("g-tomorrow")
	tomorrow.StartTime = baseTime.Add(22 * time.Hour)
	tomorrow.EndTime = tomorrow.StartTime.Add(time.Hour)
	_, err = repo.CreateEvent(ctx, tomorrow)
	require.NoError(t, err)

	later := sampleEvent("g-later")
	later.StartTime = baseTime.AddDate(0, 0, 5)
	later.EndTime = later.StartTime.Add(time.Hour)
	_, err = repo.CreateEvent(ctx, later)
	require.NoError(t, err)

	// Ended more than two hours ago: not listed at all
	finished := sampleEvent("g-finished")
	finished.StartTime = baseTime.Add(-5 * time.Hour)
	finished.EndTime = baseTime.Add(-3 * time.Hour)
	_, err = repo.CreateEvent(ctx, finished)
	require.NoError(t, err)

	// Ended an hour ago: still on today's list
	justEnded := sampleEvent("g-just-ended")
	justEnded.StartTime = baseTime.Add(-2 * time.Hour)
	justEnded.EndTime = baseTime.Add(-time.Hour)
	_, err = repo.CreateEvent(ctx, justEnded)
	require.NoError(t, err)

	upcoming, err := service.ListUpcoming(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"g-just-ended", "g-today"}, overviewIds(upcoming.Today))
	assert.Equal(t, []string{"g-tomorrow"}, overviewIds(upcoming.Tomorrow))
	assert.Equal(t, []string{"g-later"}, overviewIds(upcoming.Later))
}

func TestListUpcomingReportsUnpushedChanges(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)
	_, err = repo.CreateItem(ctx, Item{EventID: ev.ID, Name: "Tent", Source: SourceParsed})
	require.NoError(t, err)
	_, err = repo.CreateItem(ctx, Item{EventID: ev.ID, Name: "Stove", Source: SourceManual})
	require.NoError(t, err)

	upcoming, err := service.ListUpcoming(ctx)
	require.NoError(t, err)
	require.Len(t, upcoming.Tomorrow, 1)
	assert.True(t, upcoming.Tomorrow[0].HasUnpushedChanges)
}

func TestGetDetail(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)
	_, err = repo.CreateItem(ctx, Item{EventID: ev.ID, Name: "Tent", Source: SourceParsed})
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceAttendees(ctx, ev.ID, []Attendee{{Email: "alice@example.com"}}))

	detail, err := service.GetDetail(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, detail.ID)
	assert.Len(t, detail.Items, 1)
	assert.Len(t, detail.Attendees, 1)
	assert.Empty(t, detail.Confirmations)
	assert.False(t, detail.HasUnpushedChanges)
}

func TestGetDetailNotFound(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.GetDetail(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestAddItem(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)

	item, err := service.AddItem(ctx, ev.ID, "  Sleeping bag  ")
	require.NoError(t, err)
	assert.Equal(t, "Sleeping bag", item.Name)
	assert.Equal(t, SourceManual, item.Source)
	assert.False(t, item.IsChecked)
}

func TestAddItemOnArchivedEvent(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	archived := sampleEvent("g-1")
	archived.IsArchived = true
	ev, err := repo.CreateEvent(ctx, archived)
	require.NoError(t, err)

	_, err = service.AddItem(ctx, ev.ID, "Tent")
	assert.ErrorIs(t, err, ErrEventArchived)
}

func TestToggleItem(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)
	first, err := repo.CreateItem(ctx, Item{EventID: ev.ID, Name: "Tent", Source: SourceParsed})
	require.NoError(t, err)
	_, err = repo.CreateItem(ctx, Item{EventID: ev.ID, Name: "Stove", Source: SourceParsed})
	require.NoError(t, err)

	progress, err := service.ToggleItem(ctx, ev.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, progress.Item.IsChecked)
	assert.Equal(t, 1, progress.CheckedCount)
	assert.Equal(t, 2, progress.TotalCount)
	assert.False(t, progress.AllChecked)

	progress, err = service.ToggleItem(ctx, ev.ID, first.ID)
	require.NoError(t, err)
	assert.False(t, progress.Item.IsChecked)
	assert.Equal(t, 0, progress.CheckedCount)
}

func TestToggleItemOfOtherEvent(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	first, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)
	second, err := repo.CreateEvent(ctx, sampleEvent("g-2"))
	require.NoError(t, err)
	item, err := repo.CreateItem(ctx, Item{EventID: second.ID, Name: "Tent", Source: SourceParsed})
	require.NoError(t, err)

	_, err = service.ToggleItem(ctx, first.ID, item.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestConfirmRequiresAllChecked(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)
	item, err := repo.CreateItem(ctx, Item{EventID: ev.ID, Name: "Tent", Source: SourceParsed})
	require.NoError(t, err)

	_, err = service.Confirm(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrItemsUnchecked)

	require.NoError(t, repo.SetItemChecked(ctx, item.ID, true))

	confirmation, err := service.Confirm(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, confirmation.ConfirmedAt.Equal(baseTime))

	has, err := repo.HasConfirmations(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestConfirmEmptyChecklist(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)

	// No items means nothing is unchecked
	_, err = service.Confirm(ctx, ev.ID)
	require.NoError(t, err)
}

func TestArchiveAndUnarchive(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, sampleEvent("g-1"))
	require.NoError(t, err)

	require.NoError(t, service.Archive(ctx, ev.ID))
	stored, err := repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsArchived)

	archived, err := service.ListArchived(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)

	require.NoError(t, service.Unarchive(ctx, ev.ID))
	stored, err = repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsArchived)
}

func TestHasUnpushedChanges(t *testing.T) {
	tests := []struct {
		name        string
		description string
		items       []Item
		expected    bool
	}{
		{
			name:        "in sync",
			description: "Items:\n- Tent\n- Stove\n",
			items:       []Item{{Name: "Tent"}, {Name: "Stove"}},
			expected:    false,
		},
		{
			name:        "manual item added",
			description: "Items:\n- Tent\n",
			items:       []Item{{Name: "Tent"}, {Name: "Map"}},
			expected:    true,
		},
		{
			name:        "item deleted locally",
			description: "Items:\n- Tent\n- Stove\n",
			items:       []Item{{Name: "Tent"}},
			expected:    true,
		},
		{
			name:        "no items anywhere",
			description: "Just some notes",
			items:       nil,
			expected:    false,
		},
		{
			name:        "checked state does not matter",
			description: "Items:\n- Tent\n",
			items:       []Item{{Name: "Tent", IsChecked: true}},
			expected:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{Description: tt.description}
			assert.Equal(t, tt.expected, HasUnpushedChanges(ev, tt.items))
		})
	}
}

func overviewIds(overviews []Overview) []string {
	ids := make([]string, 0, len(overviews))
	for _, o := range overviews {
		ids = append(ids, o.GoogleEventID)
	}
	return ids
}
