package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/prepcal/prepcal/pkg/checklist"
	"github.com/prepcal/prepcal/pkg/event"
)

// PushStats counts the outcome of pushing one or more event descriptions
// back to the remote calendar.
type PushStats struct {
	Pushed  int `json:"pushed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// FanoutStats counts the outcome of propagating an item change across the
// future instances of a recurring series.
type FanoutStats struct {
	Added        int  `json:"added"`
	Deleted      int  `json:"deleted"`
	Skipped      int  `json:"skipped"`
	MasterPushed bool `json:"masterPushed"`
}

// PushItemsToCalendar rewrites the remote description of one event so its
// canonical Items section matches the local checklist, then records the
// pushed description locally. Events with no divergence are skipped.
func (e *Engine) PushItemsToCalendar(ctx context.Context, ev event.Event) (PushStats, error) {
	var stats PushStats
	if !e.gateway.HasCredentials() {
		return stats, ErrNoCredentials
	}

	items, err := e.repo.ListItems(ctx, ev.ID)
	if err != nil {
		return stats, err
	}
	if !event.HasUnpushedChanges(ev, items) {
		stats.Skipped++
		return stats, nil
	}

	description, err := e.pushDescription(ctx, ev.GoogleEventID, items)
	if err != nil {
		stats.Failed++
		return stats, err
	}
	if err := e.repo.UpdateDescription(ctx, ev.ID, description); err != nil {
		return stats, err
	}
	stats.Pushed++
	log.Infof("Pushed %d item(s) to calendar event %q", len(items), ev.Title)
	return stats, nil
}

// PushItemsToMasterEvent rewrites the recurring master's description so
// newly created occurrences inherit the current item list. The local store
// holds instances, not masters, so nothing is recorded locally.
func (e *Engine) PushItemsToMasterEvent(ctx context.Context, ev event.Event) error {
	if ev.RecurringEventID == "" {
		return fmt.Errorf("event %q is not part of a recurring series", ev.Title)
	}
	items, err := e.repo.ListItems(ctx, ev.ID)
	if err != nil {
		return err
	}
	if _, err := e.pushDescription(ctx, ev.RecurringEventID, items); err != nil {
		return err
	}
	log.Infof("Pushed %d item(s) to master event of series %s", len(items), ev.RecurringEventID)
	return nil
}

// pushDescription fetches the current remote description, re-renders its
// canonical Items section from the given item list and writes it back.
// Fetching fresh instead of reusing the local cache avoids clobbering
// remote description edits made since the last sync.
func (e *Engine) pushDescription(ctx context.Context, googleEventId string, items []event.Item) (string, error) {
	remote, err := e.gateway.GetEvent(ctx, e.calendarId, googleEventId)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	description := checklist.Render(names, remote.Description)

	remote.Description = description
	if description == "" {
		remote.ForceSendFields = append(remote.ForceSendFields, "Description")
	}
	if _, err := e.gateway.UpdateEvent(ctx, e.calendarId, googleEventId, remote); err != nil {
		return "", err
	}
	return description, nil
}

// PushItemToRecurringInstances adds an item to every future, non-archived,
// unconfirmed instance of the source event's series, and to the series
// master so later occurrences inherit it. Confirmed instances are exempt
// and not counted; Skipped counts instances already carrying the name
// (case-insensitive). Fanned-out items carry parsed provenance, the same as
// items reconciled from the description.
func (e *Engine) PushItemToRecurringInstances(ctx context.Context, source event.Event, itemName string) (FanoutStats, error) {
	var stats FanoutStats
	if !e.gateway.HasCredentials() {
		return stats, ErrNoCredentials
	}
	if source.RecurringEventID == "" {
		return stats, fmt.Errorf("event %q is not part of a recurring series", source.Title)
	}

	if err := e.PushItemsToMasterEvent(ctx, source); err != nil {
		log.Warnf("Could not push items to master event: %v", err)
	} else {
		stats.MasterPushed = true
	}

	now := e.clock.Now()
	instances, err := e.repo.FindSeriesInstances(ctx, source.RecurringEventID, source.ID, &now)
	if err != nil {
		return stats, err
	}

	for _, instance := range instances {
		confirmed, err := e.repo.HasConfirmations(ctx, instance.ID)
		if err != nil {
			return stats, err
		}
		if confirmed {
			continue
		}

		items, err := e.repo.ListItems(ctx, instance.ID)
		if err != nil {
			return stats, err
		}
		if containsName(items, itemName) {
			stats.Skipped++
			continue
		}

		err = e.repo.WithTransaction(ctx, func(repo event.Repository) error {
			if _, err := repo.CreateItem(ctx, event.Item{
				EventID: instance.ID,
				Name:    itemName,
				Source:  event.SourceParsed,
			}); err != nil {
				return err
			}
			return nil
		})
		if err != nil {
			return stats, err
		}
		stats.Added++
	}

	log.Infof("Fanned out item %q to %d instance(s) of series %s (skipped %d)",
		itemName, stats.Added, source.RecurringEventID, stats.Skipped)
	return stats, nil
}

// DeleteItemFromRecurringInstances removes an item by name from every
// future, non-archived, unconfirmed instance of the source event's series,
// and updates the series master. Matching is case-insensitive and removes
// one item per instance; confirmed instances are exempt and not counted,
// Skipped counts instances with no matching item.
func (e *Engine) DeleteItemFromRecurringInstances(ctx context.Context, source event.Event, itemName string) (FanoutStats, error) {
	var stats FanoutStats
	if !e.gateway.HasCredentials() {
		return stats, ErrNoCredentials
	}
	if source.RecurringEventID == "" {
		return stats, fmt.Errorf("event %q is not part of a recurring series", source.Title)
	}

	if err := e.PushItemsToMasterEvent(ctx, source); err != nil {
		log.Warnf("Could not push items to master event: %v", err)
	} else {
		stats.MasterPushed = true
	}

	now := e.clock.Now()
	instances, err := e.repo.FindSeriesInstances(ctx, source.RecurringEventID, source.ID, &now)
	if err != nil {
		return stats, err
	}

	for _, instance := range instances {
		confirmed, err := e.repo.HasConfirmations(ctx, instance.ID)
		if err != nil {
			return stats, err
		}
		if confirmed {
			continue
		}

		items, err := e.repo.ListItems(ctx, instance.ID)
		if err != nil {
			return stats, err
		}
		var matched *event.Item
		for i := range items {
			if strings.EqualFold(items[i].Name, itemName) {
				matched = &items[i]
				break
			}
		}
		if matched == nil {
			stats.Skipped++
			continue
		}

		err = e.repo.WithTransaction(ctx, func(repo event.Repository) error {
			return repo.DeleteItem(ctx, matched.ID)
		})
		if err != nil {
			return stats, err
		}
		stats.Deleted++
	}

	log.Infof("Removed item %q from %d instance(s) of series %s (skipped %d)",
		itemName, stats.Deleted, source.RecurringEventID, stats.Skipped)
	return stats, nil
}

// PushRecurringInstances pushes the source event's description and then
// every other non-archived instance of its series that has diverged from
// its pushed description. Per-instance failures are counted, not fatal, so
// one broken instance does not strand the rest of the series.
func (e *Engine) PushRecurringInstances(ctx context.Context, source event.Event) (PushStats, error) {
	var stats PushStats
	if !e.gateway.HasCredentials() {
		return stats, ErrNoCredentials
	}

	sourceStats, err := e.PushItemsToCalendar(ctx, source)
	stats.Pushed += sourceStats.Pushed
	stats.Skipped += sourceStats.Skipped
	stats.Failed += sourceStats.Failed
	if err != nil {
		log.Warnf("Could not push source event %q: %v", source.Title, err)
	}

	if source.RecurringEventID == "" {
		return stats, nil
	}

	var startAfter *time.Time
	instances, err := e.repo.FindSeriesInstances(ctx, source.RecurringEventID, source.ID, startAfter)
	if err != nil {
		return stats, err
	}
	for _, instance := range instances {
		instStats, err := e.PushItemsToCalendar(ctx, instance)
		stats.Pushed += instStats.Pushed
		stats.Skipped += instStats.Skipped
		stats.Failed += instStats.Failed
		if err != nil {
			log.Warnf("Could not push series instance %q: %v", instance.Title, err)
		}
	}
	return stats, nil
}

func containsName(items []event.Item, name string) bool {
	for _, item := range items {
		if strings.EqualFold(item.Name, name) {
			return true
		}
	}
	return false
}
