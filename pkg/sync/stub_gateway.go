package sync

import (
	"context"
	"errors"
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// StubGateway is a scripted Gateway for tests. Pages are served in order
// regardless of which list call asks for them, so a test can script a
// multi-page pull without modelling page tokens.
type StubGateway struct {
	Credentials    bool
	Pages          []*gcal.Events
	IncrementalErr error
	WindowErr      error

	RemoteEvents map[string]*gcal.Event
	Updated      map[string]*gcal.Event

	IncrementalCalls int
	WindowCalls      int
	PageCalls        int

	pageIndex int
}

func NewStubGateway() *StubGateway {
	return &StubGateway{
		Credentials:  true,
		RemoteEvents: map[string]*gcal.Event{},
		Updated:      map[string]*gcal.Event{},
	}
}

func (s *StubGateway) HasCredentials() bool {
	return s.Credentials
}

func (s *StubGateway) ListIncremental(ctx context.Context, calendarId, syncToken string) (*gcal.Events, error) {
	s.IncrementalCalls++
	if s.IncrementalErr != nil {
		err := s.IncrementalErr
		s.IncrementalErr = nil
		return nil, err
	}
	return s.nextPage()
}

func (s *StubGateway) ListWindow(ctx context.Context, calendarId string, timeMin, timeMax time.Time) (*gcal.Events, error) {
	s.WindowCalls++
	if s.WindowErr != nil {
		return nil, s.WindowErr
	}
	return s.nextPage()
}

func (s *StubGateway) ListPage(ctx context.Context, calendarId, pageToken string) (*gcal.Events, error) {
	s.PageCalls++
	return s.nextPage()
}

func (s *StubGateway) GetEvent(ctx context.Context, calendarId, eventId string) (*gcal.Event, error) {
	ev, ok := s.RemoteEvents[eventId]
	if !ok {
		return nil, errors.New("event with given id not found")
	}
	copied := *ev
	return &copied, nil
}

func (s *StubGateway) UpdateEvent(ctx context.Context, calendarId, eventId string, ev *gcal.Event) (*gcal.Event, error) {
	if _, ok := s.RemoteEvents[eventId]; !ok {
		return nil, errors.New("event with given id not found")
	}
	copied := *ev
	s.RemoteEvents[eventId] = &copied
	s.Updated[eventId] = &copied
	return &copied, nil
}

func (s *StubGateway) nextPage() (*gcal.Events, error) {
	if s.pageIndex >= len(s.Pages) {
		return &gcal.Events{}, nil
	}
	page := s.Pages[s.pageIndex]
	s.pageIndex++
	return page, nil
}
