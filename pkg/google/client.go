// Package google implements the remote calendar gateway on top of the
// Google Calendar v3 API using a pre-authorized refresh token.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/prepcal/prepcal/internal/config"
)

// ErrSyncTokenExpired signals the API's "resource gone" response to an
// incremental listing: the stored sync token must be discarded and a full
// sync performed.
var ErrSyncTokenExpired = errors.New("sync token is no longer valid")

// requestTimeout bounds every single API call. The sync engine itself has
// no mid-page cancellation, so the timeout lives here at the gateway.
const requestTimeout = 30 * time.Second

type Client struct {
	cfg config.Google

	once    sync.Once
	service *gcal.Service
	initErr error
}

func NewClient(cfg config.Google) *Client {
	return &Client{cfg: cfg}
}

// HasCredentials reports whether a refresh token is configured. Without one
// no API call is ever attempted.
func (c *Client) HasCredentials() bool {
	return c.cfg.RefreshToken != ""
}

func (c *Client) calendarService() (*gcal.Service, error) {
	c.once.Do(func() {
		oauthConfig := &oauth2.Config{
			ClientID:     c.cfg.ClientId,
			ClientSecret: c.cfg.ClientSecret,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope},
		}
		tokenSource := oauthConfig.TokenSource(context.Background(), &oauth2.Token{
			RefreshToken: c.cfg.RefreshToken,
		})

		service, err := gcal.NewService(context.Background(), option.WithTokenSource(tokenSource))
		if err != nil {
			c.initErr = fmt.Errorf("unable to create Calendar client: %w", err)
			log.Error(c.initErr)
			return
		}
		c.service = service
	})
	return c.service, c.initErr
}

func (c *Client) ListIncremental(ctx context.Context, calendarId, syncToken string) (*gcal.Events, error) {
	service, err := c.calendarService()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	events, err := service.Events.List(calendarId).
		SyncToken(syncToken).
		SingleEvents(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, translateError("incremental events listing", err)
	}
	return events, nil
}

func (c *Client) ListWindow(ctx context.Context, calendarId string, timeMin, timeMax time.Time) (*gcal.Events, error) {
	service, err := c.calendarService()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	events, err := service.Events.List(calendarId).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, translateError("windowed events listing", err)
	}
	return events, nil
}

func (c *Client) ListPage(ctx context.Context, calendarId, pageToken string) (*gcal.Events, error) {
	service, err := c.calendarService()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	events, err := service.Events.List(calendarId).
		PageToken(pageToken).
		SingleEvents(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, translateError("events page listing", err)
	}
	return events, nil
}

func (c *Client) GetEvent(ctx context.Context, calendarId, eventId string) (*gcal.Event, error) {
	service, err := c.calendarService()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	event, err := service.Events.Get(calendarId, eventId).Context(ctx).Do()
	if err != nil {
		return nil, translateError("event retrieval", err)
	}
	return event, nil
}

func (c *Client) UpdateEvent(ctx context.Context, calendarId, eventId string, event *gcal.Event) (*gcal.Event, error) {
	service, err := c.calendarService()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	updated, err := service.Events.Update(calendarId, eventId, event).Context(ctx).Do()
	if err != nil {
		return nil, translateError("event update", err)
	}
	return updated, nil
}

func translateError(operation string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusGone {
		return fmt.Errorf("%s: %w", operation, ErrSyncTokenExpired)
	}
	wrapped := fmt.Errorf("%s failed: %w", operation, err)
	log.Error(wrapped)
	return wrapped
}
