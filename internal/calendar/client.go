// Package calendar is a Google Calendar API client authenticated with
// a service account key. It covers event CRUD over a time window plus
// free/busy lookups for scheduling.
package calendar

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/eduplay1216-alt/myjarvis/internal/logging"
)

const (
	baseURL     = "https://www.googleapis.com/calendar/v3"
	tokenURL    = "https://oauth2.googleapis.com/token"
	tokenExpiry = 55 * time.Minute // Refresh before 1 hour expiry
)

// Service is the calendar surface the assistant depends on. The real
// client implements it; tests substitute a fake.
type Service interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, ev Event) (*Event, error)
	UpdateEvent(ctx context.Context, ev Event) (*Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
	FreeBusy(ctx context.Context, from, to time.Time) ([]BusyPeriod, error)
}

// Event is a calendar event in the shape the rest of the application
// uses. AllDay events carry date-only start/end.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Status      string    `json:"status,omitempty"`
}

// BusyPeriod is one occupied interval from a free/busy query.
type BusyPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Client talks to the Google Calendar API using service account auth.
type Client struct {
	httpClient  *http.Client
	calendarID  string
	timezone    string
	credentials *serviceAccountCredentials

	// Token caching
	mu          sync.RWMutex
	accessToken string
	tokenExp    time.Time
}

type serviceAccountCredentials struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

// Config holds calendar client configuration.
type Config struct {
	CredentialsFile string // Path to service account JSON key
	CalendarID      string // Calendar to operate on (usually an email address)
	Timezone        string // IANA timezone for event payloads
}

// NewClient creates a calendar client from a service account key file.
func NewClient(cfg Config) (*Client, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var creds serviceAccountCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.Type != "service_account" {
		return nil, fmt.Errorf("credentials file must be a service account key (got %s)", creds.Type)
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		calendarID:  cfg.CalendarID,
		timezone:    tz,
		credentials: &creds,
	}, nil
}

// getAccessToken returns a valid access token, refreshing if needed.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.accessToken != "" && time.Now().Before(c.tokenExp) {
		token := c.accessToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.accessToken != "" && time.Now().Before(c.tokenExp) {
		return c.accessToken, nil
	}

	now := time.Now()
	claims := map[string]any{
		"iss":   c.credentials.ClientEmail,
		"scope": "https://www.googleapis.com/auth/calendar.events https://www.googleapis.com/auth/calendar.readonly",
		"aud":   tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	jwt, err := c.signJWT(claims)
	if err != nil {
		return "", fmt.Errorf("sign JWT: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", jwt)

	req, err := http.NewRequestWithContext(ctx, "POST", tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("token request failed (%d): %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExp = now.Add(tokenExpiry)
	logging.Debug("calendar", "refreshed access token, valid until %s", c.tokenExp.Format(time.RFC3339))

	return c.accessToken, nil
}

// signJWT creates an RS256-signed JWT assertion from the key file.
func (c *Client) signJWT(claims map[string]any) (string, error) {
	block, _ := pem.Decode([]byte(c.credentials.PrivateKey))
	if block == nil {
		return "", fmt.Errorf("failed to parse PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("private key is not RSA")
	}

	header := map[string]string{"alg": "RS256", "typ": "JWT"}
	headerJSON, _ := json.Marshal(header)
	claimsJSON, _ := json.Marshal(claims)

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(claimsJSON)

	hash := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(nil, rsaKey, crypto.SHA256, hash[:])
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

// request makes an authenticated request to the Calendar API.
func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("calendar API error (%d): %s", errResp.Error.Code, errResp.Error.Message)
		}
		return nil, fmt.Errorf("calendar API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

type googleEvent struct {
	ID          string          `json:"id,omitempty"`
	Summary     string          `json:"summary"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status,omitempty"`
	Start       *googleDateTime `json:"start,omitempty"`
	End         *googleDateTime `json:"end,omitempty"`
}

type googleDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventsResponse struct {
	Items         []googleEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

// ListEvents retrieves all events in [from, to), expanding recurring
// events into instances and following pagination.
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	var events []Event
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("timeMin", from.Format(time.RFC3339))
		q.Set("timeMax", to.Format(time.RFC3339))
		q.Set("maxResults", "250")
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		path := fmt.Sprintf("/calendars/%s/events?%s", url.PathEscape(c.calendarID), q.Encode())
		data, err := c.request(ctx, "GET", path, nil)
		if err != nil {
			return nil, err
		}

		var resp eventsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse events response: %w", err)
		}

		for _, item := range resp.Items {
			ev, err := convertEvent(&item)
			if err != nil {
				logging.Debug("calendar", "skipping malformed event %s: %v", item.ID, err)
				continue
			}
			events = append(events, ev)
		}

		if resp.NextPageToken == "" {
			return events, nil
		}
		pageToken = resp.NextPageToken
	}
}

// CreateEvent creates a new event and returns it with the remote ID.
func (c *Client) CreateEvent(ctx context.Context, ev Event) (*Event, error) {
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(c.calendarID))
	data, err := c.request(ctx, "POST", path, c.toGoogle(ev))
	if err != nil {
		return nil, err
	}
	return parseEvent(data)
}

// UpdateEvent overwrites the remote event identified by ev.ID.
func (c *Client) UpdateEvent(ctx context.Context, ev Event) (*Event, error) {
	if ev.ID == "" {
		return nil, fmt.Errorf("update requires an event ID")
	}
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(c.calendarID), url.PathEscape(ev.ID))
	data, err := c.request(ctx, "PUT", path, c.toGoogle(ev))
	if err != nil {
		return nil, err
	}
	return parseEvent(data)
}

// DeleteEvent removes a remote event.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(c.calendarID), url.PathEscape(eventID))
	_, err := c.request(ctx, "DELETE", path, nil)
	return err
}

// FreeBusy returns the busy intervals in [from, to).
func (c *Client) FreeBusy(ctx context.Context, from, to time.Time) ([]BusyPeriod, error) {
	reqBody := map[string]any{
		"timeMin": from.Format(time.RFC3339),
		"timeMax": to.Format(time.RFC3339),
		"items":   []map[string]string{{"id": c.calendarID}},
	}

	data, err := c.request(ctx, "POST", "/freeBusy", reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse freebusy response: %w", err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return nil, fmt.Errorf("calendar not found in freebusy response")
	}

	periods := make([]BusyPeriod, 0, len(cal.Busy))
	for _, busy := range cal.Busy {
		start, err := time.Parse(time.RFC3339, busy.Start)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, busy.End)
		if err != nil {
			continue
		}
		periods = append(periods, BusyPeriod{Start: start, End: end})
	}
	return periods, nil
}

// toGoogle converts to the wire format.
func (c *Client) toGoogle(ev Event) *googleEvent {
	g := &googleEvent{
		Summary:     ev.Summary,
		Description: ev.Description,
	}
	if ev.AllDay {
		g.Start = &googleDateTime{Date: ev.Start.Format("2006-01-02")}
		g.End = &googleDateTime{Date: ev.End.Format("2006-01-02")}
	} else {
		g.Start = &googleDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: c.timezone}
		g.End = &googleDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: c.timezone}
	}
	return g
}

func parseEvent(data []byte) (*Event, error) {
	var item googleEvent
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	ev, err := convertEvent(&item)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// convertEvent converts a wire event to our Event type.
func convertEvent(item *googleEvent) (Event, error) {
	ev := Event{
		ID:          item.ID,
		Summary:     item.Summary,
		Description: item.Description,
		Status:      item.Status,
	}

	if item.Start != nil {
		if item.Start.DateTime != "" {
			t, err := time.Parse(time.RFC3339, item.Start.DateTime)
			if err != nil {
				return Event{}, fmt.Errorf("parse start time: %w", err)
			}
			ev.Start = t
		} else if item.Start.Date != "" {
			t, err := time.Parse("2006-01-02", item.Start.Date)
			if err != nil {
				return Event{}, fmt.Errorf("parse start date: %w", err)
			}
			ev.Start = t
			ev.AllDay = true
		}
	}

	if item.End != nil {
		if item.End.DateTime != "" {
			t, err := time.Parse(time.RFC3339, item.End.DateTime)
			if err != nil {
				return Event{}, fmt.Errorf("parse end time: %w", err)
			}
			ev.End = t
		} else if item.End.Date != "" {
			t, err := time.Parse("2006-01-02", item.End.Date)
			if err != nil {
				return Event{}, fmt.Errorf("parse end date: %w", err)
			}
			ev.End = t
		}
	}

	return ev, nil
}
