// Package weconnect is a read-only client for the WEconnect API, the system
// of record for a user's recovery activities and their daily check-ins.
package weconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/syncerr"
)

// DateLayout is the timestamp format used in WEconnect payloads.
const DateLayout = "2006-01-02T15:04:05.000Z"

// Client calls the WEconnect REST API.
type Client struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// New returns a client for baseURL issuing at most ratePerSec requests per second.
func New(baseURL string, timeout time.Duration, ratePerSec float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &Client{client: c, limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1)}
}

// Credentials are what a successful login yields.
type Credentials struct {
	UserID string
	Token  string
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken struct {
		ID     string `json:"id"`
		UserID flexID `json:"userId"`
	} `json:"accessToken"`
}

// Login exchanges an email and password for a WEconnect user id and access token.
func (c *Client) Login(ctx context.Context, email, password string) (Credentials, error) {
	const op = "weconnect.login"
	var out loginResponse
	if err := c.do(ctx, op, c.client.R().SetBody(&loginRequest{Email: email, Password: password}).SetResult(&out), http.MethodPost, "/People/login"); err != nil {
		return Credentials{}, err
	}
	if out.AccessToken.ID == "" || out.AccessToken.UserID == "" {
		return Credentials{}, syncerr.New(syncerr.Configuration, op, fmt.Errorf("login response carried no token"))
	}
	return Credentials{UserID: string(out.AccessToken.UserID), Token: out.AccessToken.ID}, nil
}

type activityRecord struct {
	ActivityID   flexID  `json:"activityId"`
	Name         string  `json:"name"`
	DateStart    string  `json:"dateStart"`
	Duration     int     `json:"duration"`
	Repeat       string  `json:"repeat"`
	RepeatEnd    *string `json:"repeatEnd"`
	DateModified string  `json:"dateModified"`
}

// Activities lists every activity defined by user.
func (c *Client) Activities(ctx context.Context, user *model.User) ([]model.ExternalActivity, error) {
	const op = "weconnect.activities"
	var records []activityRecord
	req := c.client.R().
		SetPathParam("wcID", user.WCID).
		SetQueryParam("access_token", user.WCToken).
		SetResult(&records)
	if err := c.do(ctx, op, req, http.MethodGet, "/People/{wcID}/activities"); err != nil {
		return nil, withUser(err, user)
	}

	out := make([]model.ExternalActivity, 0, len(records))
	for _, r := range records {
		a, err := r.toModel()
		if err != nil {
			return nil, withUser(syncerr.New(syncerr.TransientFetch, op, err), user)
		}
		out = append(out, a)
	}
	return out, nil
}

type eventRecord struct {
	EID        flexID `json:"eid"`
	DateStart  string `json:"dateStart"`
	Duration   int    `json:"duration"`
	DidCheckin bool   `json:"didCheckin"`
}

type activityEventsRecord struct {
	ActivityID   flexID        `json:"activityId"`
	DateModified string        `json:"dateModified"`
	Events       []eventRecord `json:"events"`
}

// EventsOn lists the occurrences scheduled for user on the calendar day of day.
func (c *Client) EventsOn(ctx context.Context, user *model.User, day time.Time) ([]model.ExternalActivityEvents, error) {
	const op = "weconnect.events"
	// The window is the local calendar day, sent in UTC.
	from := model.Midnight(day).UTC()
	to := from.Add(24*time.Hour - time.Minute)

	var records []activityEventsRecord
	req := c.client.R().
		SetPathParam("wcID", user.WCID).
		SetQueryParams(map[string]string{
			"from":         from.Format(DateLayout),
			"to":           to.Format(DateLayout),
			"access_token": user.WCToken,
		}).
		SetResult(&records)
	if err := c.do(ctx, op, req, http.MethodGet, "/People/{wcID}/activities-with-events"); err != nil {
		return nil, withUser(err, user)
	}

	out := make([]model.ExternalActivityEvents, 0, len(records))
	for _, r := range records {
		g, err := r.toModel()
		if err != nil {
			return nil, withUser(syncerr.New(syncerr.TransientFetch, op, err), user)
		}
		out = append(out, g)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op string, req *resty.Request, method, path string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return syncerr.NewNetworkError(op, err)
	}
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return syncerr.NewNetworkError(op, err)
	}
	if resp.IsError() {
		return syncerr.NewHTTPError(op, resp.StatusCode(), resp.String())
	}
	return nil
}

func withUser(err error, user *model.User) error {
	var se *syncerr.Error
	if errors.As(err, &se) {
		se.User = user.Username
	}
	return err
}

func (r activityRecord) toModel() (model.ExternalActivity, error) {
	start, err := ParseTime(r.DateStart)
	if err != nil {
		return model.ExternalActivity{}, fmt.Errorf("activity %s dateStart: %w", r.ActivityID, err)
	}
	modified, err := ParseTime(r.DateModified)
	if err != nil {
		return model.ExternalActivity{}, fmt.Errorf("activity %s dateModified: %w", r.ActivityID, err)
	}
	out := model.ExternalActivity{
		ActivityID:   string(r.ActivityID),
		Name:         r.Name,
		DateStart:    start,
		Duration:     r.Duration,
		Repeat:       r.Repeat,
		DateModified: modified,
	}
	if r.RepeatEnd != nil && *r.RepeatEnd != "" {
		end, err := ParseTime(*r.RepeatEnd)
		if err != nil {
			return model.ExternalActivity{}, fmt.Errorf("activity %s repeatEnd: %w", r.ActivityID, err)
		}
		out.RepeatEnd = &end
	}
	return out, nil
}

func (r activityEventsRecord) toModel() (model.ExternalActivityEvents, error) {
	modified, err := ParseTime(r.DateModified)
	if err != nil {
		return model.ExternalActivityEvents{}, fmt.Errorf("activity %s dateModified: %w", r.ActivityID, err)
	}
	out := model.ExternalActivityEvents{ActivityID: string(r.ActivityID), DateModified: modified}
	for _, e := range r.Events {
		start, err := ParseTime(e.DateStart)
		if err != nil {
			return model.ExternalActivityEvents{}, fmt.Errorf("event %s dateStart: %w", e.EID, err)
		}
		out.Events = append(out.Events, model.ExternalEvent{
			EID:        string(e.EID),
			DateStart:  start,
			Duration:   e.Duration,
			DidCheckin: e.DidCheckin,
		})
	}
	return out, nil
}

// ParseTime reads a WEconnect timestamp, accepting RFC 3339 as a fallback.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// flexID accepts ids encoded as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id %s is not an integer", n)
	}
	*f = flexID(n.String())
	return nil
}
