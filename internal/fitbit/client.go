// Package fitbit writes PowerToken progress to a user's Fitbit account as a
// synthetic walk whose step count is the progress times the step goal.
package fitbit

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/syncerr"
)

// WalkActivityID is Fitbit's activity id for "Walk", used for the logged entries.
const WalkActivityID = 90013

// DefaultStepGoal is high enough that only full progress reaches it.
const DefaultStepGoal = 1000000

// Client calls the Fitbit Web API on behalf of one user.
type Client struct {
	client  *resty.Client
	limiter *rate.Limiter
	clock   clock.Clock
	goal    int
}

// Options configure a Client.
type Options struct {
	BaseURL   string
	Token     string
	StepGoal  int
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Clock     clock.Clock
}

// New returns a client authorized with opts.Token.
func New(opts Options) *Client {
	if opts.StepGoal <= 0 {
		opts.StepGoal = DefaultStepGoal
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetAuthToken(opts.Token).
		SetHeader("Accept", "application/json").
		SetTimeout(opts.Timeout)
	return &Client{
		client:  c,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		clock:   opts.Clock,
		goal:    opts.StepGoal,
	}
}

// Goal is the step goal progress is scaled against.
func (c *Client) Goal() int { return c.goal }

// Steps converts a progress fraction into a step count against goal.
func Steps(progress float64, goal int) int {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	return int(math.Round(progress * float64(goal)))
}

// SetGoal sets the user's daily step goal to the client's goal.
func (c *Client) SetGoal(ctx context.Context) error {
	const op = "fitbit.goal"
	req := c.client.R().SetFormData(map[string]string{"steps": strconv.Itoa(c.goal)})
	_, err := c.do(ctx, op, req, http.MethodPost, "/1/user/-/activities/goals/daily.json")
	return err
}

type activityLog struct {
	LogID      int64 `json:"logId"`
	ActivityID int64 `json:"activityId"`
}

type dailySummary struct {
	Activities []activityLog `json:"activities"`
}

type logResult struct {
	ActivityLog activityLog `json:"activityLog"`
}

// Update logs a walk carrying the steps for progress and returns that step
// count and the new entry's log id. replace is the log id of the walk
// PowerToken logged earlier today, or 0; it is deleted first when Fitbit
// still lists it. No other entry is touched. A zero step count only clears
// the previous entry and returns log id 0.
func (c *Client) Update(ctx context.Context, progress float64, replace int64) (int, int64, error) {
	steps := Steps(progress, c.goal)
	date := c.clock.Now().Format("2006-01-02")

	if replace != 0 {
		var summary dailySummary
		if _, err := c.do(ctx, "fitbit.list", c.client.R().SetPathParam("date", date).SetResult(&summary),
			http.MethodGet, "/1/user/-/activities/date/{date}.json"); err != nil {
			return 0, 0, err
		}
		for _, a := range summary.Activities {
			if a.LogID != replace || a.ActivityID != WalkActivityID {
				continue
			}
			req := c.client.R().SetPathParam("logID", strconv.FormatInt(a.LogID, 10))
			if _, err := c.do(ctx, "fitbit.delete", req, http.MethodDelete, "/1/user/-/activities/{logID}.json"); err != nil {
				return 0, 0, err
			}
		}
	}

	if steps == 0 {
		return 0, 0, nil
	}
	var created logResult
	req := c.client.R().SetFormData(map[string]string{
		"activityId":     strconv.Itoa(WalkActivityID),
		"startTime":      "00:00",
		"durationMillis": strconv.Itoa(int(time.Hour / time.Millisecond)),
		"date":           date,
		"distance":       strconv.Itoa(steps),
		"distanceUnit":   "steps",
	}).SetResult(&created)
	if _, err := c.do(ctx, "fitbit.log", req, http.MethodPost, "/1/user/-/activities.json"); err != nil {
		return 0, 0, err
	}
	return steps, created.ActivityLog.LogID, nil
}

func (c *Client) do(ctx context.Context, op string, req *resty.Request, method, path string) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, syncerr.NewNetworkError(op, err)
	}
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return nil, syncerr.NewNetworkError(op, err)
	}
	if resp.IsError() {
		return resp, syncerr.NewHTTPError(op, resp.StatusCode(), resp.String())
	}
	return resp, nil
}

// ErrNoToken is returned when the user has not linked Fitbit.
var ErrNoToken = errors.New("fitbit token missing")

// Sink pushes progress for any user, sharing one rate budget across them.
type Sink struct {
	opts    Options
	limiter *rate.Limiter
}

func NewSink(opts Options) *Sink {
	return &Sink{opts: opts, limiter: New(opts).limiter}
}

// For returns a client authorized with user's token.
func (s *Sink) For(user *model.User) (*Client, error) {
	if user.FBToken == "" {
		return nil, &syncerr.Error{Kind: syncerr.Configuration, Op: "fitbit.client", User: user.Username, Err: ErrNoToken}
	}
	opts := s.opts
	opts.Token = user.FBToken
	c := New(opts)
	c.limiter = s.limiter
	return c, nil
}

// SetGoal sets user's daily step goal.
func (s *Sink) SetGoal(ctx context.Context, user *model.User) error {
	c, err := s.For(user)
	if err != nil {
		return err
	}
	return tagUser(c.SetGoal(ctx), user)
}

// Update posts progress for user, replacing the entry logged as replace, and
// returns the logged step count and log id.
func (s *Sink) Update(ctx context.Context, user *model.User, progress float64, replace int64) (int, int64, error) {
	c, err := s.For(user)
	if err != nil {
		return 0, 0, err
	}
	steps, logID, err := c.Update(ctx, progress, replace)
	return steps, logID, tagUser(err, user)
}

func tagUser(err error, user *model.User) error {
	var se *syncerr.Error
	if errors.As(err, &se) {
		se.User = user.Username
	}
	return err
}
