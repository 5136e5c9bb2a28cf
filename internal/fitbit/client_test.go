package fitbit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/syncerr"
)

type fakeFitbit struct {
	mu       sync.Mutex
	goal     string
	logged   []map[string]string
	deleted  []string
	existing []activityLog
	listed   int
	nextLog  int64
	auth     string
}

func (f *fakeFitbit) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/1/user/-/activities/goals/daily.json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		f.goal = r.PostForm.Get("steps")
		f.auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"goals":{}}`))
	})
	mux.HandleFunc("/1/user/-/activities/date/2024-03-15.json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listed++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dailySummary{Activities: f.existing})
	})
	mux.HandleFunc("/1/user/-/activities.json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		entry := map[string]string{}
		for k := range r.PostForm {
			entry[k] = r.PostForm.Get(k)
		}
		f.logged = append(f.logged, entry)
		f.nextLog++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(logResult{ActivityLog: activityLog{LogID: 500 + f.nextLog, ActivityID: WalkActivityID}})
	})
	mux.HandleFunc("/1/user/-/activities/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, http.MethodDelete, r.Method)
		f.deleted = append(f.deleted, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeFitbit) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:   srv.URL,
		Token:     "fb-token",
		StepGoal:  1000,
		Timeout:   time.Second,
		RateLimit: 100,
		Clock:     clock.NewMock(time.Date(2024, time.March, 15, 14, 0, 0, 0, time.UTC)),
	})
}

func TestSteps(t *testing.T) {
	assert.Equal(t, 0, Steps(0, 1000000))
	assert.Equal(t, 600000, Steps(0.6, 1000000))
	assert.Equal(t, 333, Steps(1.0/3, 1000))
	assert.Equal(t, 667, Steps(2.0/3, 1000))
	assert.Equal(t, 1000, Steps(1.7, 1000), "clamped high")
	assert.Equal(t, 0, Steps(-0.2, 1000), "clamped low")
}

func TestSetGoal(t *testing.T) {
	f := &fakeFitbit{}
	c := newTestClient(t, f)

	require.NoError(t, c.SetGoal(context.Background()))
	assert.Equal(t, "1000", f.goal)
	assert.Equal(t, "Bearer fb-token", f.auth)
}

func TestUpdate_ReplacesOnlyOwnWalk(t *testing.T) {
	f := &fakeFitbit{existing: []activityLog{
		{LogID: 11, ActivityID: WalkActivityID},
		{LogID: 77, ActivityID: WalkActivityID}, // a walk the user really took
		{LogID: 12, ActivityID: 17151},
	}}
	c := newTestClient(t, f)

	steps, logID, err := c.Update(context.Background(), 0.6, 11)
	require.NoError(t, err)
	assert.Equal(t, 600, steps)
	assert.Equal(t, int64(501), logID)

	assert.Equal(t, []string{"/1/user/-/activities/11.json"}, f.deleted)
	require.Len(t, f.logged, 1)
	assert.Equal(t, "600", f.logged[0]["distance"])
	assert.Equal(t, "steps", f.logged[0]["distanceUnit"])
	assert.Equal(t, "2024-03-15", f.logged[0]["date"])
	assert.Equal(t, "90013", f.logged[0]["activityId"])
}

func TestUpdate_FirstPushDeletesNothing(t *testing.T) {
	f := &fakeFitbit{existing: []activityLog{{LogID: 77, ActivityID: WalkActivityID}}}
	c := newTestClient(t, f)

	steps, logID, err := c.Update(context.Background(), 0.5, 0)
	require.NoError(t, err)
	assert.Equal(t, 500, steps)
	assert.Equal(t, int64(501), logID)
	assert.Zero(t, f.listed)
	assert.Empty(t, f.deleted)
}

func TestUpdate_StaleReplaceIsIgnored(t *testing.T) {
	f := &fakeFitbit{existing: []activityLog{{LogID: 77, ActivityID: WalkActivityID}}}
	c := newTestClient(t, f)

	_, _, err := c.Update(context.Background(), 0.5, 11)
	require.NoError(t, err)
	assert.Equal(t, 1, f.listed)
	assert.Empty(t, f.deleted)
	assert.Len(t, f.logged, 1)
}

func TestUpdate_ZeroProgressOnlyClears(t *testing.T) {
	f := &fakeFitbit{existing: []activityLog{
		{LogID: 11, ActivityID: WalkActivityID},
		{LogID: 77, ActivityID: WalkActivityID},
	}}
	c := newTestClient(t, f)

	steps, logID, err := c.Update(context.Background(), 0, 11)
	require.NoError(t, err)
	assert.Zero(t, steps)
	assert.Zero(t, logID)
	assert.Equal(t, []string{"/1/user/-/activities/11.json"}, f.deleted)
	assert.Empty(t, f.logged)
}

func TestUpdate_UnauthorizedIsConfiguration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"errorType":"expired_token"}]}`))
	}))
	defer srv.Close()

	s := NewSink(Options{BaseURL: srv.URL, StepGoal: 1000, RateLimit: 100})
	_, _, err := s.Update(context.Background(), &model.User{Username: "bob", FBToken: "stale"}, 0.5, 0)
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.Configuration))
	assert.Contains(t, err.Error(), "user=bob")
}

func TestSink_RequiresToken(t *testing.T) {
	s := NewSink(Options{BaseURL: "http://127.0.0.1:1"})
	err := s.SetGoal(context.Background(), &model.User{Username: "carol"})
	assert.ErrorIs(t, err, ErrNoToken)
	assert.True(t, syncerr.Is(err, syncerr.Configuration))
}
