package weconnect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/syncerr"
)

var testUser = &model.User{Username: "alice", WCID: "42", WCToken: "tok"}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestActivities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/People/42/activities", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"activityId": 101, "name": "AA meeting", "dateStart": "2024-03-01T18:00:00.000Z",
			 "duration": 60, "repeat": "never", "repeatEnd": null, "dateModified": "2024-03-14T10:00:00.000Z"},
			{"activityId": "202", "name": "Therapy", "dateStart": "2024-03-01T09:00:00Z",
			 "duration": 45, "repeat": "weekly", "repeatEnd": "2024-06-01T00:00:00.000Z", "dateModified": "2024-03-01T10:00:00.000Z"}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api", time.Second, 100)
	acts, err := c.Activities(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, acts, 2)

	assert.Equal(t, "101", acts[0].ActivityID)
	assert.Equal(t, "AA meeting", acts[0].Name)
	assert.Equal(t, 60, acts[0].Duration)
	assert.Nil(t, acts[0].RepeatEnd)
	assert.True(t, acts[0].DateStart.Equal(time.Date(2024, time.March, 1, 18, 0, 0, 0, time.UTC)))

	assert.Equal(t, "202", acts[1].ActivityID)
	require.NotNil(t, acts[1].RepeatEnd)
	assert.True(t, acts[1].RepeatEnd.Equal(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, acts[1].DateStart.Equal(time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)), "RFC 3339 fallback")
}

func TestEventsOn(t *testing.T) {
	day := time.Date(2024, time.March, 15, 13, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/People/42/activities-with-events", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2024-03-15T00:00:00.000Z", q.Get("from"))
		assert.Equal(t, "2024-03-15T23:59:00.000Z", q.Get("to"))
		writeJSON(w, []map[string]any{{
			"activityId":   101,
			"dateModified": "2024-03-15T07:00:00.000Z",
			"events": []map[string]any{
				{"eid": "e-1", "dateStart": "2024-03-15T08:00:00.000Z", "duration": 30, "didCheckin": true},
				{"eid": 77, "dateStart": "2024-03-15T18:00:00.000Z", "duration": 60, "didCheckin": false},
			},
		}})
	}))
	defer srv.Close()

	groups, err := New(srv.URL, time.Second, 100).EventsOn(context.Background(), testUser, day)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, "101", g.ActivityID)
	require.Len(t, g.Events, 2)
	assert.Equal(t, model.ExternalEvent{EID: "e-1", DateStart: time.Date(2024, time.March, 15, 8, 0, 0, 0, time.UTC), Duration: 30, DidCheckin: true}, g.Events[0])
	assert.Equal(t, "77", g.Events[1].EID)
}

func TestEventsOn_LocalDaySentAsUTC(t *testing.T) {
	eastern := time.FixedZone("EST", -5*60*60)
	mock := clock.NewMock(time.Date(2024, time.March, 15, 21, 30, 0, 0, eastern))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2024-03-15T05:00:00.000Z", q.Get("from"))
		assert.Equal(t, "2024-03-16T04:59:00.000Z", q.Get("to"))
		writeJSON(w, []map[string]any{})
	}))
	defer srv.Close()

	groups, err := New(srv.URL, time.Second, 100).EventsOn(context.Background(), testUser, clock.Today(mock))
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/People/login", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"accessToken": map[string]any{"id": "tok-1", "userId": 42}})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 100)
	creds, err := c.Login(context.Background(), "a@example.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, Credentials{UserID: "42", Token: "tok-1"}, creds)

	_, err = c.Login(context.Background(), "a@example.test", "wrong")
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.Configuration))
}

func TestErrorsAreClassified(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()
	c := New(srv.URL, time.Second, 100)

	_, err := c.Activities(context.Background(), testUser)
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.TransientFetch))
	assert.Contains(t, err.Error(), "user=alice")
	assert.Contains(t, err.Error(), "HTTP 503")

	status = http.StatusForbidden
	_, err = c.EventsOn(context.Background(), testUser, time.Now())
	assert.True(t, syncerr.Is(err, syncerr.Configuration))
}

func TestNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second, 100).Activities(context.Background(), testUser)
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.TransientFetch))
}

func TestMalformedDateIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{"activityId": 1, "name": "x", "dateStart": "yesterday", "dateModified": "2024-03-01T10:00:00.000Z"}})
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, 100).Activities(context.Background(), testUser)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dateStart")
}
