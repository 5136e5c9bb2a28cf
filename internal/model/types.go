package model

import "time"

// NeverExpires marks an activity that recurs with no end date.
var NeverExpires = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// DateLayout is the storage format of Day.Date.
const DateLayout = "2006-01-02"

// User is a person in recovery whose WEconnect progress is mirrored to Fitbit.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	RegisteredOn time.Time `json:"registeredOn"`
	GoalPeriod   string    `json:"goalPeriod"`
	WCID         string    `json:"wcId,omitempty"`
	WCToken      string    `json:"-"`
	FBToken      string    `json:"-"`
}

// HasCredentials reports whether every field needed to sync the user is set.
func (u *User) HasCredentials() bool {
	return u.Username != "" && u.WCID != "" && u.WCToken != "" && u.FBToken != ""
}

// Activity is a recurring commitment imported from WEconnect.
type Activity struct {
	ID         int64     `json:"id"`
	WCActID    string    `json:"wcActId"`
	Name       string    `json:"name"`
	Expiration time.Time `json:"expiration"`
	Weight     int       `json:"weight"`
	UserID     int64     `json:"userId"`
}

// Event is one scheduled occurrence of an Activity on a Day.
type Event struct {
	ID         int64     `json:"id"`
	EID        string    `json:"eid"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Completed  bool      `json:"completed"`
	DayID      int64     `json:"dayId"`
	ActivityID int64     `json:"activityId"`
}

// WeightedEvent is an Event joined with the weight of its Activity.
type WeightedEvent struct {
	Event
	Weight int `json:"weight"`
}

// Day is the per-user, per-date bucket of events with its cached progress.
type Day struct {
	ID               int64     `json:"id"`
	Date             time.Time `json:"date"`
	ComputedProgress float64   `json:"computedProgress"`
	UserID           int64     `json:"userId"`
}

// Log records one progress push to Fitbit.
type Log struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	WCProgress  float64   `json:"wcProgress"`
	FBStepCount int       `json:"fbStepCount"`
	FBLogID     int64     `json:"fbLogId,omitempty"` // Fitbit entry this push created; 0 when none
	UserID      int64     `json:"userId"`
}

// SyncError records a failed sync attempt for a user.
type SyncError struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
	Origin    string    `json:"origin"`
	Message   string    `json:"message"`
	UserID    int64     `json:"userId"`
}

// ExternalActivity is a WEconnect activity record after date parsing.
type ExternalActivity struct {
	ActivityID   string
	Name         string
	DateStart    time.Time
	Duration     int // minutes
	Repeat       string
	RepeatEnd    *time.Time
	DateModified time.Time
}

// ExternalEvent is one occurrence of a WEconnect activity.
type ExternalEvent struct {
	EID        string
	DateStart  time.Time
	Duration   int // minutes
	DidCheckin bool
}

// ExternalActivityEvents groups the occurrences of one activity in a date range.
type ExternalActivityEvents struct {
	ActivityID   string
	DateModified time.Time
	Events       []ExternalEvent
}

// Midnight truncates t to the start of its calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
