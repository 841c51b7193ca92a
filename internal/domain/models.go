package domain

import "time"

type Status string

const (
	StatusUnknown Status = ""
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// String returns "unknown" for a site that was never checked.
func (s Status) String() string {
	if s == StatusUnknown {
		return "unknown"
	}
	return string(s)
}

// Site is a monitored URL and the outcome of its most recent check.
// LastChecked, LastStatus, ResponseTime and LastError change together.
type Site struct {
	ID           int64      `json:"id"`
	URL          string     `json:"url"`
	CreatedAt    time.Time  `json:"added_at"`
	LastChecked  *time.Time `json:"last_checked"` // nil = never checked
	LastStatus   Status     `json:"last_status"`
	ResponseTime *float64   `json:"response_time"` // seconds
	LastError    *string    `json:"last_error"`
}

// Checked reports whether the site has at least one recorded outcome.
func (s Site) Checked() bool { return s.LastChecked != nil }
