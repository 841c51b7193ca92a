package domain

import "time"

// Outcome is what one probe of one URL produced. Latency is nil when no
// response was received; Error is nil when the site is online.
type Outcome struct {
	Status  Status   `json:"status"`
	Latency *float64 `json:"response_time"`
	Error   *string  `json:"error"`
}

func Online(latency float64) Outcome {
	return Outcome{Status: StatusOnline, Latency: &latency}
}

// Offline builds an offline outcome. Pass a negative latency when no
// response was received.
func Offline(latency float64, reason string) Outcome {
	o := Outcome{Status: StatusOffline, Error: &reason}
	if latency >= 0 {
		o.Latency = &latency
	}
	return o
}

// CheckRecord is one entry of a site's append-only check history.
type CheckRecord struct {
	ID           int64     `json:"id"`
	SiteID       int64     `json:"site_id"`
	CheckedAt    time.Time `json:"checked_at"`
	Status       Status    `json:"status"`
	ResponseTime *float64  `json:"response_time"`
	Error        *string   `json:"error_message"`
}

// SweepResult pairs a site URL with the outcome of probing it.
type SweepResult struct {
	URL string `json:"url"`
	Outcome
}
