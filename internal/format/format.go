// Package format renders monitoring data for terminal output.
package format

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hamed0406/sitewatch/internal/domain"
)

const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp renders t in local time, or "Never" when unset.
func Timestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "Never"
	}
	return t.Local().Format(TimestampLayout)
}

// Duration renders seconds as 850ms, 2.50s, 3m 5s or 1h 2m.
func Duration(seconds float64) string {
	switch {
	case seconds < 1:
		return fmt.Sprintf("%.0fms", seconds*1000)
	case seconds < 60:
		return fmt.Sprintf("%.2fs", seconds)
	case seconds < 3600:
		m := int(seconds) / 60
		return fmt.Sprintf("%dm %.0fs", m, seconds-float64(m*60))
	default:
		h := int(seconds) / 3600
		m := (int(seconds) % 3600) / 60
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// ResponseTime renders a latency with millisecond precision, or N/A.
func ResponseTime(latency *float64) string {
	if latency == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.3fs", *latency)
}

func Indicator(s domain.Status) string {
	switch s {
	case domain.StatusOnline:
		return "🟢"
	case domain.StatusOffline:
		return "🔴"
	}
	return "⚪"
}

// Label is the indicator followed by the upper-cased status, padded for columns.
func Label(s domain.Status) string {
	return fmt.Sprintf("%s %-7s", Indicator(s), strings.ToUpper(s.String()))
}

// Truncate shortens text to max runes, ending in "..." when cut.
func Truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	if max <= 3 {
		return string([]rune(text)[:max])
	}
	return string([]rune(text)[:max-3]) + "..."
}

// ErrorMessage trims transport noise such as `Get "http://x": ` from an
// error string and truncates the rest.
func ErrorMessage(msg string, max int) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return ""
	}
	for _, verb := range []string{"Get ", "Head ", "Post "} {
		if strings.HasPrefix(msg, verb+`"`) {
			if i := strings.Index(msg, `": `); i > 0 {
				msg = msg[i+3:]
			}
			break
		}
	}
	return Truncate(msg, max)
}
