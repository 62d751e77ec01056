package classify

import (
	nethttp "net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderRetryAfter is the response header servers use to ask for a pause.
const HeaderRetryAfter = "Retry-After"

// ParseRetryAfter reads a Retry-After value in either delta-seconds or HTTP-date form.
// It returns false when the value is absent, malformed or already in the past.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	at, err := nethttp.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now)
	if d <= 0 {
		return 0, false
	}
	return d, true
}
