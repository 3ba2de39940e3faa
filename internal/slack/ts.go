package slack

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseTS converts a Slack message timestamp ("1700000000.000100") to a
// time. Malformed input yields the zero time.
func parseTS(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil || s == 0 {
		return time.Time{}
	}
	var us int64
	if frac != "" {
		us, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, us*int64(time.Microsecond)).UTC()
}

func formatTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}
