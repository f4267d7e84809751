package coord

import (
	"strconv"
	"time"
)

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

// retryAfterSeconds arredonda para cima, com mínimo de 1s.
func retryAfterSeconds(d time.Duration) string {
	if d <= 0 {
		return "1"
	}
	secs := int64((d + time.Second - 1) / time.Second)
	return formatInt(secs)
}
