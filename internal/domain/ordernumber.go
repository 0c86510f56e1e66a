package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber returns ORD-YYYYMMDD-XXXXXX. Uniqueness rests on the random
// suffix only.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "ORD-" + now.Format("20060102") + "-" + suffix
}
