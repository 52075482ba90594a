package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateMessageID builds the per-request messageId header KCB uses for tracing.
func GenerateMessageID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), uuid.NewString()[:8])
}
