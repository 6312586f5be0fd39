package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("caption_job:%s:status", jobID)
}

// ModelAvailabilityKey holds the installed-model list reported by one backend.
func ModelAvailabilityKey(backend string) string {
	return fmt.Sprintf("vision:models:%s", backend)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
