package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/captionforge/internal/api/response"
	"github.com/kiranshivaraju/captionforge/internal/captioning"
)

// ProgressWatcher streams samples of a job's progress.
type ProgressWatcher interface {
	Watch(ctx context.Context, jobID uuid.UUID) <-chan captioning.ProgressEvent
}

// NewStreamJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/stream.
// Samples are written as server-sent events until the job is terminal or the client leaves.
func NewStreamJobHandler(watcher ProgressWatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		stream := response.NewEventStream(w)
		for ev := range watcher.Watch(ctx, id) {
			if err := stream.Send(ev.Event, ev.Data); err != nil {
				slog.Debug("progress stream closed", "job_id", id, "error", err)
				return
			}
		}
	}
}
