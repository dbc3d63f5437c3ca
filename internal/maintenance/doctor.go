package maintenance

import (
	"context"
	"log/slog"

	"github.com/panosAthDBX/ironclaw/internal/dockerdetect"
)

// DoctorTask builds a Task that re-probes Docker availability on the given
// schedule and logs any change in status, so a long-running daemon notices
// a Docker daemon going away without waiting for a job spawn to fail.
func DoctorTask(schedule string, logger *slog.Logger) Task {
	if logger == nil {
		logger = slog.Default()
	}
	last := dockerdetect.Status("")
	return Task{
		Name:     "docker-doctor",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			detection := dockerdetect.Check(ctx)
			if detection.Status != last {
				logger.Info("docker status changed",
					"previous", string(last), "current", string(detection.Status))
				last = detection.Status
			}
			return nil
		},
	}
}
