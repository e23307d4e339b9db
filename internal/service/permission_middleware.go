package service

import (
	"context"
	"log/slog"
	"time"
)

// permissionMiddleware decorates a Permissioner with outcome logging
// without touching the check logic.
type permissionMiddleware struct {
	next   Permissioner
	logger *slog.Logger
}

func NewPermissionMiddleware(next Permissioner, logger *slog.Logger) Permissioner {
	return &permissionMiddleware{next: next, logger: logger}
}

func (m *permissionMiddleware) Check(ctx context.Context, subjectID, permission string) (bool, error) {
	start := time.Now()
	allowed, err := m.next.Check(ctx, subjectID, permission)

	if err != nil {
		m.logger.Warn("permission check failed",
			"subject_id", subjectID,
			"permission", permission,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return allowed, err
	}
	if !allowed {
		m.logger.Debug("permission denied",
			"subject_id", subjectID,
			"permission", permission,
		)
	}
	return allowed, nil
}
