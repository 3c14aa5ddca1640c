package gatekeep

import (
	"context"
	"log/slog"
	"time"

	"github.com/workshophq/gatekeep/checklog"
	"github.com/workshophq/gatekeep/id"
)

// CheckRecorder is a plugin that persists every authorization decision as a
// checklog entry. Recording is best effort: a failed write is logged and the
// check proceeds unaffected.
type CheckRecorder struct {
	store  checklog.Store
	logger *slog.Logger
	clock  func() time.Time
}

// NewCheckRecorder creates a check recorder writing to the given store.
func NewCheckRecorder(store checklog.Store, logger *slog.Logger) *CheckRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckRecorder{store: store, logger: logger, clock: time.Now}
}

// Name implements plugin.Plugin.
func (r *CheckRecorder) Name() string { return "check-recorder" }

// OnAfterCheck implements plugin.AfterCheck.
func (r *CheckRecorder) OnAfterCheck(ctx context.Context, req, result any) error {
	cr, ok := req.(*CheckRequest)
	if !ok {
		return nil
	}
	res, ok := result.(*CheckResult)
	if !ok {
		return nil
	}

	entry := &checklog.Entry{
		ID:            id.NewCheckLogID(),
		OrgID:         cr.OrgID,
		UserID:        cr.UserID,
		PermissionKey: cr.PermissionKey,
		Allowed:       res.Allowed,
		Decision:      string(res.Decision),
		Source:        res.Source,
		EvalTimeNs:    res.EvalTimeNs,
		CreatedAt:     r.clock(),
	}
	if err := r.store.CreateCheckLog(ctx, entry); err != nil {
		r.logger.Warn("check log write failed",
			slog.String("org_id", cr.OrgID),
			slog.String("user_id", cr.UserID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
