package out

import (
	"context"

	"github.com/bnema/imagehub/internal/domain"
)

// MetricsRecorder receives operation outcomes for instrumentation.
type MetricsRecorder interface {
	RecordSync(ctx context.Context, report domain.SyncReport, code domain.Code)
	RecordOperation(ctx context.Context, op string, code domain.Code)
	RecordCacheLookup(ctx context.Context, hit bool)
}
