package sink

import (
	"log/slog"

	"github.com/flowmesh/telemetry/collector/internal/testutil"
)

func discardLogger() *slog.Logger {
	return testutil.NewTestLogger()
}
