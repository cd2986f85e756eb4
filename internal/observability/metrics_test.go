package observability

import (
	"testing"
	"time"

	"github.com/danmuck/acctos/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("acctos-a", "GET", "/health", 200, 12*time.Millisecond)

	before := testutil.ToFloat64(TransactionCount("metrics_test", true))
	RecordTransaction("metrics_test", true, time.Millisecond)
	RecordTransaction("metrics_test", false, time.Millisecond)
	if got := testutil.ToFloat64(TransactionCount("metrics_test", true)); got != before+1 {
		t.Fatalf("unexpected committed count: got=%v want=%v", got, before+1)
	}

	chunkBefore := testutil.ToFloat64(ReconcileChunkCount("metrics_test", OutcomeCommitted))
	RecordReconcileChunk("metrics_test", OutcomeCommitted, 25)
	RecordReconcileChunk("metrics_test", OutcomeFailed, 25)
	if got := testutil.ToFloat64(ReconcileChunkCount("metrics_test", OutcomeCommitted)); got != chunkBefore+1 {
		t.Fatalf("unexpected chunk count: got=%v want=%v", got, chunkBefore+1)
	}
}
