package observability

import (
	"testing"

	"github.com/danmuck/nsqwire/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(framesReceived.WithLabelValues("message"))
	beforeBytes := testutil.ToFloat64(bytesReceived)
	RecordFrameReceived("message", 33)
	if got := testutil.ToFloat64(framesReceived.WithLabelValues("message")); got != before+1 {
		t.Fatalf("frames counter got=%v want=%v", got, before+1)
	}
	if got := testutil.ToFloat64(bytesReceived); got != beforeBytes+33 {
		t.Fatalf("bytes counter got=%v want=%v", got, beforeBytes+33)
	}

	beforeSent := testutil.ToFloat64(bytesSent)
	RecordCommandSent("NOP", 0)
	RecordCommandSent("PUB", 13)
	if got := testutil.ToFloat64(commandsSent.WithLabelValues("PUB")); got < 1 {
		t.Fatalf("expected PUB to be counted, got %v", got)
	}
	if got := testutil.ToFloat64(bytesSent); got != beforeSent+13 {
		t.Fatalf("sent bytes got=%v want=%v", got, beforeSent+13)
	}

	RecordReadError("closed")
	if got := testutil.ToFloat64(readErrors.WithLabelValues("closed")); got < 1 {
		t.Fatalf("expected read error to be counted, got %v", got)
	}
}
