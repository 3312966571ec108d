package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-scan-workers/internal/common/logger"
)

func TestNewTracer_Disabled(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestNewTracer_RequiresEndpoint(t *testing.T) {
	_, err := NewTracer(TracingConfig{Enabled: true, ServiceName: "card-scan"})
	assert.Error(t, err)
}

func TestRecordScan_NilSafe(t *testing.T) {
	var o *Observability
	o.RecordScan(context.Background(), "verified", "full", time.Millisecond)
	assert.NoError(t, o.Shutdown(context.Background()))
}

func TestNew_RecordsScans(t *testing.T) {
	o := New("card-scan-test", logger.NewTestLogger(t))
	o.RecordScan(context.Background(), "not_found", "number_only", 12*time.Millisecond)
	assert.NoError(t, o.Shutdown(context.Background()))
}
