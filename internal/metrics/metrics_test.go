package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-sifen/pkg/sifen"
)

func TestObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewObserver(reg)
	require.NoError(t, err)

	op := sifen.OpSubmitLot
	o.Observe(sifen.Event{Type: sifen.EventRequestBuilt, Operation: op, Bytes: 1200})
	o.Observe(sifen.Event{Type: sifen.EventRequestSent, Operation: op})
	o.Observe(sifen.Event{Type: sifen.EventResponseReceived, Operation: op, Route: "lot-reception", Bytes: 300, Elapsed: 250 * time.Millisecond})
	o.Observe(sifen.Event{Type: sifen.EventParseResult, Operation: op, State: sifen.StateCompleted, Code: "0300"})
	o.Observe(sifen.Event{Type: sifen.EventParseResult, Operation: op, State: sifen.StateRejected})
	o.Observe(sifen.Event{Type: sifen.EventRequestFailed, Operation: op, State: sifen.StateFailed, Err: errors.New("boom")})

	assert.Equal(t, 1200.0, testutil.ToFloat64(o.bytesTotal.WithLabelValues(string(op), "sent")))
	assert.Equal(t, 300.0, testutil.ToFloat64(o.bytesTotal.WithLabelValues(string(op), "received")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.requestsTotal.WithLabelValues(string(op), "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.requestsTotal.WithLabelValues(string(op), "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.requestsTotal.WithLabelValues(string(op), "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.resultCodes.WithLabelValues(string(op), "0300")))
	assert.Equal(t, 1, testutil.CollectAndCount(o.exchangeDuration))
}

func TestNewObserver_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewObserver(reg)
	require.NoError(t, err)
	_, err = NewObserver(reg)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewObserver(reg)
	require.NoError(t, err)
	o.Observe(sifen.Event{Type: sifen.EventParseResult, Operation: sifen.OpLookupRUC, State: sifen.StateCompleted, Code: "0502"})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sifen_client_requests_total{operation="ruc-lookup",state="completed"} 1`)
}
