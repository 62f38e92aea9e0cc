package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOptions(t *testing.T) {
	opts := mergeOptions(nil)
	assert.Equal(t, ":9100", opts.Addr)
	assert.Equal(t, "/metrics", opts.Path)
	assert.NotNil(t, opts.Logger)

	opts = mergeOptions(&PromServerOpts{Addr: ":9200", ShutdownTimeout: time.Second})
	assert.Equal(t, ":9200", opts.Addr)
	assert.Equal(t, "/metrics", opts.Path)
	assert.Equal(t, time.Second, opts.ShutdownTimeout)
	assert.Equal(t, 3*time.Second, opts.ReadHeaderTimeout)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(MessagesReceived.WithLabelValues("test/topic"))
	MessagesReceived.WithLabelValues("test/topic").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MessagesReceived.WithLabelValues("test/topic")))
}

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestStartPrometheusServer(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	StartPrometheusServer(ctx, &wg, &PromServerOpts{Addr: addr})
	RowsInserted.WithLabelValues("alerts").Inc()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(body), "quakebridge_rows_inserted_total")

	cancel()
	wg.Wait()
}
