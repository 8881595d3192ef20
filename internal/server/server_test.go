package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A generation response is only written after a long inference call, so a
// shutdown must drain in-flight requests instead of cancelling their
// contexts.
func TestStopDrainsInFlightRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			w.WriteHeader(http.StatusServiceUnavailable)
		case <-release:
			w.WriteHeader(http.StatusOK)
		}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &Server{httpServer: &http.Server{Handler: handler}}
	appCtx := context.Background()

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.serve(appCtx, ln) }()

	responses := make(chan *http.Response, 1)
	requestErrs := make(chan error, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			requestErrs <- err
			return
		}
		responses <- resp
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the handler")
	}

	stopDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopDone <- srv.Stop(ctx)
	}()

	// Shutdown is underway; the blocked handler must still be allowed to
	// finish its response.
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case resp := <-responses:
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "in-flight request must complete through shutdown")
	case err := <-requestErrs:
		t.Fatalf("in-flight request aborted: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight request never completed")
	}

	require.NoError(t, <-stopDone)
	require.NoError(t, <-serveDone)
}
