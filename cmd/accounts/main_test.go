package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/accounts/internal/testutil"
)

func Test_run(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)
	mr, _ := testutil.StartRedis(t)

	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	noEnv := func(string) string { return "" }

	t.Run("serve and stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		t.Cleanup(cancel)

		errCh := make(chan error, 1)
		go func() {
			errCh <- run(ctx, noEnv, func() (string, error) { return t.TempDir(), nil }, []string{
				"--address", listenAddr,
				"--log-level", "debug",
				"--environment", "dev",
				"--database", pg.DSN,
				"--redis", "redis://" + mr.Addr(),
				"--secret-key", "secret",
			})
		}()

		require.Eventually(t, func() bool {
			resp, err := http.Get("http://" + listenAddr + "/healthz")
			if err != nil {
				return false
			}
			defer resp.Body.Close() // nolint:errcheck
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp.StatusCode == http.StatusOK
		}, 5*time.Second, 50*time.Millisecond, "server should become healthy")

		cancel()

		select {
		case err := <-errCh:
			require.NoError(t, err, "on correct stop should not return error")
		case <-time.After(10 * time.Second):
			t.Fatal("server should stop after context cancel")
		}
	})

	t.Run("stop with config error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 500*time.Millisecond)
		t.Cleanup(cancel)

		// Try to run without secret key. Must fail
		err := run(ctx, noEnv, func() (string, error) { return t.TempDir(), nil }, []string{
			"--address", listenAddr,
			"--database", pg.DSN,
		})

		require.Error(t, err, "on incorrect config should return error")
	})

	t.Run("stop with bad redis url", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 500*time.Millisecond)
		t.Cleanup(cancel)

		err := run(ctx, noEnv, func() (string, error) { return t.TempDir(), nil }, []string{
			"--address", listenAddr,
			"--database", pg.DSN,
			"--redis", "not-a-url",
			"--secret-key", "secret",
		})

		require.ErrorContains(t, err, "redis")
	})
}
