package main

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/expense-engine/config"
)

func TestRun_ListenerFailureIsReturned(t *testing.T) {
	// GIVEN: The configured port is already taken
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	t.Setenv("CONFIG_PATH", "")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = busy.Addr().(*net.TCPAddr).Port
	cfg.Database.Path = ":memory:"
	cfg.Database.SeedDemo = false
	cfg.Currency.RatesURL = ""
	cfg.Currency.RefreshInterval = 0

	// WHEN: Running the server
	done := make(chan error, 1)
	go func() { done <- run(cfg, true, zerolog.Nop()) }()

	// THEN: run returns the bind error instead of exiting the process
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server failed")
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}
