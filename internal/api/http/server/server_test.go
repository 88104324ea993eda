package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	netserver "github.com/keyward/keyward-server/internal/server"
)

func TestHTTPServer(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("address", func(t *testing.T) {
		s := NewHTTPServer(handler, ":8080")
		assert.Equal(t, ":8080", s.Address())
	})

	t.Run("start and stop", func(t *testing.T) {
		s := NewHTTPServer(handler, "127.0.0.1:0")

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- s.Start(netserver.NewPlainListener())
		}()

		// Give the listener a moment to bind.
		time.Sleep(100 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Stop(ctx))

		select {
		case err := <-serveErr:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		s := NewHTTPServer(handler, "invalid-address")

		err := s.Start(netserver.NewPlainListener())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to listen")
	})
}
