package daemon

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsServerStartAndStop(t *testing.T) {
	s := NewMetricsServer("127.0.0.1:0", http.NotFoundHandler())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestMetricsServerFailsFastOnTakenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := NewMetricsServer(ln.Addr().String(), http.NotFoundHandler())
	err = s.Start()
	require.Error(t, err)
	require.Contains(t, err.Error(), "metrics listen")
}
