// internal/network/dialer_test.go
package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialerConfig_Clone(t *testing.T) {
	var nilCfg *DialerConfig
	assert.Equal(t, NewDialerConfig(), nilCfg.Clone())

	orig := NewDialerConfig()
	clone := orig.Clone()
	clone.NoDelay = false
	clone.Timeout = time.Second
	assert.True(t, orig.NoDelay)
	assert.Equal(t, DefaultDialTimeout, orig.Timeout)
}

func TestDialTCPContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			_ = c.Close()
		}
	}()

	conn, err := DialTCPContext(context.Background(), "tcp", ln.Addr().String(), nil)
	require.NoError(t, err)
	_, ok := conn.(*net.TCPConn)
	assert.True(t, ok)
	require.NoError(t, conn.Close())
}

func TestDialTCPContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DialTCPContext(ctx, "tcp", "127.0.0.1:1", NewDialerConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial 127.0.0.1:1")
}
