// internal/network/dialer.go
package network

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialerConfig configures the TCP connections under the fragment client.
// Proxying is left to http.Transport.Proxy.
type DialerConfig struct {
	Timeout   time.Duration
	KeepAlive time.Duration
	// NoDelay sets TCP_NODELAY. Fragments are small and latency bound.
	NoDelay  bool
	Resolver *net.Resolver
}

// NewDialerConfig returns the defaults used by the fragment client.
func NewDialerConfig() *DialerConfig {
	return &DialerConfig{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAliveInterval,
		NoDelay:   true,
		Resolver:  net.DefaultResolver,
	}
}

// Clone returns a copy that can be modified independently.
func (c *DialerConfig) Clone() *DialerConfig {
	if c == nil {
		return NewDialerConfig()
	}
	clone := *c
	return &clone
}

// DialTCPContext opens a TCP connection with the configured timeouts. It
// has the signature of http.Transport.DialContext.
func DialTCPContext(ctx context.Context, network, address string, config *DialerConfig) (net.Conn, error) {
	if config == nil {
		config = NewDialerConfig()
	}
	dialer := &net.Dialer{
		Timeout:       config.Timeout,
		KeepAlive:     config.KeepAlive,
		FallbackDelay: 300 * time.Millisecond,
		Resolver:      config.Resolver,
	}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(config.NoDelay); err != nil {
			_ = tcp.Close()
			return nil, fmt.Errorf("set TCP_NODELAY on %s: %w", address, err)
		}
	}
	return conn, nil
}
