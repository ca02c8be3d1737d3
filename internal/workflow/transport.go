package workflow

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go-label-inspector/internal/config"
)

// newHTTPClient builds the pooled client shared by every invocation.
// Connect, read and write timeouts are enforced independently: the dialer
// bounds connection setup and deadlineConn bounds each individual read or
// write, so a workflow that streams for minutes is never cut off as long as
// bytes keep arriving.
func newHTTPClient(cfg config.WorkflowConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{
				Conn:         conn,
				readTimeout:  cfg.ReadTimeout,
				writeTimeout: cfg.WriteTimeout,
			}, nil
		},

		// Connection pooling
		MaxConnsPerHost:     cfg.MaxConns,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 64 << 10,
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("too many redirects (limit: 3)")
			}
			return nil
		},
	}
}

// deadlineConn refreshes the read or write deadline before every I/O call
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
