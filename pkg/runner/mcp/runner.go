package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/logging"
)

// Transport selects how the MCP server is exposed.
type Transport string

const (
	TransportHTTP  Transport = "http"
	TransportStdio Transport = "stdio"
)

// ParseTransport accepts "http" (also the empty string) or "stdio".
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TransportHTTP:
		return TransportHTTP, nil
	case TransportStdio:
		return TransportStdio, nil
	default:
		return "", fmt.Errorf("unsupported transport %q (expected http or stdio)", s)
	}
}

const (
	defaultListenAddr = "127.0.0.1:8080"
	defaultPath       = "/mcp"
)

// HTTPOptions configures the streamable HTTP transport.
type HTTPOptions struct {
	Addr string
	Path string
	// CertFile and KeyFile enable TLS; both or neither must be set.
	CertFile string
	KeyFile  string
	// OnListening receives the endpoint URL once the listener is bound.
	OnListening func(endpoint string)
}

func (o HTTPOptions) path() string {
	p := strings.TrimSpace(o.Path)
	if p == "" {
		return defaultPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func (o HTTPOptions) tls() (bool, error) {
	cert, key := strings.TrimSpace(o.CertFile), strings.TrimSpace(o.KeyFile)
	if (cert == "") != (key == "") {
		return false, errors.New("both http tls cert and key must be provided")
	}
	return cert != "", nil
}

// Endpoint formats the URL clients use for a bound listener. Wildcard hosts
// are shown as loopback.
func Endpoint(host string, addr net.Addr, path string, secure bool) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return scheme + "://" + addr.String() + path
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
		if tcp.IP != nil && !tcp.IP.IsUnspecified() {
			host = tcp.IP.String()
		}
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(tcp.Port)) + path
}

// Runner serves the sandlab tools and resources over one transport.
type Runner struct {
	Service *Service
	Name    string
	Version string

	Transport Transport
	HTTP      HTTPOptions
}

// Server builds the MCP server with every sandlab tool and resource.
func (r Runner) Server() (*server.MCPServer, error) {
	if r.Service == nil {
		return nil, errors.New("mcp runner requires a service")
	}
	if err := r.Service.ready(); err != nil {
		return nil, err
	}
	name := r.Name
	if name == "" {
		name = "sandlab"
	}
	version := r.Version
	if version == "" {
		version = "dev"
	}

	srv := server.NewMCPServer(
		name+" MCP",
		version,
		server.WithResourceCapabilities(false, false),
		server.WithToolCapabilities(false),
		server.WithInstructions(fmt.Sprintf("Read and fill in the daily %s records. "+
			"Values already committed are write-once; sequences only grow.", r.Service.Workflow.Title)),
		server.WithResourceRecovery(),
		server.WithRecovery(),
	)
	registerResources(srv, r.Service)
	registerTools(srv, r.Service)
	return srv, nil
}

// Do serves until ctx is cancelled or the transport fails.
func (r Runner) Do(ctx context.Context) error {
	srv, err := r.Server()
	if err != nil {
		return err
	}
	switch r.Transport {
	case "", TransportHTTP:
		return r.serveHTTP(ctx, srv)
	case TransportStdio:
		return server.ServeStdio(srv)
	}
	return fmt.Errorf("unknown MCP transport %q", r.Transport)
}

func (r Runner) serveHTTP(ctx context.Context, srv *server.MCPServer) error {
	secure, err := r.HTTP.tls()
	if err != nil {
		return err
	}
	addr := r.HTTP.Addr
	if addr == "" {
		addr = defaultListenAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("listen address %q: %w", addr, err)
	}
	path := r.HTTP.path()

	mux := http.NewServeMux()
	mux.Handle(path, server.NewStreamableHTTPServer(srv))
	httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	endpoint := Endpoint(host, ln.Addr(), path, secure)
	logging.OrNop(r.Service.Logger).Info("mcp listening", zap.String("endpoint", endpoint))
	if r.HTTP.OnListening != nil {
		r.HTTP.OnListening(endpoint)
	}

	errCh := make(chan error, 1)
	go func() {
		if secure {
			errCh <- httpSrv.ServeTLS(ln, r.HTTP.CertFile, r.HTTP.KeyFile)
			return
		}
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
