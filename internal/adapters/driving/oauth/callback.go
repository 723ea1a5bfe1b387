// Package oauth provides the local OAuth callback server and browser
// utilities used by the interactive login flow.
package oauth

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driven"
)

const (
	// BasePort is the first port probed when binding the callback listener.
	BasePort = 8080
	// portProbeRange is how many consecutive ports are tried before the
	// flow gives up and reports the callback server unavailable.
	portProbeRange = 20
)

// Ensure CallbackServer implements the driven port.
var _ driven.CallbackServer = (*CallbackServer)(nil)

// CallbackServer receives the OAuth authorization redirect on localhost.
// One instance serves one authorization flow: only the first code delivered
// is accepted, later hits are rejected as duplicates.
type CallbackServer struct {
	logger *slog.Logger

	mu            sync.Mutex
	running       bool
	port          int
	expectedState string
	delivered     bool
	server        *http.Server
	codeChan      chan string
	errChan       chan error
}

// NewCallbackServer creates a callback server. It does not bind a port until
// Start is called.
func NewCallbackServer(logger *slog.Logger) *CallbackServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackServer{
		logger:   logger,
		codeChan: make(chan string, 1),
		errChan:  make(chan error, 1),
	}
}

// SetExpectedState sets the state parameter the redirect must echo back.
// An empty value disables the check.
func (s *CallbackServer) SetExpectedState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedState = state
}

// Start binds the first free port at or above BasePort and begins listening.
// Idempotent: a second call while running returns the existing port without
// rebinding, so concurrent callers of the login flow share one listener.
func (s *CallbackServer) Start(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.port, nil
	}

	listener, port, err := bindFirstFree(BasePort, BasePort+portProbeRange-1)
	if err != nil {
		return 0, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.port = port
	s.running = true

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errChan <- err:
			default:
			}
		}
	}()

	s.logger.Debug("callback server listening", "port", port)
	return port, nil
}

// bindFirstFree probes upward through the port range, treating "address in
// use" as a signal to try the next port.
func bindFirstFree(from, to int) (net.Listener, int, error) {
	for port := from; port <= to; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return listener, port, nil
		}
	}
	return nil, 0, fmt.Errorf("no free port in %d-%d: %w", from, to, domain.ErrCallbackUnavailable)
}

// handleCallback processes the OAuth redirect request.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		errDesc := query.Get("error_description")
		s.deliverErr(fmt.Errorf("provider error: %s - %s", errParam, errDesc))
		writePage(w, "Authorization failed", html.EscapeString(errDesc))
		return
	}

	s.mu.Lock()
	expected := s.expectedState
	delivered := s.delivered
	s.mu.Unlock()

	if delivered {
		// The flow already completed; never overwrite a resolved code.
		w.WriteHeader(http.StatusConflict)
		writePage(w, "Authorization already completed", "This window can be closed.")
		return
	}

	// A bad state must not consume the flow: the genuine redirect may still
	// arrive, so reject this request without marking anything delivered.
	if expected != "" && query.Get("state") != expected {
		s.logger.Warn("callback with mismatched state rejected")
		w.WriteHeader(http.StatusBadRequest)
		writePage(w, "Authorization failed", "Invalid state parameter.")
		return
	}

	code := query.Get("code")
	if code == "" {
		s.deliverErr(fmt.Errorf("no authorization code in redirect"))
		writePage(w, "Authorization failed", "No code received.")
		return
	}

	s.mu.Lock()
	if s.delivered {
		s.mu.Unlock()
		w.WriteHeader(http.StatusConflict)
		writePage(w, "Authorization already completed", "This window can be closed.")
		return
	}
	s.delivered = true
	s.mu.Unlock()

	select {
	case s.codeChan <- code:
	default:
	}

	writePage(w, "Authorization successful", "You can close this window and return to the application.")
}

func (s *CallbackServer) deliverErr(err error) {
	select {
	case s.errChan <- err:
	default:
	}
}

// WaitForCode blocks until the redirect delivers an authorization code, the
// wall-clock timeout elapses, or ctx is cancelled.
func (s *CallbackServer) WaitForCode(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case code := <-s.codeChan:
		return code, nil
	case err := <-s.errChan:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("waited %s for authorization redirect: %w", timeout, domain.ErrCallbackTimeout)
	}
}

// RedirectURI returns the redirect URI for the bound port.
func (s *CallbackServer) RedirectURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("http://localhost:%d/callback", s.port)
}

// Shutdown stops the listener and releases the port. Safe to call even if
// Start never ran.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func writePage(w http.ResponseWriter, title, message string) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Meta Ads MCP</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: #FAFAFA;
        }
        .container {
            text-align: center;
            background: white;
            padding: 48px 64px;
            border-radius: 16px;
            border: 1px solid #C7C8CC;
            box-shadow: 0 4px 24px rgba(0,0,0,0.08);
        }
        h1 {
            color: #333F50;
            margin: 0 0 8px 0;
            font-size: 24px;
            font-weight: 600;
        }
        p {
            color: #7B8088;
            margin: 0;
            font-size: 16px;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>`, title, message)
}

// OpenBrowser opens the default browser to the given URL.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
