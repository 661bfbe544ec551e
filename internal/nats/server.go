// Package nats runs or connects to the NATS server that carries queued suite
// runs and their live steps.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ahrdadan/selenified/internal/wait"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	startTimeout = 10 * time.Second
	dialTimeout  = 2 * time.Second
)

// ErrNotRunning is returned when the server is used before Start
var ErrNotRunning = errors.New("nats server is not running")

// ServerConfig holds configuration for the NATS server
type ServerConfig struct {
	BinPath  string
	StoreDir string
	URL      string
	AutoDL   bool
}

// Server connects to the NATS server at URL, starting a local nats-server with
// JetStream when nothing is listening there
type Server struct {
	cfg     ServerConfig
	cmd     *exec.Cmd
	nc      *nats.Conn
	js      jetstream.JetStream
	mu      sync.Mutex
	running bool
}

// NewServer creates a server manager. The binary is only required, and
// fetched, once Start finds no server to connect to.
func NewServer(cfg ServerConfig) (*Server, error) {
	if _, _, err := hostPort(cfg.URL); err != nil {
		return nil, err
	}
	return &Server{cfg: cfg}, nil
}

// Start connects to the configured server, launching one first if needed
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if reachable(s.cfg.URL) {
		log.Printf("NATS server already running at %s", s.cfg.URL)
		if err := s.connect(); err != nil {
			return err
		}
		s.running = true
		return nil
	}

	if err := s.launch(ctx); err != nil {
		return err
	}
	if _, ok := wait.Until(startTimeout, 100*time.Millisecond, func() bool { return reachable(s.cfg.URL) }); !ok {
		s.kill()
		return fmt.Errorf("NATS server did not start listening at %s within %s", s.cfg.URL, startTimeout)
	}
	if err := s.connect(); err != nil {
		s.kill()
		return err
	}

	s.running = true
	log.Printf("NATS server started at %s with JetStream enabled", s.cfg.URL)
	return nil
}

func (s *Server) launch(ctx context.Context) error {
	bin, err := EnsureNATSBinary(s.cfg.BinPath, s.cfg.AutoDL)
	if err != nil {
		return fmt.Errorf("failed to ensure NATS binary: %w", err)
	}
	store, err := filepath.Abs(s.cfg.StoreDir)
	if err != nil {
		return fmt.Errorf("failed to resolve NATS store dir: %w", err)
	}
	if err := os.MkdirAll(store, 0o755); err != nil {
		return fmt.Errorf("failed to create NATS store dir: %w", err)
	}
	host, port, err := hostPort(s.cfg.URL)
	if err != nil {
		return err
	}

	s.cmd = exec.CommandContext(ctx, bin, "-js", "-sd", store, "-a", host, "-p", port)
	s.cmd.Stdout = os.Stdout
	s.cmd.Stderr = os.Stderr
	if err := s.cmd.Start(); err != nil {
		s.cmd = nil
		return fmt.Errorf("failed to start NATS server: %w", err)
	}
	return nil
}

// Stop closes the connection and stops a server this manager launched
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
		s.nc = nil
	}
	s.js = nil
	s.kill()
	s.running = false

	log.Println("NATS server stopped")
	return nil
}

func (s *Server) kill() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Kill(); err != nil {
		log.Printf("Warning: failed to kill NATS process: %v", err)
	}
	_ = s.cmd.Wait()
	s.cmd = nil
}

// IsRunning reports whether Start succeeded and Stop has not been called
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Launched reports whether this manager started the nats-server process
func (s *Server) Launched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// GetConnection returns the NATS connection
func (s *Server) GetConnection() (*nats.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc == nil {
		return nil, ErrNotRunning
	}
	return s.nc, nil
}

// GetJetStream returns the JetStream context
func (s *Server) GetJetStream() (jetstream.JetStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.js == nil {
		return nil, ErrNotRunning
	}
	return s.js, nil
}

func (s *Server) connect() error {
	nc, err := nats.Connect(s.cfg.URL, nats.Name("selenified"), nats.Timeout(dialTimeout))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}
	s.nc = nc
	s.js = js
	return nil
}

func reachable(natsURL string) bool {
	host, port, err := hostPort(natsURL)
	if err != nil {
		return false
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// hostPort splits a nats:// URL, defaulting to the standard client port
func hostPort(natsURL string) (string, string, error) {
	u, err := url.Parse(natsURL)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid NATS URL: %q", natsURL)
	}
	port := u.Port()
	if port == "" {
		port = "4222"
	}
	return u.Hostname(), port, nil
}
