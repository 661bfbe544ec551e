package browser

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/ahrdadan/selenified/internal/wait"
)

// LightpandaDownloadURL is where the Lightpanda nightly is fetched from
const LightpandaDownloadURL = "https://github.com/lightpanda-io/browser/releases/download/nightly/lightpanda-x86_64-linux"

var lightpandaNames = []string{"lightpanda-x86_64-linux", "lightpanda"}

// LightpandaServer runs a Lightpanda CDP server, used for HTMLUNIT sessions
type LightpandaServer struct {
	binaryPath string
	host       string
	port       int

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
}

// NewLightpandaServer creates a server for the given binary. A zero port picks a free one at Start.
func NewLightpandaServer(binaryPath, host string, port int) *LightpandaServer {
	if host == "" {
		host = "127.0.0.1"
	}
	return &LightpandaServer{binaryPath: binaryPath, host: host, port: port}
}

// Start launches the CDP server and waits until it accepts connections
func (s *LightpandaServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if runtime.GOOS != "linux" {
		return fmt.Errorf("lightpanda only supports linux, current OS: %s", runtime.GOOS)
	}

	if s.port == 0 {
		port, err := freePort(s.host)
		if err != nil {
			return fmt.Errorf("failed to pick a port for lightpanda: %w", err)
		}
		s.port = port
	}

	s.cmd = exec.Command(s.binaryPath, "serve", "--host", s.host, "--port", strconv.Itoa(s.port))
	s.cmd.Stdout = os.Stdout
	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start lightpanda: %w", err)
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	_, ok := wait.Until(10*time.Second, 100*time.Millisecond, func() bool {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	})
	if !ok {
		s.kill()
		return fmt.Errorf("lightpanda did not start listening on %s", addr)
	}

	s.running = true
	log.Printf("Lightpanda started on %s", addr)
	return nil
}

// Stop kills the CDP server
func (s *LightpandaServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.kill()
	s.running = false
	log.Println("Lightpanda stopped")
	return nil
}

func (s *LightpandaServer) kill() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Kill(); err != nil {
		log.Printf("Warning: failed to kill lightpanda process: %v", err)
	}
	if err := s.cmd.Wait(); err != nil {
		log.Printf("Warning: failed to wait for lightpanda process: %v", err)
	}
	s.cmd = nil
}

// IsRunning reports whether the server is up
func (s *LightpandaServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Endpoint returns the CDP websocket address
func (s *LightpandaServer) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("ws://%s", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
}

func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// EnsureLightpandaBinary finds the Lightpanda binary next to the executable or in
// ./browser, downloading it when missing. It reports false when Lightpanda cannot
// run on this platform.
func EnsureLightpandaBinary() (string, bool, error) {
	if runtime.GOOS != "linux" {
		log.Printf("Warning: lightpanda only supports linux, current OS: %s", runtime.GOOS)
		return "", false, nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return "", false, err
	}
	execDir := filepath.Dir(execPath)

	for _, dir := range []string{execDir, filepath.Join(execDir, "browser"), "./browser", "."} {
		for _, name := range lightpandaNames {
			path := filepath.Join(dir, name)
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			if info.Mode()&0111 == 0 {
				if err := os.Chmod(path, info.Mode()|0755); err != nil {
					log.Printf("Warning: failed to make %s executable: %v", path, err)
				}
			}
			return path, true, nil
		}
	}

	dir := filepath.Join(execDir, "browser")
	if err := os.MkdirAll(dir, 0755); err != nil {
		dir = "./browser"
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", false, fmt.Errorf("failed to create browser directory: %w", err)
		}
	}

	path := filepath.Join(dir, lightpandaNames[0])
	if err := downloadLightpanda(path); err != nil {
		return "", false, err
	}
	return path, true, nil
}

func downloadLightpanda(dest string) error {
	log.Printf("Downloading Lightpanda from %s", LightpandaDownloadURL)

	resp, err := http.Get(LightpandaDownloadURL)
	if err != nil {
		return fmt.Errorf("failed to download lightpanda: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lightpanda download failed with status: %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to save lightpanda: %w", err)
	}

	if err := os.Chmod(dest, 0755); err != nil {
		return fmt.Errorf("failed to make executable: %w", err)
	}

	log.Printf("Lightpanda installed at %s", dest)
	return nil
}
