package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/devices"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Options control how a session is opened
type Options struct {
	Browser       Browser
	Hub           string // rod manager, DevTools websocket, or http debugging address
	Headless      bool
	Proxy         string
	ChromeBin     string
	LightpandaBin string // located or downloaded when empty
}

// Session owns the browser a single test runs against
type Session struct {
	opts   Options
	engine Engine

	mu         sync.Mutex
	restartMu  sync.Mutex
	launcher   *launcher.Launcher
	lightpanda *LightpandaServer
	browser    *rod.Browser
	endpoint   string
	running    bool
}

// Open starts or connects to the browser described by opts
func Open(ctx context.Context, opts Options) (*Session, error) {
	engine, err := EngineFor(opts.Browser, opts.Hub != "")
	if err != nil {
		return nil, err
	}
	if engine == EngineNone {
		return nil, ErrNoSession
	}

	s := &Session{opts: opts, engine: engine}
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	var err error
	switch s.engine {
	case EngineChromium:
		err = s.launchChromium()
	case EngineLightpanda:
		err = s.launchLightpanda()
	case EngineHub:
		err = s.connectHub()
	default:
		err = ErrNoSession
	}
	if err != nil {
		return err
	}

	s.browser = s.browser.Context(ctx)
	s.running = true
	log.Printf("%s session started on %s (%s)", s.opts.Browser, s.endpoint, s.engine)
	return nil
}

func (s *Session) launchChromium() error {
	l := launcher.New().Headless(s.opts.Headless || s.opts.Browser == PHANTOMJS)
	if bin := s.binary(); bin != "" {
		l.Bin(bin)
	}
	if s.opts.Proxy != "" {
		l.Proxy(s.opts.Proxy)
	}

	wsURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch %s: %w", s.opts.Browser, err)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return fmt.Errorf("failed to connect to %s: %w", s.opts.Browser, err)
	}

	s.launcher = l
	s.browser = b
	s.endpoint = wsURL
	return nil
}

// binary picks the executable for Chromium based browsers, falling back to the
// launcher's own lookup (and download) when nothing specific is installed
func (s *Session) binary() string {
	if s.opts.ChromeBin != "" {
		return s.opts.ChromeBin
	}

	var candidates []string
	switch s.opts.Browser {
	case EDGE:
		candidates = []string{"microsoft-edge", "microsoft-edge-stable", "msedge"}
	case OPERA:
		candidates = []string{"opera", "opera-stable"}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	if len(candidates) > 0 {
		log.Printf("Warning: no %s binary found, using chromium", s.opts.Browser)
	}
	return ""
}

func (s *Session) launchLightpanda() error {
	bin := s.opts.LightpandaBin
	if bin == "" {
		path, ok, err := EnsureLightpandaBinary()
		if err != nil {
			return fmt.Errorf("failed to install lightpanda: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: lightpanda is not available on this platform", ErrUnsupportedLocally)
		}
		bin = path
	}

	server := NewLightpandaServer(bin, "127.0.0.1", 0)
	if err := server.Start(); err != nil {
		return err
	}

	wsURL, err := launcher.ResolveURL(server.Endpoint())
	if err != nil {
		wsURL = server.Endpoint()
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		server.Stop()
		return fmt.Errorf("failed to connect to lightpanda: %w", err)
	}

	s.lightpanda = server
	s.browser = b
	s.endpoint = wsURL
	return nil
}

func (s *Session) connectHub() error {
	hub := s.opts.Hub
	u, err := url.Parse(hub)
	if err != nil {
		return fmt.Errorf("invalid hub %q: %w", hub, err)
	}

	var b *rod.Browser
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		wsURL, err := launcher.ResolveURL(hub)
		if err != nil {
			return fmt.Errorf("failed to resolve hub %s: %w", hub, err)
		}
		b = rod.New().ControlURL(wsURL)
		s.endpoint = wsURL
	case strings.Contains(u.Path, "/devtools/"):
		b = rod.New().ControlURL(hub)
		s.endpoint = hub
	default:
		l, err := launcher.NewManaged(hub)
		if err != nil {
			return fmt.Errorf("failed to reach hub %s: %w", hub, err)
		}
		l.Headless(s.opts.Headless)
		if s.opts.Proxy != "" {
			l.Proxy(s.opts.Proxy)
		}
		client, err := l.Client()
		if err != nil {
			return fmt.Errorf("failed to get a browser from hub %s: %w", hub, err)
		}
		b = rod.New().Client(client)
		s.endpoint = hub
	}

	if err := b.Connect(); err != nil {
		return fmt.Errorf("failed to connect to hub %s: %w", hub, err)
	}
	s.browser = b
	return nil
}

// Close kills the browser and removes anything the launcher left behind
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			log.Printf("Warning: failed to close %s: %v", s.opts.Browser, err)
		}
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	if s.lightpanda != nil {
		if err := s.lightpanda.Stop(); err != nil {
			log.Printf("Warning: failed to stop lightpanda: %v", err)
		}
	}

	s.launcher = nil
	s.lightpanda = nil
	s.browser = nil
	s.endpoint = ""
	s.running = false
	return nil
}

// IsRunning reports whether the session is open
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Browser returns the underlying rod browser
func (s *Session) Browser() *rod.Browser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser
}

// Kind returns which browser the session emulates
func (s *Session) Kind() Browser {
	return s.opts.Browser
}

// Engine returns what drives the session
func (s *Session) Engine() Engine {
	return s.engine
}

// Endpoint returns the DevTools address of the session
func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// NewPage opens a blank page, restarting the browser once if its connection dropped
func (s *Session) NewPage(ctx context.Context) (*rod.Page, error) {
	b := s.Browser()
	if b == nil {
		return nil, ErrNoSession
	}

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		if !isConnectionError(err) {
			return nil, fmt.Errorf("failed to create new page: %w", err)
		}

		if restartErr := s.restart(ctx); restartErr != nil {
			return nil, fmt.Errorf("failed to restart %s after connection error: %w", s.opts.Browser, restartErr)
		}

		page, err = s.Browser().Context(ctx).Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, fmt.Errorf("failed to create new page: %w", err)
		}
	}

	if device, ok := deviceFor(s.opts.Browser); ok {
		if err := page.Emulate(device); err != nil {
			page.Close()
			return nil, fmt.Errorf("failed to emulate %s: %w", s.opts.Browser, err)
		}
	}

	return page, nil
}

// Pages returns every open page of the session
func (s *Session) Pages() (rod.Pages, error) {
	b := s.Browser()
	if b == nil {
		return nil, ErrNoSession
	}
	return b.Pages()
}

func (s *Session) restart(ctx context.Context) error {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	if err := s.Close(); err != nil {
		log.Printf("Warning: failed to stop %s before restart: %v", s.opts.Browser, err)
	}
	return s.start(ctx)
}

func deviceFor(b Browser) (devices.Device, bool) {
	switch b {
	case ANDROID:
		return devices.Pixel2, true
	case IPHONE:
		return devices.IPhoneX, true
	case IPAD:
		return devices.IPad, true
	default:
		return devices.Device{}, false
	}
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "eof")
}
