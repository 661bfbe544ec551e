package browser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidBrowser is returned for browser names that are not recognized
	ErrInvalidBrowser = errors.New("invalid browser")
	// ErrUnsupportedLocally is returned for browsers that can only run on a hub
	ErrUnsupportedLocally = errors.New("browser requires a hub")
	// ErrNoSession is returned when a session is requested for NONE
	ErrNoSession = errors.New("no browser session")
)

// Browser is a browser a test can run against
type Browser int

const (
	NONE Browser = iota
	HTMLUNIT
	FIREFOX
	MARIONETTE
	CHROME
	INTERNETEXPLORER
	EDGE
	ANDROID
	IPAD
	IPHONE
	OPERA
	SAFARI
	PHANTOMJS
)

var browserNames = [...]string{
	NONE:             "NONE",
	HTMLUNIT:         "HTMLUNIT",
	FIREFOX:          "FIREFOX",
	MARIONETTE:       "MARIONETTE",
	CHROME:           "CHROME",
	INTERNETEXPLORER: "INTERNETEXPLORER",
	EDGE:             "EDGE",
	ANDROID:          "ANDROID",
	IPAD:             "IPAD",
	IPHONE:           "IPHONE",
	OPERA:            "OPERA",
	SAFARI:           "SAFARI",
	PHANTOMJS:        "PHANTOMJS",
}

func (b Browser) String() string {
	if b < 0 || int(b) >= len(browserNames) {
		return fmt.Sprintf("Browser(%d)", int(b))
	}
	return browserNames[b]
}

// Lookup finds a browser by name, ignoring case
func Lookup(name string) (Browser, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range browserNames {
		if n == key {
			return Browser(i), nil
		}
	}
	return NONE, fmt.Errorf("%w: %q", ErrInvalidBrowser, name)
}

// MarshalText implements encoding.TextMarshaler
func (b Browser) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *Browser) UnmarshalText(text []byte) error {
	parsed, err := Lookup(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// IsReal reports whether the browser renders pages, and so can be screenshotted
func (b Browser) IsReal() bool {
	return b != NONE && b != HTMLUNIT
}

// Engine is what actually drives a browser
type Engine int

const (
	EngineNone Engine = iota
	EngineLightpanda
	EngineChromium
	EngineHub
)

func (e Engine) String() string {
	switch e {
	case EngineLightpanda:
		return "lightpanda"
	case EngineChromium:
		return "chromium"
	case EngineHub:
		return "hub"
	default:
		return "none"
	}
}

// EngineFor returns the engine used for b, given whether a hub is configured
func EngineFor(b Browser, hub bool) (Engine, error) {
	if b == NONE {
		return EngineNone, nil
	}
	if hub {
		return EngineHub, nil
	}

	switch b {
	case HTMLUNIT:
		return EngineLightpanda, nil
	case CHROME, EDGE, OPERA, PHANTOMJS, ANDROID, IPHONE, IPAD:
		return EngineChromium, nil
	case FIREFOX, MARIONETTE, INTERNETEXPLORER, SAFARI:
		return EngineNone, fmt.Errorf("%w: %s", ErrUnsupportedLocally, b)
	default:
		return EngineNone, fmt.Errorf("%w: %d", ErrInvalidBrowser, int(b))
	}
}
