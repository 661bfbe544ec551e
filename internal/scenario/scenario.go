// Package scenario describes a test as data, so suites can be written as YAML
// or JSON files and run from the CLI or submitted to the server.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahrdadan/selenified/internal/browser"
	"github.com/ahrdadan/selenified/internal/locator"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownAction is returned for steps naming an action the runner lacks
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidStep is returned for steps missing what their action needs
	ErrInvalidStep = errors.New("invalid step")
)

// Check modes
const (
	ModeAssert = "assert"
	ModeVerify = "verify"
	ModeWait   = "wait"
)

var validate = validator.New()

// Scenario is one test: where it starts and the steps it performs
type Scenario struct {
	Name       string `json:"name" yaml:"name" validate:"required"`
	Group      string `json:"group,omitempty" yaml:"group,omitempty"`
	Suite      string `json:"suite,omitempty" yaml:"suite,omitempty"`
	Author     string `json:"author,omitempty" yaml:"author,omitempty"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	Objectives string `json:"objectives,omitempty" yaml:"objectives,omitempty"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Browser    string `json:"browser,omitempty" yaml:"browser,omitempty"`
	Steps      []Step `json:"steps" yaml:"steps" validate:"required,min=1,dive"`

	RunID string `json:"-" yaml:"-"` // set for runs submitted to the server
}

// Locator finds the element a step works on
type Locator struct {
	Type  locator.Type `json:"type" yaml:"type"`
	Value string       `json:"value" yaml:"value" validate:"required"`
	Match int          `json:"match,omitempty" yaml:"match,omitempty" validate:"gte=0"`
}

// Step is a single action or check
type Step struct {
	Action  string               `json:"action" yaml:"action" validate:"required"`
	Locator *Locator             `json:"locator,omitempty" yaml:"locator,omitempty"`
	Name    string               `json:"name,omitempty" yaml:"name,omitempty"` // attribute or cookie name
	Value   string               `json:"value,omitempty" yaml:"value,omitempty"`
	Values  []string             `json:"values,omitempty" yaml:"values,omitempty"`
	Index   int                  `json:"index,omitempty" yaml:"index,omitempty"`
	Row     int                  `json:"row,omitempty" yaml:"row,omitempty" validate:"gte=0"`
	Col     int                  `json:"col,omitempty" yaml:"col,omitempty" validate:"gte=0"`
	Cookie  *browser.CookieParam `json:"cookie,omitempty" yaml:"cookie,omitempty"`
	Mode    string               `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=assert verify wait"`
	Timeout float64              `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0"` // seconds
}

// mode returns the check mode, verify when unset
func (s Step) mode() string {
	if s.Mode == "" {
		return ModeVerify
	}
	return s.Mode
}

func (s Step) timeout() time.Duration {
	return time.Duration(s.Timeout * float64(time.Second))
}

// String describes the step for progress messages
func (s Step) String() string {
	var b strings.Builder
	b.WriteString(s.Action)
	if s.Locator != nil {
		fmt.Fprintf(&b, " %s=%s", s.Locator.Type, s.Locator.Value)
	}
	if s.Name != "" {
		fmt.Fprintf(&b, " %s", s.Name)
	}
	if s.Value != "" {
		fmt.Fprintf(&b, " %q", s.Value)
	}
	return b.String()
}

// Info returns the report metadata of the scenario
func (sc *Scenario) Info() report.Info {
	return report.Info{
		Name:       sc.Name,
		Group:      sc.Group,
		Suite:      sc.Suite,
		Version:    sc.Version,
		Author:     sc.Author,
		Objectives: sc.Objectives,
		URL:        sc.URL,
		Browser:    sc.Browser,
		RunID:      sc.RunID,
	}
}

// Validate checks the scenario's fields and that every step names a known
// action with what that action needs
func (sc *Scenario) Validate() error {
	if err := validate.Struct(sc); err != nil {
		return fmt.Errorf("scenario %q: %w", sc.Name, err)
	}
	for i, s := range sc.Steps {
		if err := s.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	act, ok := actions[s.Action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, s.Action)
	}
	switch {
	case act.needs&needLocator != 0 && s.Locator == nil:
		return fmt.Errorf("%w: %s needs a locator", ErrInvalidStep, s.Action)
	case act.needs&needValue != 0 && s.Value == "":
		return fmt.Errorf("%w: %s needs a value", ErrInvalidStep, s.Action)
	case act.needs&needName != 0 && s.Name == "":
		return fmt.Errorf("%w: %s needs a name", ErrInvalidStep, s.Action)
	case act.needs&needCookie != 0 && s.Cookie == nil:
		return fmt.Errorf("%w: %s needs a cookie", ErrInvalidStep, s.Action)
	case act.needs&needLocalPath != 0 && !filepath.IsLocal(s.Value):
		return fmt.Errorf("%w: %s path %q must be relative to the report directory", ErrInvalidStep, s.Action, s.Value)
	}
	return nil
}

// Parse reads a scenario from YAML or JSON and validates it
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}
