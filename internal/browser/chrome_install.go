package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
)

// LookChrome returns the path of a locally installed Chromium, if any
func LookChrome() (string, bool) {
	return launcher.LookPath()
}

// ChromeInstall prepares a host for local CHROME and EDGE runs: the system
// libraries Chromium links against, then a pinned revision in rod's cache.
type ChromeInstall struct {
	// Revision pins the Chromium build. Zero uses rod's default revision.
	Revision int
	// SkipDeps leaves system packages alone
	SkipDeps bool
	// Out receives one line per command run; nil discards them
	Out io.Writer

	goos     string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// ChromeInstallResult says what an install did
type ChromeInstallResult struct {
	Path           string
	Revision       int
	PackageManager string // empty when no packages were installed
	Cached         bool   // the revision was already downloaded
}

// Run installs missing system packages and downloads the pinned revision.
// A revision already in the cache is reused without touching the system.
func (ci ChromeInstall) Run(ctx context.Context) (ChromeInstallResult, error) {
	res := ChromeInstallResult{Revision: ci.revision()}

	downloader := launcher.NewBrowser()
	downloader.Context = ctx
	downloader.Revision = res.Revision
	if downloader.Validate() == nil {
		res.Path = downloader.BinPath()
		res.Cached = true
		return res, nil
	}

	if !ci.SkipDeps {
		manager, cmds, err := ci.plan()
		if err != nil {
			return res, err
		}
		for _, args := range cmds {
			if err := ci.runStep(ctx, args); err != nil {
				return res, err
			}
		}
		res.PackageManager = manager
	}

	path, err := downloader.Get()
	if err != nil {
		return res, fmt.Errorf("failed to download chromium r%d: %w", res.Revision, err)
	}
	res.Path = path
	return res, nil
}

func (ci ChromeInstall) revision() int {
	if ci.Revision > 0 {
		return ci.Revision
	}
	return launcher.RevisionDefault
}

// packageManager installs one family of chromium dependencies
type packageManager struct {
	bin     string
	refresh []string
	install []string
	family  string
}

var packageManagers = []packageManager{
	{bin: "apt-get", refresh: []string{"update"}, install: []string{"install", "-y", "--no-install-recommends"}, family: "deb"},
	{bin: "dnf", install: []string{"install", "-y"}, family: "rpm"},
	{bin: "yum", install: []string{"install", "-y"}, family: "rpm"},
	{bin: "apk", install: []string{"add", "--no-cache"}, family: "apk"},
}

// chromeDeps are the libraries a headless Chromium needs, per package family
var chromeDeps = map[string][]string{
	"deb": {
		"ca-certificates", "fonts-liberation", "libasound2", "libatk-bridge2.0-0",
		"libcups2", "libdrm2", "libgbm1", "libgtk-3-0", "libnss3",
		"libxcomposite1", "libxdamage1", "libxrandr2", "libxkbcommon0",
	},
	"rpm": {
		"alsa-lib", "atk", "cups-libs", "gtk3", "libXcomposite", "libXdamage",
		"libXrandr", "libxkbcommon", "mesa-libgbm", "nss",
	},
	"apk": {
		"ca-certificates", "nss", "ttf-freefont", "alsa-lib", "at-spi2-atk",
		"cups-libs", "libxcomposite", "libxdamage", "libxrandr", "mesa-gbm", "gtk+3.0",
	},
}

// plan returns the first available package manager and the commands that
// install the dependencies with it. Nothing is planned outside linux.
func (ci ChromeInstall) plan() (string, [][]string, error) {
	goos := ci.goos
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos != "linux" {
		return "", nil, nil
	}

	lookPath := ci.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, pm := range packageManagers {
		path, err := lookPath(pm.bin)
		if err != nil {
			continue
		}
		var cmds [][]string
		if len(pm.refresh) > 0 {
			cmds = append(cmds, append([]string{path}, pm.refresh...))
		}
		install := append([]string{path}, pm.install...)
		cmds = append(cmds, append(install, chromeDeps[pm.family]...))
		return pm.bin, cmds, nil
	}
	return "", nil, fmt.Errorf("no supported package manager found for chromium dependencies")
}

func (ci ChromeInstall) runStep(ctx context.Context, args []string) error {
	if ci.Out != nil {
		fmt.Fprintf(ci.Out, "+ %s\n", strings.Join(args, " "))
	}
	run := ci.run
	if run == nil {
		run = runCommand
	}
	return run(ctx, args[0], args[1:]...)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v failed: %w\n%s", name, args, err, out.String())
	}
	return nil
}
