package nats

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// NATSVersion is the nats-server release fetched when no binary is present
const NATSVersion = "2.10.24"

const downloadTimeout = 5 * time.Minute

// DownloadURL returns the release archive of nats-server for goos and goarch
func DownloadURL(goos, goarch string) (string, error) {
	switch goos {
	case "linux", "darwin", "windows":
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
	switch goarch {
	case "amd64", "arm64":
	default:
		return "", fmt.Errorf("unsupported architecture: %s", goarch)
	}
	return fmt.Sprintf(
		"https://github.com/nats-io/nats-server/releases/download/v%[1]s/nats-server-v%[1]s-%[2]s-%[3]s.zip",
		NATSVersion, goos, goarch,
	), nil
}

// EnsureNATSBinary returns binPath when a nats-server binary is there, and
// otherwise downloads one to it if autoDL is set
func EnsureNATSBinary(binPath string, autoDL bool) (string, error) {
	if _, err := os.Stat(binPath); err == nil {
		log.Printf("NATS server binary found at %s", binPath)
		return binPath, nil
	}
	if !autoDL {
		return "", fmt.Errorf("NATS server binary not found at %s and auto-download is disabled", binPath)
	}

	url, err := DownloadURL(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(binPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", binPath, err)
	}

	archive, err := download(url)
	if err != nil {
		return "", err
	}
	defer os.Remove(archive)

	if err := extractBinary(archive, binPath, binaryName(runtime.GOOS)); err != nil {
		return "", fmt.Errorf("failed to extract NATS server: %w", err)
	}
	log.Printf("NATS server %s installed at %s", NATSVersion, binPath)
	return binPath, nil
}

// download saves url to a temporary file and returns its path
func download(url string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()

	log.Printf("Downloading NATS server from %s", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download NATS server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download NATS server: HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "nats-server-*.zip")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save NATS server: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func binaryName(goos string) string {
	if goos == "windows" {
		return "nats-server.exe"
	}
	return "nats-server"
}

// extractBinary copies the entry named name out of a release zip as an executable
func extractBinary(zipPath, destPath, name string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, "/"+name) && f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, rc); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	}
	return fmt.Errorf("%s not found in %s", name, filepath.Base(zipPath))
}
