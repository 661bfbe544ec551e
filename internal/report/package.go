package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// packageResults zips the HTML report and its screenshots into <name>_RESULTS.zip
func packageResults(dir, file string, screenshots []string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	out := filepath.Join(dir, base+"_RESULTS.zip")

	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("failed to create results package: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	files := append([]string{filepath.Base(file)}, screenshots...)
	for _, name := range files {
		if err := addToZip(zw, filepath.Join(dir, name), name); err != nil {
			zw.Close()
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish results package: %w", err)
	}
	return out, nil
}

func addToZip(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer src.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
