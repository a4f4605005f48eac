package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Downloader receives fully-decoded binary payloads for delivery to the
// user.
type Downloader interface {
	// Save makes data available under the suggested name and returns the
	// final location. Implementations must never expose a partial file.
	Save(name string, data []byte) (string, error)
}

// FileDownloader writes downloads into a local directory. Files are written
// to a temporary name and renamed into place so a partially-written file is
// never observable under the final name.
type FileDownloader struct {
	Dir string
}

// Save implements Downloader.
func (d *FileDownloader) Save(name string, data []byte) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	final, err := availableName(d.Dir, name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(d.Dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close download: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("finalize download: %w", err)
	}
	return final, nil
}

// availableName returns a path under dir that does not collide with an
// existing file, suffixing the base name with a counter when needed.
func availableName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		path := filepath.Join(dir, candidate)
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("no available download name for %s", name)
}
