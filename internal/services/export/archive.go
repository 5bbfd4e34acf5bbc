// -----------------------------------------------------------------------
// Archive Builder - Zips captured exports for delivery
// -----------------------------------------------------------------------

package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoExports is returned when the capture directory holds nothing to archive
var ErrNoExports = fmt.Errorf("no exported files to archive")

// BuildArchive zips every finished export under downloadDir into a single
// in-memory archive named baseName.zip, flattening any subdirectories the
// browser created to base names. Partial downloads and previous archives
// are excluded, so the archive never contains itself.
func BuildArchive(downloadDir, baseName string) (string, []byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	count := 0

	err := filepath.WalkDir(downloadDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to read download directory: %w", err)
		}
		if entry.IsDir() || !isFinishedDownload(entry.Name()) {
			return nil
		}

		if err := addToArchive(zw, path, entry.Name()); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return "", nil, err
	}

	if err := zw.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if count == 0 {
		return "", nil, ErrNoExports
	}

	name := strings.TrimSpace(baseName)
	if name == "" {
		name = "Invoices"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}

	return name, buf.Bytes(), nil
}

func addToArchive(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}
	return nil
}

// CopyToUserDownloads drops a copy of the archive into the local user's
// Downloads folder for convenience. Failure is not fatal to the run.
func CopyToUserDownloads(archiveName string, data []byte) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}

	dir := filepath.Join(home, "Downloads")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create downloads folder: %w", err)
	}

	path := filepath.Join(dir, archiveName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write local copy: %w", err)
	}
	return path, nil
}
