// -----------------------------------------------------------------------
// Download Capture - Claims and renames finished browser downloads
// -----------------------------------------------------------------------

package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// partialSuffixes mark in-flight browser downloads
var partialSuffixes = []string{".crdownload", ".tmp", ".part"}

// CaptureDownload polls downloadDir until a finished download appears,
// then renames it after the invoice. Returns the captured file name.
//
// Rules:
//   - In-flight downloads (.crdownload, .tmp, .part) and zip archives are
//     never candidates.
//   - A newest file already named after the invoice is claimed as-is, so
//     re-running an interrupted order does not double-rename.
//   - A name collision from an earlier run gets a timestamp suffix rather
//     than overwriting the earlier export.
func CaptureDownload(ctx context.Context, downloadDir, invoice string, interval time.Duration, maxAttempts int) (string, error) {
	var captured string

	err := BoundedPoll(ctx, interval, maxAttempts, func(ctx context.Context) (bool, error) {
		newest, err := newestDownload(downloadDir)
		if err != nil {
			return false, err
		}
		if newest == "" {
			return false, nil
		}

		base := filepath.Base(newest)
		if strings.HasPrefix(base, invoice) {
			// Already claimed, nothing to rename
			captured = base
			return true, nil
		}

		target := filepath.Join(downloadDir, invoice+filepath.Ext(base))
		if _, statErr := os.Stat(target); statErr == nil {
			target = filepath.Join(downloadDir,
				fmt.Sprintf("%s_%s%s", invoice, time.Now().Format("20060102150405"), filepath.Ext(base)))
		}

		if err := os.Rename(newest, target); err != nil {
			return false, fmt.Errorf("failed to claim download: %w", err)
		}
		captured = filepath.Base(target)
		return true, nil
	})

	if err != nil {
		if err == ErrPollExhausted {
			return "", fmt.Errorf("no download appeared for invoice %s: %w", invoice, ErrPollExhausted)
		}
		return "", err
	}
	return captured, nil
}

// newestDownload returns the most recently modified finished download in
// dir, or "" when none is present
func newestDownload(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read download directory: %w", err)
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isFinishedDownload(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, name)
			newestTime = info.ModTime()
		}
	}
	return newest, nil
}

// isFinishedDownload filters out partial downloads and archives built by
// a previous run over the same directory
func isFinishedDownload(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return !strings.HasSuffix(lower, ".zip")
}
