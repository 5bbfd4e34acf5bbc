package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	if !modTime.IsZero() {
		require.NoError(t, os.Chtimes(path, modTime, modTime))
	}
}

func TestCaptureDownloadRenamesNewest(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, dir, "Report(1).xlsx", now.Add(-time.Hour))
	writeFile(t, dir, "Report(2).xlsx", now)

	name, err := CaptureDownload(context.Background(), dir, "INV1001", time.Millisecond, 3)
	require.NoError(t, err)
	assert.Equal(t, "INV1001.xlsx", name)

	_, statErr := os.Stat(filepath.Join(dir, "INV1001.xlsx"))
	assert.NoError(t, statErr)
	// The older download is untouched
	_, statErr = os.Stat(filepath.Join(dir, "Report(1).xlsx"))
	assert.NoError(t, statErr)
}

func TestCaptureDownloadSkipsAlreadyClaimed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "INV1001.xlsx", time.Now())

	name, err := CaptureDownload(context.Background(), dir, "INV1001", time.Millisecond, 3)
	require.NoError(t, err)
	assert.Equal(t, "INV1001.xlsx", name)
}

func TestCaptureDownloadCollisionGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, dir, "INV1001.xlsx", now.Add(-time.Hour))
	writeFile(t, dir, "fresh-export.xlsx", now)

	// The newest file is the unclaimed export; the invoice name is taken
	name, err := CaptureDownload(context.Background(), dir, "INV1001", time.Millisecond, 3)
	require.NoError(t, err)
	assert.NotEqual(t, "INV1001.xlsx", name)
	assert.Contains(t, name, "INV1001_")
	assert.Equal(t, ".xlsx", filepath.Ext(name))
}

func TestCaptureDownloadIgnoresPartialsAndArchives(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, dir, "stale.zip", now)
	writeFile(t, dir, "inflight.xlsx.crdownload", now)
	writeFile(t, dir, "temp.tmp", now)

	_, err := CaptureDownload(context.Background(), dir, "INV1001", time.Millisecond, 3)
	// A timed-out capture is distinguishable from a real failure
	assert.ErrorIs(t, err, ErrPollExhausted)
}

func TestCaptureDownloadWaitsForArrival(t *testing.T) {
	dir := t.TempDir()

	go func() {
		time.Sleep(30 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "late.xlsx"), []byte("data"), 0644)
	}()

	name, err := CaptureDownload(context.Background(), dir, "INV1001", 10*time.Millisecond, 50)
	require.NoError(t, err)
	assert.Equal(t, "INV1001.xlsx", name)
}

func TestCaptureDownloadCancellation(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CaptureDownload(ctx, dir, "INV1001", time.Millisecond, 100)
	assert.ErrorIs(t, err, context.Canceled)
}
