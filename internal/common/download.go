package common

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Download fetches url into destPath through a temp file and atomic rename.
// It returns the number of bytes written.
func Download(ctx context.Context, url, destPath string, timeout time.Duration) (int64, error) {
	client := &http.Client{
		Timeout: timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	var n int64
	err = WriteFileAtomic(destPath, func(w io.Writer) error {
		var cerr error
		n, cerr = io.Copy(w, resp.Body)
		if cerr != nil {
			return fmt.Errorf("download failed: %w", cerr)
		}
		return nil
	})
	return n, err
}
