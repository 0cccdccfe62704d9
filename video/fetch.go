package video

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

func IsRemote(uri string) bool {
	lower := strings.ToLower(uri)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func extFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ".mp4"
	}
	// storage URLs often escape the object path, e.g. videos%2Fa.mp4
	p, err := url.PathUnescape(u.Path)
	if err != nil {
		p = u.Path
	}
	ext := path.Ext(p)
	if ext == "" || len(ext) > 6 {
		return ".mp4"
	}
	return strings.ToLower(ext)
}

// Fetch downloads rawURL into dir (the OS temp dir when empty) under a random
// name and returns the local path. The caller removes the file.
func Fetch(ctx context.Context, client *resty.Client, rawURL, dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	out := filepath.Join(dir, "pushup-"+uuid.NewString()+extFromURL(rawURL))
	resp, err := client.R().
		SetContext(ctx).
		SetOutput(out).
		Get(rawURL)
	if err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	if resp.IsError() {
		_ = os.Remove(out)
		return "", fmt.Errorf("download %s: server returned %s", rawURL, resp.Status())
	}
	return out, nil
}
