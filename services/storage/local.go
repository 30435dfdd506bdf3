package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local пишет файлы в dir/<kind>/<name>; отдаются они роутером по /uploads/
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Dir() string { return l.dir }

func (l *Local) Save(ctx context.Context, kind Kind, name string, r io.Reader) (Object, error) {
	sub := filepath.Join(l.dir, string(kind))
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return Object{}, err
	}
	path := filepath.Join(sub, name)
	f, err := os.Create(path)
	if err != nil {
		return Object{}, err
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = ctx.Err()
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return Object{}, copyErr
		}
		return Object{}, closeErr
	}

	return Object{
		ID:   string(kind) + "/" + name,
		URL:  fmt.Sprintf("%s/uploads/%s/%s", l.baseURL, kind, name),
		Size: n,
	}, nil
}
