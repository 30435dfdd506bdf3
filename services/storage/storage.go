// Package storage keeps uploaded media. Files land on local disk or in a Google Drive folder.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"memory-lane-backend/services/apperr"
)

type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

var allowedExtensions = map[Kind]map[string]bool{
	KindImage: {"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true},
	KindAudio: {"mp3": true, "wav": true, "m4a": true, "ogg": true},
	KindVideo: {"mp4": true, "mov": true, "avi": true, "webm": true},
}

// AllowedExtensions - отсортированные расширения по типам
func AllowedExtensions() map[Kind][]string {
	out := make(map[Kind][]string, len(allowedExtensions))
	for kind, exts := range allowedExtensions {
		list := make([]string, 0, len(exts))
		for ext := range exts {
			list = append(list, ext)
		}
		sort.Strings(list)
		out[kind] = list
	}
	return out
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(s))
	if _, ok := allowedExtensions[k]; !ok {
		return "", apperr.Validation("kind", "must be one of image, audio, video")
	}
	return k, nil
}

// Object - сохраненный файл
type Object struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Kind     Kind   `json:"kind"`
	Size     int64  `json:"size"`
}

// Backend сохраняет уже проверенный файл под сгенерированным именем
type Backend interface {
	Save(ctx context.Context, kind Kind, name string, r io.Reader) (Object, error)
}

// Extension - расширение в нижнем регистре без точки, если оно разрешено для kind
func Extension(kind Kind, filename string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	allowed, ok := allowedExtensions[kind]
	if !ok {
		return "", apperr.Validation("kind", "must be one of image, audio, video")
	}
	if ext == "" || !allowed[ext] {
		return "", apperr.Validation("file", fmt.Sprintf("file type .%s is not allowed for %s uploads", ext, kind))
	}
	return ext, nil
}

type Service struct {
	backend  Backend
	maxBytes int64
}

func NewService(backend Backend, maxMB int64) *Service {
	return &Service{backend: backend, maxBytes: maxMB << 20}
}

func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Upload проверяет тип и размер и передает файл бэкенду.
// size < 0 означает, что размер заранее неизвестен; тогда лимит проверяется при чтении.
func (s *Service) Upload(ctx context.Context, kind Kind, filename string, size int64, r io.Reader) (Object, error) {
	ext, err := Extension(kind, filename)
	if err != nil {
		return Object{}, err
	}
	if size > s.maxBytes {
		return Object{}, apperr.Validation("file", fmt.Sprintf("file exceeds %d MB", s.maxBytes>>20))
	}

	lr := &limitedReader{r: r, remaining: s.maxBytes}
	name := uuid.NewString() + "." + ext
	obj, err := s.backend.Save(ctx, kind, name, lr)
	if lr.exceeded {
		return Object{}, apperr.Validation("file", fmt.Sprintf("file exceeds %d MB", s.maxBytes>>20))
	}
	if err != nil {
		return Object{}, fmt.Errorf("save %s upload: %w", kind, err)
	}
	obj.Filename = filename
	obj.Kind = kind
	return obj, nil
}

// limitedReader отдает ошибку, как только прочитано больше remaining байт
type limitedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

var errTooLarge = errors.New("upload too large")

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		l.exceeded = true
		return 0, errTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		l.exceeded = true
		return n, errTooLarge
	}
	return n, err
}
