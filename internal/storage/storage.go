package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotFound возвращается, когда объекта с таким ключом нет
var ErrNotFound = errors.New("object not found")

// ObjectStore - хранилище снимков по непрозрачному ключу
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// AllowedImageType - принимаются только форматы, которые понимает классификатор
func AllowedImageType(contentType string) bool {
	switch normalizeType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	default:
		return false
	}
}

// ContentKey адресует объект по sha256 содержимого: одинаковые байты дают один ключ
func ContentKey(prefix string, data []byte, contentType string) string {
	sum := sha256.Sum256(data)
	ext, ok := extensions[normalizeType(contentType)]
	if !ok {
		ext = ".bin"
	}
	return fmt.Sprintf("%s/%s%s", strings.Trim(prefix, "/"), hex.EncodeToString(sum[:]), ext)
}

// ContentTypeFromKey восстанавливает тип по расширению ключа
func ContentTypeFromKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return "application/octet-stream"
	}
}

// ValidKey отсекает пустые ключи и выход за пределы хранилища
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

func normalizeType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

type timeoutStore struct {
	next    ObjectStore
	timeout time.Duration
}

// WithTimeout ограничивает каждый вызов хранилища
func WithTimeout(next ObjectStore, timeout time.Duration) ObjectStore {
	if timeout <= 0 {
		return next
	}
	return &timeoutStore{next: next, timeout: timeout}
}

func (s *timeoutStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Exists(ctx, key)
}

func (s *timeoutStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Put(ctx, key, data, contentType)
}

func (s *timeoutStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Get(ctx, key)
}
