package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ipeimoveis/crm-backend/internal"
)

// LocalBackend stores objects on the local filesystem under a root
// directory. Signed URLs carry an HMAC over key+expiry so the download
// handler can serve files without a session.
type LocalBackend struct {
	root    string
	baseURL string
	secret  []byte
}

func NewLocalBackend(root, baseURL string, signingSecret []byte) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, internal.NewExternalError("storage root unavailable", internal.ErrCodeStorageFailure, err)
	}
	return &LocalBackend{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  signingSecret,
	}, nil
}

// safePath resolves key under the root and rejects traversal.
func (b *LocalBackend) safePath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if strings.Contains(clean, "..") {
		return "", internal.NewValidationError("invalid object key", internal.ErrCodeValidationFailed)
	}
	return filepath.Join(b.root, clean), nil
}

func (b *LocalBackend) Upload(ctx context.Context, key string, contentType string, body io.Reader) (*ObjectInfo, error) {
	path, err := b.safePath(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, internal.NewExternalError("failed to prepare object directory", internal.ErrCodeStorageFailure, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return nil, internal.NewExternalError("failed to stage upload", internal.ErrCodeStorageFailure, err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, internal.NewExternalError("failed to write object", internal.ErrCodeStorageFailure, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, internal.NewExternalError("failed to store object", internal.ErrCodeStorageFailure, err)
	}

	return &ObjectInfo{
		Key:         key,
		Size:        size,
		ContentType: contentType,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

func (b *LocalBackend) Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	path, err := b.safePath(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, internal.ErrDocumentNotFound
		}
		return nil, nil, internal.NewExternalError("failed to open object", internal.ErrCodeStorageFailure, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, internal.NewExternalError("failed to stat object", internal.ErrCodeStorageFailure, err)
	}
	return f, &ObjectInfo{
		Key:         key,
		Size:        stat.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(key)),
		UpdatedAt:   stat.ModTime().UTC(),
	}, nil
}

func (b *LocalBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	base, err := b.safePath(prefix)
	if err != nil {
		return nil, err
	}
	var objects []ObjectInfo
	walkErr := filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:         filepath.ToSlash(rel),
			Size:        info.Size(),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			UpdatedAt:   info.ModTime().UTC(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, internal.NewExternalError("failed to list objects", internal.ErrCodeStorageFailure, walkErr)
	}
	return objects, nil
}

func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	path, err := b.safePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return internal.NewExternalError("failed to delete object", internal.ErrCodeStorageFailure, err)
	}
	return nil
}

// SignedURL returns a time-limited download link of the form
// <base>/v1/files/<key>?expires=<unix>&sig=<hmac>.
func (b *LocalBackend) SignedURL(key string, ttl time.Duration) (string, error) {
	if _, err := b.safePath(key); err != nil {
		return "", err
	}
	expires := time.Now().Add(ttl).Unix()
	sig := b.sign(key, expires)
	return fmt.Sprintf("%s/v1/files/%s?expires=%d&sig=%s",
		b.baseURL, url.PathEscape(key), expires, sig), nil
}

// VerifySignature checks a signed URL's HMAC and expiry. The download
// handler calls this before serving the file.
func (b *LocalBackend) VerifySignature(key string, expires int64, sig string) error {
	if time.Now().Unix() > expires {
		return internal.NewForbiddenError("download link expired", internal.ErrCodePermissionDenied)
	}
	expected := b.sign(key, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return internal.NewForbiddenError("invalid download signature", internal.ErrCodePermissionDenied)
	}
	return nil
}

func (b *LocalBackend) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, b.secret)
	mac.Write([]byte(key))
	mac.Write([]byte(":"))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
