package objectstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sync"
)

// MemoryStore keeps objects in process. It backs tests and deployments
// without a bucket, where every Get misses.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]Object{}}
}

func (m *MemoryStore) Put(key, contentType string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Key: key, ContentType: contentType, Body: append([]byte(nil), body...)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	obj.Body = append([]byte(nil), obj.Body...)
	return &obj, nil
}

func (m *MemoryStore) Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) *Upload {
	return startUpload(key, body, func(r io.Reader) (UploadResult, error) {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, r); err != nil {
			return UploadResult{}, err
		}
		if err := ctx.Err(); err != nil {
			return UploadResult{}, err
		}
		m.Put(key, contentType, buf.Bytes())
		sum := md5.Sum(buf.Bytes())
		return UploadResult{ETag: hex.EncodeToString(sum[:])}, nil
	})
}

var _ Store = (*MemoryStore)(nil)
