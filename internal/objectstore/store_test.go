package objectstore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/config"
)

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "legal/agb.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadReportsCompletionAndProgress(t *testing.T) {
	store := NewMemoryStore()
	payload := strings.Repeat("x", 64*1024)

	up := store.Upload(context.Background(), "courses/intro.mp4", "video/mp4", strings.NewReader(payload), int64(len(payload)))

	var last int64
	for n := range up.Progress() {
		assert.GreaterOrEqual(t, n, last)
		last = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := up.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "courses/intro.mp4", res.Key)
	assert.Equal(t, int64(len(payload)), res.Size)
	assert.NotEmpty(t, res.ETag)

	obj, err := store.Get(context.Background(), "courses/intro.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", obj.ContentType)
	assert.Len(t, obj.Body, len(payload))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestUploadSurfacesReaderError(t *testing.T) {
	up := NewMemoryStore().Upload(context.Background(), "k", "", failingReader{}, 0)
	res := <-up.Done()
	assert.EqualError(t, res.Err, "disk gone")
}

func TestProgressReaderSeek(t *testing.T) {
	out := make(chan int64, 4)
	pr := newProgressReader(bytes.NewReader([]byte("hello")), out)
	buf := make([]byte, 5)
	_, _ = pr.Read(buf)
	assert.Equal(t, int64(5), pr.n.Load())

	pos, err := pr.Seek(0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
	assert.Equal(t, int64(0), pr.n.Load())
}

func TestNewWithoutBucketFallsBackToMemory(t *testing.T) {
	store, err := New(config.Config{}, zap.NewNop())
	require.NoError(t, err)
	_, ok := store.(*MemoryStore)
	assert.True(t, ok)
}
