// Package objectstore reads legal documents and uploads course assets to
// S3-compatible storage.
package objectstore

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
)

var ErrNotFound = errors.New("object_not_found")

type Object struct {
	Key         string
	ContentType string
	Body        []byte
}

type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
	// Upload starts a background upload and returns immediately.
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) *Upload
}

type UploadResult struct {
	Key  string
	Size int64
	ETag string
	Err  error
}

// Upload is the handle of an in-flight upload. Done yields exactly one
// result. Progress reports cumulative bytes sent and is closed when the
// upload finishes; slow readers miss intermediate values.
type Upload struct {
	done     chan UploadResult
	progress chan int64
}

func (u *Upload) Done() <-chan UploadResult { return u.done }

func (u *Upload) Progress() <-chan int64 { return u.progress }

// Wait blocks until the upload finishes or ctx ends.
func (u *Upload) Wait(ctx context.Context) (UploadResult, error) {
	select {
	case res := <-u.done:
		return res, res.Err
	case <-ctx.Done():
		return UploadResult{}, ctx.Err()
	}
}

const progressBuffer = 16

// startUpload runs put in its own goroutine. put receives a reader that
// feeds the progress channel.
func startUpload(key string, body io.Reader, put func(r io.Reader) (UploadResult, error)) *Upload {
	u := &Upload{
		done:     make(chan UploadResult, 1),
		progress: make(chan int64, progressBuffer),
	}
	go func() {
		defer close(u.done)
		pr := newProgressReader(body, u.progress)
		res, err := put(pr)
		close(u.progress)
		res.Key = key
		res.Size = pr.n.Load()
		res.Err = err
		u.done <- res
	}()
	return u
}

type progressReader struct {
	r   io.Reader
	n   atomic.Int64
	out chan<- int64
}

func newProgressReader(r io.Reader, out chan<- int64) *progressReader {
	return &progressReader{r: r, out: out}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		total := p.n.Add(int64(n))
		select {
		case p.out <- total:
		default:
		}
	}
	return n, err
}

// Seek lets signed uploads rewind the body. Progress restarts from the
// new offset.
func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := p.r.(io.Seeker)
	if !ok {
		return 0, errors.New("objectstore: body is not seekable")
	}
	pos, err := s.Seek(offset, whence)
	if err == nil {
		p.n.Store(pos)
	}
	return pos, err
}
