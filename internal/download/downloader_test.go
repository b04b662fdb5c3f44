package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var videoBody = append([]byte("VIDEO"), bytes.Repeat([]byte{0}, 2048)...)

// fakeProber accepts files starting with "VIDEO" and reports a fixed duration.
type fakeProber struct {
	duration float64
	calls    atomic.Int32
}

func (p *fakeProber) ProbeDuration(_ context.Context, path string) (float64, error) {
	p.calls.Add(1)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if !bytes.HasPrefix(data, []byte("VIDEO")) {
		return 0, errors.New("Invalid data found when processing input")
	}
	return p.duration, nil
}

// sequenceServer answers each request with the next status in codes and
// repeats the last one afterwards.
func sequenceServer(t *testing.T, codes []int, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		i := int(hits.Add(1)) - 1
		if i >= len(codes) {
			i = len(codes) - 1
		}
		w.WriteHeader(codes[i])
		if codes[i] == http.StatusOK {
			_, _ = w.Write(body)
		} else {
			_, _ = w.Write([]byte("error page"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestDownloader(prober Prober, opts ...Option) *Downloader {
	opts = append([]Option{
		WithBackoff(0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return New(prober, opts...)
}

func TestFetch_Success(t *testing.T) {
	var gotUA, gotReferer, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write(videoBody)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "videos", "video_0.mp4")
	d := newTestDownloader(&fakeProber{duration: 10})

	res := d.Fetch(context.Background(), srv.URL+"/a.mp4", dest)

	ok, isOk := res.(*Ok)
	require.True(t, isOk, "expected *Ok, got %T", res)
	assert.Equal(t, 1, ok.Attempts)
	assert.Equal(t, dest, ok.Asset.Path)
	assert.Equal(t, 10.0, ok.Asset.Duration)
	assert.FileExists(t, dest)

	assert.Contains(t, gotUA, "Chrome/")
	assert.Equal(t, DefaultReferer, gotReferer)
	assert.True(t, strings.HasPrefix(gotAccept, "video/"))
}

func TestFetch_CustomReferer(t *testing.T) {
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		_, _ = w.Write(videoBody)
	}))
	defer srv.Close()

	d := newTestDownloader(&fakeProber{duration: 1}, WithReferer("https://shop.example/"))
	res := d.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "v.mp4"))

	require.IsType(t, &Ok{}, res)
	assert.Equal(t, "https://shop.example/", gotReferer)
}

func TestFetch_Exhaustion(t *testing.T) {
	tests := []struct {
		name     string
		codes    []int
		wantGone bool
		wantCode int
	}{
		{"404 every attempt", []int{404}, true, 404},
		{"404 on final attempt", []int{500, 503, 404}, true, 404},
		{"404 then server errors", []int{404, 404, 500}, false, 500},
		{"forbidden", []int{403}, false, 403},
		{"server error", []int{500}, false, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := sequenceServer(t, tt.codes, videoBody)
			dest := filepath.Join(t.TempDir(), "video_0.mp4")
			prober := &fakeProber{duration: 10}
			d := newTestDownloader(prober)

			res := d.Fetch(context.Background(), srv.URL, dest)

			assert.Equal(t, int32(DefaultAttempts), hits.Load())
			assert.Zero(t, prober.calls.Load(), "non-2xx bodies must not be probed")
			assert.NoFileExists(t, dest)

			if tt.wantGone {
				gone, ok := res.(*Gone)
				require.True(t, ok, "expected *Gone, got %T", res)
				assert.Equal(t, tt.wantCode, gone.StatusCode)
				assert.Equal(t, srv.URL, gone.URL)
				return
			}
			tr, ok := res.(*Transient)
			require.True(t, ok, "expected *Transient, got %T", res)
			assert.Equal(t, tt.wantCode, tr.StatusCode)
			assert.ErrorIs(t, tr, ErrUnexpectedStatus)
		})
	}
}

func TestFetch_RecoversOnRetry(t *testing.T) {
	srv, hits := sequenceServer(t, []int{500, 404, 200}, videoBody)
	d := newTestDownloader(&fakeProber{duration: 8})

	res := d.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "v.mp4"))

	ok, isOk := res.(*Ok)
	require.True(t, isOk, "expected *Ok, got %T", res)
	assert.Equal(t, 3, ok.Attempts)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetch_InterstitialRejectedByProbe(t *testing.T) {
	html := []byte("<html><body>Please verify you are human</body></html>")
	srv, _ := sequenceServer(t, []int{200}, html)
	dest := filepath.Join(t.TempDir(), "v.mp4")
	prober := &fakeProber{duration: 8}
	d := newTestDownloader(prober)

	res := d.Fetch(context.Background(), srv.URL, dest)

	tr, ok := res.(*Transient)
	require.True(t, ok, "expected *Transient, got %T", res)
	assert.Equal(t, http.StatusOK, tr.StatusCode)
	assert.ErrorIs(t, tr, ErrInvalidMedia)
	assert.Equal(t, int32(DefaultAttempts), prober.calls.Load())
	assert.NoFileExists(t, dest)
}

func TestFetch_EmptyBody(t *testing.T) {
	srv, _ := sequenceServer(t, []int{200}, nil)
	d := newTestDownloader(&fakeProber{}, WithAttempts(1))

	res := d.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "v.mp4"))

	tr, ok := res.(*Transient)
	require.True(t, ok, "expected *Transient, got %T", res)
	assert.ErrorIs(t, tr, ErrEmptyFile)
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := newTestDownloader(&fakeProber{}, WithAttempts(2))
	res := d.Fetch(context.Background(), url, filepath.Join(t.TempDir(), "v.mp4"))

	tr, ok := res.(*Transient)
	require.True(t, ok, "expected *Transient, got %T", res)
	assert.Equal(t, 0, tr.StatusCode)
	assert.Contains(t, tr.Error(), "HTTP 000")
}

func TestFetch_ContextCancelled(t *testing.T) {
	srv, hits := sequenceServer(t, []int{500}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDownloader(&fakeProber{}, WithBackoff(time.Hour))
	res := d.Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "v.mp4"))

	assert.IsType(t, &Transient{}, res)
	assert.Zero(t, hits.Load())
}

func TestFetch_BackoffBetweenAttempts(t *testing.T) {
	srv, _ := sequenceServer(t, []int{500, 200}, videoBody)
	d := newTestDownloader(&fakeProber{duration: 1}, WithBackoff(20*time.Millisecond))

	start := time.Now()
	res := d.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "v.mp4"))

	require.IsType(t, &Ok{}, res)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestResultErrors(t *testing.T) {
	var err error = &Gone{URL: "https://x.example/v.mp4", StatusCode: 404}
	assert.Contains(t, err.Error(), "404")

	cause := errors.New("connection reset")
	err = &Transient{URL: "https://x.example/v.mp4", StatusCode: 502, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "HTTP 502")
}
