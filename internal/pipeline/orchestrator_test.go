package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/reelforge/internal/caption"
	"github.com/maauso/reelforge/internal/download"
	"github.com/maauso/reelforge/internal/job"
	"github.com/maauso/reelforge/internal/media"
	"github.com/maauso/reelforge/internal/narration"
	"github.com/maauso/reelforge/internal/publish"
	"github.com/maauso/reelforge/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine stands in for ffmpeg. Media files hold "VIDEO:<seconds>".
type fakeEngine struct {
	mu             sync.Mutex
	mergedDuration float64
	fail           map[string]error
	trims          []float64
	overlay        media.TextOverlay
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{fail: map[string]error{}}
}

func writeMedia(path string, d float64) error {
	return os.WriteFile(path, []byte("VIDEO:"+strconv.FormatFloat(d, 'f', -1, 64)), 0600)
}

func (e *fakeEngine) ProbeDuration(_ context.Context, path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s, ok := strings.CutPrefix(string(data), "VIDEO:")
	if !ok {
		return 0, errors.New("invalid data found when processing input")
	}
	return strconv.ParseFloat(s, 64)
}

func (e *fakeEngine) ProbeDimensions(context.Context, string) (int, int, error) {
	return 720, 1280, nil
}

func (e *fakeEngine) Trim(_ context.Context, _, dst string, _, duration float64) error {
	if err := e.fail["Trim"]; err != nil {
		return err
	}
	e.mu.Lock()
	e.trims = append(e.trims, duration)
	e.mu.Unlock()
	return writeMedia(dst, duration)
}

func (e *fakeEngine) Concat(ctx context.Context, srcs []string, dst string) error {
	if err := e.fail["Concat"]; err != nil {
		return err
	}
	total := e.mergedDuration
	if total == 0 {
		for _, src := range srcs {
			d, err := e.ProbeDuration(ctx, src)
			if err != nil {
				return err
			}
			total += d
		}
	}
	return writeMedia(dst, total)
}

func (e *fakeEngine) ReplaceAudio(ctx context.Context, video, _, dst string) error {
	if err := e.fail["ReplaceAudio"]; err != nil {
		return err
	}
	d, err := e.ProbeDuration(ctx, video)
	if err != nil {
		return err
	}
	return writeMedia(dst, d)
}

func (e *fakeEngine) DrawText(ctx context.Context, src, dst string, overlay media.TextOverlay) error {
	if err := e.fail["DrawText"]; err != nil {
		return err
	}
	e.mu.Lock()
	e.overlay = overlay
	e.mu.Unlock()
	d, err := e.ProbeDuration(ctx, src)
	if err != nil {
		return err
	}
	return writeMedia(dst, d)
}

// fakeText answers script and caption prompts.
type fakeText struct {
	mu         sync.Mutex
	prompts    []string
	scriptErr  error
	overlayErr error
}

func (f *fakeText) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if strings.Contains(prompt, "câu tiêu đề") {
		if f.overlayErr != nil {
			return "", f.overlayErr
		}
		return "Mát lạnh cả mùa hè!", nil
	}
	if f.scriptErr != nil {
		return "", f.scriptErr
	}
	return "Chiếc áo thun mát mẻ cho mùa hè.", nil
}

type fakeVoice struct{ err error }

func (f *fakeVoice) Synthesize(context.Context, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ID3voice"), nil
}

type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(_ context.Context, _, dst string) (float64, error) {
	return 14, writeMedia(dst, 14)
}

type memUploader struct {
	mu    sync.Mutex
	keys  []string
	err   error
	onPut func(key string)
}

func (u *memUploader) Put(_ context.Context, key string, body io.Reader, _ string, _ map[string]string) error {
	if u.err != nil {
		return u.err
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return err
	}
	u.mu.Lock()
	u.keys = append(u.keys, key)
	u.mu.Unlock()
	if u.onPut != nil {
		u.onPut(key)
	}
	return nil
}

// recordingScratch logs every Reset into events.
type recordingScratch struct {
	storage.Scratch
	events *[]string
}

func (s *recordingScratch) Reset(ctx context.Context) error {
	*s.events = append(*s.events, "reset")
	return s.Scratch.Reset(ctx)
}

// observingFetcher calls observe before each download.
type observingFetcher struct {
	Fetcher
	observe func(url string)
}

func (f *observingFetcher) Fetch(ctx context.Context, url, dest string) download.Result {
	f.observe(url)
	return f.Fetcher.Fetch(ctx, url, dest)
}

// failingStore wraps a MemoryStore and fails selected writes.
type failingStore struct {
	*job.MemoryStore
	fetchErr     error
	publishedErr error
	staleErr     error
}

func (s *failingStore) FetchPending(ctx context.Context) ([]*job.Job, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.MemoryStore.FetchPending(ctx)
}

func (s *failingStore) MarkPublished(ctx context.Context, id int64, url string) error {
	if s.publishedErr != nil {
		return s.publishedErr
	}
	return s.MemoryStore.MarkPublished(ctx, id, url)
}

func (s *failingStore) MarkStale(ctx context.Context, id int64) error {
	if s.staleErr != nil {
		return s.staleErr
	}
	return s.MemoryStore.MarkStale(ctx, id)
}

// clipServer serves /ok (a 10s clip), /gone (404), /busy (503) and /html.
func clipServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ok/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("VIDEO:10"))
	})
	mux.HandleFunc("GET /gone/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET /busy/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /html/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>verify you are human</html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	srv      *httptest.Server
	engine   *fakeEngine
	text     *fakeText
	voice    *fakeVoice
	uploader *memUploader
	store    *failingStore
	scratch  *storage.LocalStorage
	orch     *Orchestrator
}

var publishTime = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

func newHarness(t *testing.T, jobs ...*job.Job) *harness {
	t.Helper()
	h := &harness{
		srv:      clipServer(t),
		engine:   newFakeEngine(),
		text:     &fakeText{},
		voice:    &fakeVoice{},
		uploader: &memUploader{},
		store:    &failingStore{MemoryStore: job.NewMemoryStore(jobs...)},
	}

	scratch, err := storage.NewLocalStorage(t.TempDir() + "/scratch")
	require.NoError(t, err)
	h.scratch = scratch

	logger := quietLogger()
	runner := media.NewRunner(h.engine, media.WithLogger(logger))
	publisher, err := publish.New(h.uploader, "https://pub.example.r2.dev",
		publish.WithClock(func() time.Time { return publishTime }),
		publish.WithLogger(logger),
	)
	require.NoError(t, err)

	h.orch, err = New(Deps{
		Store:   h.store,
		Scratch: scratch,
		Fetcher: download.New(h.engine,
			download.WithHTTPClient(h.srv.Client()),
			download.WithBackoff(0),
			download.WithLogger(logger),
		),
		Media:     runner,
		Narrator:  narration.NewPipeline(h.text, h.voice, fakeNormalizer{}, logger),
		Captioner: caption.NewComposer(runner, caption.WithLogger(logger)),
		Publisher: publisher,
	}, WithLogger(logger))
	require.NoError(t, err)
	return h
}

func (h *harness) payload(t *testing.T, name string, paths ...string) json.RawMessage {
	t.Helper()
	videos := make([]map[string]string, len(paths))
	for i, p := range paths {
		videos[i] = map[string]string{"url": h.srv.URL + p}
	}
	raw, err := json.Marshal(map[string]any{
		"videos":      videos,
		"productInfo": map[string]string{"name": name},
	})
	require.NoError(t, err)
	return raw
}

func pendingJob(id int64, payload json.RawMessage) *job.Job {
	return &job.Job{ID: id, Payload: payload, Crawled: true}
}

func TestNew_MissingDependency(t *testing.T) {
	_, err := New(Deps{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestSweep_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.engine.mergedDuration = 16
	name := "Áo thun nam cotton thoáng mát co giãn bốn chiều phong cách Hàn Quốc cao cấp"
	h.store.Put(pendingJob(7, h.payload(t, name, "/ok/a.mp4", "/ok/b.mp4")))

	summary, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Skipped)
	assert.NotEqual(t, uuid.Nil, summary.RunID)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, OutcomeSucceeded, summary.Results[0].Outcome)
	assert.Equal(t, job.StageSucceeded, summary.Results[0].Stage)

	// Each 10s clip loses 2s at both ends.
	assert.Equal(t, []float64{6, 6}, h.engine.trims)

	// The script budget follows the merged duration.
	require.NotEmpty(t, h.text.prompts)
	assert.Contains(t, h.text.prompts[0], "240 ký tự")
	assert.Contains(t, h.text.prompts[0], "2 đoạn clip")

	// Generated caption copy is burned in with the bucketed font size.
	assert.Equal(t, "Mát lạnh cả mùa hè!", h.engine.overlay.Text)
	assert.Equal(t, caption.FontLarge, h.engine.overlay.FontSize)

	require.Len(t, h.uploader.keys, 1)
	key := h.uploader.keys[0]
	assert.True(t, strings.HasPrefix(key, "merged_videos/20250601_083000_product_7_"), key)
	slug := strings.TrimSuffix(strings.TrimPrefix(key, "merged_videos/20250601_083000_product_7_"), ".mp4")
	assert.LessOrEqual(t, utf8.RuneCountInString(slug), publish.MaxSlugRunes)
	assert.True(t, strings.HasPrefix(slug, "Ao_thun_nam_cotton"), slug)

	stored, err := h.store.Get(7)
	require.NoError(t, err)
	assert.True(t, stored.Merged)
	assert.True(t, stored.Crawled)
	assert.Equal(t, "https://pub.example.r2.dev/"+key, stored.PublishedURL)
	assert.Equal(t, stored.PublishedURL, summary.Results[0].URL)
}

func TestSweep_IdempotentAfterSuccess(t *testing.T) {
	h := newHarness(t)
	h.store.Put(pendingJob(1, h.payload(t, "Shirt", "/ok/a.mp4")))

	first, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Succeeded)

	second, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Total)
	assert.Empty(t, second.Results)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, h.uploader.keys, 1)
}

func TestSweep_SkipsInvalidPayloadWithoutMutation(t *testing.T) {
	h := newHarness(t)
	h.store.Put(pendingJob(1, nil))
	h.store.Put(pendingJob(2, json.RawMessage(`"not an object"`)))
	h.store.Put(pendingJob(3, json.RawMessage(`{"videos":[]}`)))
	h.store.Put(pendingJob(4, json.RawMessage(`{"videos":[{"url":""}]}`)))

	marker := h.scratch.Path(storage.OutputDir, "marker")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0600))

	summary, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 4, summary.Skipped)
	assert.Zero(t, summary.Failed)

	for _, r := range summary.Results {
		assert.Equal(t, OutcomeSkipped, r.Outcome)
		assert.Contains(t, r.Error, job.ErrInvalidDescriptor.Error())
	}
	for id := int64(1); id <= 4; id++ {
		stored, err := h.store.Get(id)
		require.NoError(t, err)
		assert.True(t, stored.Crawled, "job %d crawled", id)
		assert.False(t, stored.Merged, "job %d merged", id)
	}

	// Skipped jobs never wipe the scratch space.
	_, err = os.Stat(marker)
	assert.NoError(t, err)
}

func TestSweep_EachJobStartsWithCleanScratch(t *testing.T) {
	h := newHarness(t)
	h.store.Put(pendingJob(1, h.payload(t, "Áo thun", "/ok/a.mp4")))
	h.store.Put(pendingJob(2, h.payload(t, "Quần jean", "/ok/b.mp4")))

	// Every upload leaves a file behind in the scratch space.
	leftover := h.scratch.Path(storage.OutputDir, "leftover.txt")
	h.uploader.onPut = func(key string) {
		require.NoError(t, os.WriteFile(leftover, []byte(key), 0600))
	}

	var events []string
	deps := h.orch.deps
	deps.Scratch = &recordingScratch{Scratch: h.scratch, events: &events}
	deps.Fetcher = &observingFetcher{Fetcher: deps.Fetcher, observe: func(url string) {
		_, err := os.Stat(leftover)
		clips, _ := os.ReadDir(h.scratch.Path(storage.VideosDir))
		events = append(events, fmt.Sprintf("fetch %s leftover=%t clips=%d", path.Base(url), err == nil, len(clips)))
	}}
	orch, err := New(deps, WithLogger(quietLogger()))
	require.NoError(t, err)

	summary, err := orch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)

	assert.Equal(t, []string{
		"reset", "fetch a.mp4 leftover=false clips=0",
		"reset", "fetch b.mp4 leftover=false clips=0",
	}, events)
	// Written by job 2's upload, after its own reset.
	assert.FileExists(t, leftover)
}

func TestSweep_GoneMarksStale(t *testing.T) {
	h := newHarness(t)
	h.store.Put(pendingJob(5, h.payload(t, "Shirt", "/ok/a.mp4", "/gone/b.mp4")))

	summary, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Stale)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, OutcomeStale, summary.Results[0].Outcome)
	assert.Equal(t, job.StageDownloading, summary.Results[0].Stage)

	stored, err := h.store.Get(5)
	require.NoError(t, err)
	assert.False(t, stored.Crawled)
	assert.False(t, stored.Merged)
	assert.Empty(t, h.uploader.keys)
}

func TestSweep_TransientFailureLeavesJobPending(t *testing.T) {
	for _, path := range []string{"/busy/a.mp4", "/html/a.mp4"} {
		t.Run(path, func(t *testing.T) {
			h := newHarness(t)
			h.store.Put(pendingJob(9, h.payload(t, "Shirt", path)))

			summary, err := h.orch.Sweep(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, summary.Failed)
			assert.Zero(t, summary.Stale)
			assert.Equal(t, job.StageDownloading, summary.Results[0].Stage)

			stored, err := h.store.Get(9)
			require.NoError(t, err)
			assert.True(t, stored.Crawled)
			assert.False(t, stored.Merged)
		})
	}
}

func TestSweep_StageFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		inject func(h *harness)
		stage  job.Stage
	}{
		{"trim", func(h *harness) { h.engine.fail["Trim"] = boom }, job.StageTrimming},
		{"merge", func(h *harness) { h.engine.fail["Concat"] = boom }, job.StageMerging},
		{"script", func(h *harness) { h.text.scriptErr = boom }, job.StageScriptGen},
		{"voice", func(h *harness) { h.voice.err = boom }, job.StageVoiceGen},
		{"mux", func(h *harness) { h.engine.fail["ReplaceAudio"] = boom }, job.StageMuxing},
		{"caption", func(h *harness) { h.engine.fail["DrawText"] = boom }, job.StageCaptioning},
		{"publish", func(h *harness) { h.uploader.err = boom }, job.StagePublishing},
		{"mark published", func(h *harness) { h.store.publishedErr = boom }, job.StagePublishing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.Put(pendingJob(1, h.payload(t, "Shirt", "/ok/a.mp4")))
			tt.inject(h)

			summary, err := h.orch.Sweep(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, summary.Failed)
			assert.Zero(t, summary.Succeeded)
			require.Len(t, summary.Results, 1)
			assert.Equal(t, OutcomeFailed, summary.Results[0].Outcome)
			assert.Equal(t, tt.stage, summary.Results[0].Stage)
			assert.Contains(t, summary.Results[0].Error, "boom")

			stored, err := h.store.Get(1)
			require.NoError(t, err)
			assert.True(t, stored.Crawled)
			assert.False(t, stored.Merged)
		})
	}
}

func TestSweep_FailureDoesNotStopSweep(t *testing.T) {
	h := newHarness(t)
	h.store.Put(pendingJob(1, h.payload(t, "Gone", "/gone/a.mp4")))
	h.store.Put(pendingJob(2, nil))
	h.store.Put(pendingJob(3, h.payload(t, "Busy", "/busy/a.mp4")))
	h.store.Put(pendingJob(4, h.payload(t, "Shirt", "/ok/a.mp4")))

	summary, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Stale)
	assert.Equal(t, 1, summary.Skipped)

	ids := make([]int64, len(summary.Results))
	for i, r := range summary.Results {
		ids[i] = r.JobID
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
}

func TestSweep_ShortClipKeptUntrimmed(t *testing.T) {
	h := newHarness(t)
	h.srv.Config.Handler.(*http.ServeMux).HandleFunc("GET /short/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("VIDEO:3.5"))
	})
	h.store.Put(pendingJob(1, h.payload(t, "Shirt", "/short/a.mp4", "/ok/b.mp4")))

	summary, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, []float64{6}, h.engine.trims)
	// 3.5s untouched plus 6s trimmed.
	assert.Contains(t, h.text.prompts[0], fmt.Sprintf("%d ký tự", int(math.Floor(9.5*15))))
}

func TestSweep_CaptionFallsBackToProductName(t *testing.T) {
	h := newHarness(t)
	h.text.overlayErr = errors.New("rate limited")
	h.store.Put(pendingJob(1, h.payload(t, "Giày chạy bộ", "/ok/a.mp4")))

	summary, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, "Giày chạy bộ", h.engine.overlay.Text)
}

func TestSweep_MissingProductNameSlugsToProduct(t *testing.T) {
	h := newHarness(t)
	h.store.Put(pendingJob(9, h.payload(t, "  ", "/ok/a.mp4")))

	summary, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	require.Len(t, h.uploader.keys, 1)
	assert.Equal(t, "merged_videos/20250601_083000_product_9_product.mp4", h.uploader.keys[0])
	// Prompts still name the product with the display default.
	assert.Contains(t, h.text.prompts[0], "Sản phẩm: Unknown")
}

func TestSweep_PayloadOverlayTextWins(t *testing.T) {
	h := newHarness(t)
	raw := json.RawMessage(fmt.Sprintf(`{"videos":[{"url":%q}],"productInfo":{"name":"Shirt"},"overlayText":"Giảm 50%% hôm nay"}`, h.srv.URL+"/ok/a.mp4"))
	h.store.Put(pendingJob(1, raw))

	_, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Giảm 50% hôm nay", h.engine.overlay.Text)
	for _, p := range h.text.prompts {
		assert.NotContains(t, p, "câu tiêu đề")
	}
}

func TestSweep_MarkStaleFailureCountsAsFailed(t *testing.T) {
	h := newHarness(t)
	h.store.staleErr = errors.New("connection reset")
	h.store.Put(pendingJob(1, h.payload(t, "Shirt", "/gone/a.mp4")))

	summary, err := h.orch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Stale)
	assert.Contains(t, summary.Results[0].Error, "mark stale")
}

func TestSweep_FetchPendingError(t *testing.T) {
	h := newHarness(t)
	h.store.fetchErr = errors.New("database is down")

	summary, err := h.orch.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is down")
	require.NotNil(t, summary)
	assert.Zero(t, summary.Total)
}

func TestSweep_ContextCancelledBetweenJobs(t *testing.T) {
	h := newHarness(t)
	h.store.Put(pendingJob(1, h.payload(t, "Shirt", "/ok/a.mp4")))
	h.store.Put(pendingJob(2, h.payload(t, "Shirt", "/ok/b.mp4")))

	ctx, cancel := context.WithCancel(context.Background())
	cancelling := &cancelOnPut{cancel: cancel}
	publisher, err := publish.New(cancelling, "https://cdn", publish.WithLogger(quietLogger()))
	require.NoError(t, err)
	h.orch.deps.Publisher = publisher

	summary, err := h.orch.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Processed())
	assert.Equal(t, 1, summary.Succeeded)

	second, err := h.store.Get(2)
	require.NoError(t, err)
	assert.False(t, second.Merged)
}

// cancelOnPut accepts the upload and then cancels the sweep.
type cancelOnPut struct {
	cancel context.CancelFunc
}

func (c *cancelOnPut) Put(_ context.Context, _ string, body io.Reader, _ string, _ map[string]string) error {
	_, err := io.Copy(io.Discard, body)
	c.cancel()
	return err
}
