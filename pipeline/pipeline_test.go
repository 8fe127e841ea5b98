package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/attachguard/detector"
	"github.com/cppla/attachguard/extractor"
	"github.com/cppla/attachguard/filecache"
	"github.com/cppla/attachguard/models"
	"github.com/cppla/attachguard/progress"
)

type fixture struct {
	db     *gorm.DB
	store  *models.AttachmentStore
	srv    *httptest.Server
	hits   map[string]*int32
	cache  *filecache.Cache
	proc   *Processor
	runner *Runner
}

type fakeEngine struct{}

func (fakeEngine) Name() string                    { return "fake" }
func (fakeEngine) Probe(ctx context.Context) error { return nil }
func (fakeEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	return "scanned form", nil
}

type stubClassifier struct {
	verdict detector.Verdict
	desc    string
	seen    []string
}

func (s *stubClassifier) Enabled() bool { return true }
func (s *stubClassifier) Classify(ctx context.Context, content string) (detector.Verdict, error) {
	s.seen = append(s.seen, content)
	return s.verdict, nil
}
func (s *stubClassifier) DescribeImage(ctx context.Context, path string) (string, error) {
	return s.desc, nil
}

func newFixture(t *testing.T, files map[string][]byte, classifier detector.ContentClassifier) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Site{}, &models.Attachment{}))

	f := &fixture{db: db, store: models.NewAttachmentStore(db), hits: map[string]*int32{}}
	var mu sync.Mutex
	for p := range files {
		f.hits[p] = new(int32)
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body, ok := files[r.URL.Path]
		mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(f.hits[r.URL.Path], 1)
		_, _ = w.Write(body)
	}))
	t.Cleanup(f.srv.Close)

	f.cache = filecache.New(t.TempDir(), 5*time.Second)
	ex := extractor.New(extractor.NewOCRWithEngine(fakeEngine{}, nil))
	f.proc = NewProcessor(f.store, f.cache, ex, detector.New(classifier, nil), f.srv.URL+"/", nil)
	f.runner = NewRunner(f.proc)
	return f
}

func (f *fixture) add(t *testing.T, a *models.Attachment) *models.Attachment {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), a))
	return a
}

func (f *fixture) reload(t *testing.T, id uint) *models.Attachment {
	t.Helper()
	a, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return a
}

func zipBytes(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestResolveURL(t *testing.T) {
	cases := []struct {
		path, base, def string
		want            string
		err             bool
	}{
		{path: "https://cdn.example/a.pdf", base: "http://ignored", want: "https://cdn.example/a.pdf"},
		{path: "/_upload/a.pdf", base: "http://site.example///", def: "http://default", want: "http://site.example/_upload/a.pdf"},
		{path: "/_upload/a.pdf", def: "http://default/", want: "http://default/_upload/a.pdf"},
		{path: "/_upload/a.pdf", err: true},
		{path: "/_upload/a.pdf", base: "ftp://x", err: true},
		{path: "", err: true},
	}
	for _, tc := range cases {
		got, err := ResolveURL(tc.path, tc.base, tc.def)
		if tc.err {
			require.ErrorIs(t, err, ErrInvalidURL, tc.path)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}

func TestExtFromURL(t *testing.T) {
	require.Equal(t, "pdf", extFromURL("http://h/a/B.PDF?download=1"))
	require.Equal(t, "", extFromURL("http://h/a/noext"))
}

func TestProcessDetectsAndPersists(t *testing.T) {
	f := newFixture(t, map[string][]byte{"/files/list.txt": []byte("联系人 王五 电话 13812345678")}, nil)
	a := f.add(t, &models.Attachment{SiteID: "s1", URLPath: "/files/list.txt", FileExt: "TXT"})

	var committed *models.Attachment
	outcome, err := f.proc.Process(context.Background(), a, ProcessOptions{
		Mode:        detector.ModeNormal,
		AfterCommit: func(x *models.Attachment) { committed = x },
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)
	require.Same(t, a, committed)

	got := f.reload(t, a.ID)
	require.Equal(t, "txt", got.FileExt)
	require.Contains(t, got.TextContent, "13812345678")
	require.Empty(t, got.OCRContent)
	require.Empty(t, got.LLMContent)
	require.False(t, got.HasIDCard)
	require.True(t, got.HasPhone)
	require.True(t, got.ManualVerifiedSensitive)
	require.Equal(t, "Auto-detected: ID card=false, Phone=true", got.VerificationNotes)
	require.NotNil(t, got.ProcessedAt)
}

func TestProcessCommitsExtensionEvenWhenFetchFails(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.add(t, &models.Attachment{SiteID: "s1", URLPath: "/files/gone.pdf", FileExt: "doc", TextContent: "old"})

	outcome, err := f.proc.Process(context.Background(), a, ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, OutcomeFetchFailed, outcome)

	got := f.reload(t, a.ID)
	require.Equal(t, "pdf", got.FileExt)
	require.Equal(t, "old", got.TextContent)
	require.Nil(t, got.ProcessedAt)
}

func TestProcessInvalidURLPersistsNothing(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.proc.defaultBase = ""
	a := f.add(t, &models.Attachment{SiteID: "s1", URLPath: "/files/a.pdf", FileExt: "doc"})

	outcome, err := f.proc.Process(context.Background(), a, ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, OutcomeInvalidURL, outcome)
	require.Equal(t, "doc", f.reload(t, a.ID).FileExt)
}

func TestProcessArchiveExpandsOnce(t *testing.T) {
	archive := zipBytes(t, map[string]string{
		"a.txt":    "身份证 110101199003071234",
		"scan.png": "png",
	})
	f := newFixture(t, map[string][]byte{"/files/bundle.zip": archive}, nil)
	a := f.add(t, &models.Attachment{SiteID: "s1", URLPath: "/files/bundle.zip"})

	_, err := f.proc.Process(context.Background(), a, ProcessOptions{})
	require.NoError(t, err)
	got := f.reload(t, a.ID)
	require.Equal(t, "zip", got.FileExt)
	require.True(t, got.HasIDCard)
	require.Equal(t, "scanned form", got.OCRContent)
	require.Contains(t, got.TextContent, "110101199003071234")

	local, err := f.cache.Resolve(f.srv.URL + "/files/bundle.zip")
	require.NoError(t, err)
	info, err := os.Stat(local + archiveSuffix)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	_, err = f.proc.Process(context.Background(), got, ProcessOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(f.hits["/files/bundle.zip"]))
}

func TestProcessAIImageDescription(t *testing.T) {
	stub := &stubClassifier{desc: "a registration form", verdict: detector.Verdict{HasIDCard: true, Analysis: "contains an id card"}}
	f := newFixture(t, map[string][]byte{"/img/form.jpg": []byte("jpeg")}, stub)
	a := f.add(t, &models.Attachment{SiteID: "s1", URLPath: "/img/form.jpg"})

	outcome, err := f.proc.Process(context.Background(), a, ProcessOptions{Mode: detector.ModeAI})
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	got := f.reload(t, a.ID)
	require.Equal(t, "scanned form", got.TextContent)
	require.Equal(t, "scanned form", got.OCRContent)
	require.Equal(t, "a registration form\n\ncontains an id card", got.LLMContent)
	require.True(t, got.HasIDCard)
	require.Equal(t, []string{"scanned form\na registration form"}, stub.seen)
}

func TestProcessAIWithoutClassifierFallsBack(t *testing.T) {
	f := newFixture(t, map[string][]byte{"/a.txt": []byte("nothing here")}, nil)
	a := f.add(t, &models.Attachment{SiteID: "s1", URLPath: "/a.txt"})
	outcome, err := f.proc.Process(context.Background(), a, ProcessOptions{Mode: detector.ModeAI})
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)
	require.Empty(t, f.reload(t, a.ID).LLMContent)
}

func TestProcessAfterCommitPanicIsContained(t *testing.T) {
	f := newFixture(t, map[string][]byte{"/a.txt": []byte("x")}, nil)
	a := f.add(t, &models.Attachment{SiteID: "s1", URLPath: "/a.txt"})
	outcome, err := f.proc.Process(context.Background(), a, ProcessOptions{
		AfterCommit: func(*models.Attachment) { panic("listener gone") },
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)
	require.NotNil(t, f.reload(t, a.ID).ProcessedAt)
}

type failingStore struct {
	*models.AttachmentStore
}

func (failingStore) Save(ctx context.Context, a *models.Attachment) error {
	return errors.New("disk full")
}

func TestProcessSaveFailureIsAnError(t *testing.T) {
	f := newFixture(t, map[string][]byte{"/a.txt": []byte("x")}, nil)
	f.proc.store = failingStore{f.store}
	outcome, err := f.proc.Process(context.Background(), &models.Attachment{ID: 7, URLPath: "/a.txt", FileExt: "txt"}, ProcessOptions{})
	require.Error(t, err)
	require.Equal(t, OutcomeFailed, outcome)
}

func TestRunCountsAndEvents(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"/s/a.txt": []byte("电话 13812345678"),
		"/s/b.txt": []byte("clean"),
	}, nil)
	f.add(t, &models.Attachment{SiteID: "site", URLPath: "/s/a.txt"})
	f.add(t, &models.Attachment{SiteID: "site", URLPath: "/s/b.txt"})
	f.add(t, &models.Attachment{SiteID: "site", URLPath: "/s/missing.pdf"})
	f.add(t, &models.Attachment{SiteID: "other", URLPath: "/s/a.txt"})

	var events []progress.Event
	res, err := f.runner.Run(context.Background(), "site", RunOptions{
		Mode: detector.ModeNormal,
		Sink: func(ev progress.Event) { events = append(events, ev) },
	})
	require.NoError(t, err)
	require.Equal(t, BatchResult{Processed: 3, Sensitive: 1, Skipped: 1, Total: 3}, res)

	require.Len(t, events, 5)
	require.Equal(t, progress.NewEvent(0, 3, "Starting detection for 3 attachments..."), events[0])
	require.Equal(t, progress.NewEvent(1, 3, "Processing attachment 1/3..."), events[1])
	require.Equal(t, progress.StatusCompleted, events[3].Status)
	require.Equal(t, progress.NewEvent(3, 3, "Detection completed. 1 attachments with sensitive info detected out of 3."), events[4])
}

func TestRunEmptySite(t *testing.T) {
	f := newFixture(t, nil, nil)
	var events []progress.Event
	res, err := f.runner.Run(context.Background(), "none", RunOptions{Sink: func(ev progress.Event) { events = append(events, ev) }})
	require.NoError(t, err)
	require.Equal(t, BatchResult{}, res)
	require.Len(t, events, 2)
	require.Equal(t, progress.StatusCompleted, events[0].Status)
}

func TestDownloadOnly(t *testing.T) {
	f := newFixture(t, map[string][]byte{"/d/a.pdf": []byte("%PDF")}, nil)
	f.add(t, &models.Attachment{SiteID: "site", URLPath: "/d/a.pdf"})
	f.add(t, &models.Attachment{SiteID: "site", URLPath: "/d/a.pdf"})
	f.add(t, &models.Attachment{SiteID: "site", URLPath: "/d/missing.doc"})

	res, err := f.runner.DownloadOnly(context.Background(), "site")
	require.NoError(t, err)
	require.Equal(t, DownloadResult{Downloaded: 2, Total: 3}, res)
	require.EqualValues(t, 1, atomic.LoadInt32(f.hits["/d/a.pdf"]))

	local, err := f.cache.Resolve(f.srv.URL + "/d/a.pdf")
	require.NoError(t, err)
	require.FileExists(t, local)
	require.Equal(t, filepath.Dir(local), filepath.Join(f.cache.Root(), "d"))
}

// cancellingStore cancels the caller's context after the first successful save.
type cancellingStore struct {
	*models.AttachmentStore
	cancel context.CancelFunc
	once   sync.Once
}

func (s *cancellingStore) Save(ctx context.Context, a *models.Attachment) error {
	if err := s.AttachmentStore.Save(ctx, a); err != nil {
		return err
	}
	if a.ProcessedAt != nil {
		s.once.Do(s.cancel)
	}
	return nil
}

func TestRunIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"/c/a.txt": []byte("clean"),
		"/c/b.txt": []byte("电话 13812345678"),
		"/c/c.txt": []byte("clean too"),
	}, nil)
	a := f.add(t, &models.Attachment{SiteID: "site", URLPath: "/c/a.txt", FileExt: "txt"})
	b := f.add(t, &models.Attachment{SiteID: "site", URLPath: "/c/b.txt", FileExt: "txt"})
	c := f.add(t, &models.Attachment{SiteID: "site", URLPath: "/c/c.txt", FileExt: "txt"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.proc.store = &cancellingStore{AttachmentStore: f.store, cancel: cancel}

	var events []progress.Event
	res, err := f.runner.Run(ctx, "site", RunOptions{Sink: func(ev progress.Event) { events = append(events, ev) }})
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	require.Equal(t, BatchResult{Processed: 3, Sensitive: 1, Total: 3}, res)

	require.Len(t, events, 5)
	for i, ev := range events[:4] {
		require.Equal(t, i, ev.Current)
	}
	require.Equal(t, progress.NewEvent(3, 3, "Detection completed. 1 attachments with sensitive info detected out of 3."), events[4])

	for _, id := range []uint{a.ID, b.ID, c.ID} {
		require.NotNil(t, f.reload(t, id).ProcessedAt, "attachment %d", id)
	}
	require.True(t, f.reload(t, b.ID).HasPhone)
}

// saveFailsFor rejects saves of one attachment id.
type saveFailsFor struct {
	*models.AttachmentStore
	id uint
}

func (s saveFailsFor) Save(ctx context.Context, a *models.Attachment) error {
	if a.ID == s.id {
		return errors.New("disk full")
	}
	return s.AttachmentStore.Save(ctx, a)
}

func TestRunCountsFailedRecords(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"/f/a.txt": []byte("clean"),
		"/f/b.txt": []byte("电话 13812345678"),
	}, nil)
	f.add(t, &models.Attachment{SiteID: "site", URLPath: "/f/a.txt", FileExt: "txt"})
	bad := f.add(t, &models.Attachment{SiteID: "site", URLPath: "/f/b.txt", FileExt: "txt"})
	f.proc.store = saveFailsFor{AttachmentStore: f.store, id: bad.ID}

	var events []progress.Event
	res, err := f.runner.Run(context.Background(), "site", RunOptions{Sink: func(ev progress.Event) { events = append(events, ev) }})
	require.NoError(t, err)
	require.Equal(t, BatchResult{Processed: 1, Failed: 1, Total: 2}, res)

	require.Len(t, events, 4)
	for i, want := range []int{0, 1, 2, 2} {
		require.Equal(t, want, events[i].Current)
		require.Equal(t, 2, events[i].Total)
	}
	require.Equal(t, "Processing attachment 2/2...", events[2].Message)
	require.Equal(t, "Detection completed. 0 attachments with sensitive info detected out of 1.", events[3].Message)
	require.False(t, f.reload(t, bad.ID).HasPhone)
}

func TestDownloadOnlyIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t, map[string][]byte{"/d/a.pdf": []byte("%PDF"), "/d/b.pdf": []byte("%PDF")}, nil)
	f.add(t, &models.Attachment{SiteID: "site", URLPath: "/d/a.pdf"})
	f.add(t, &models.Attachment{SiteID: "site", URLPath: "/d/b.pdf"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.runner.DownloadOnly(ctx, "site")
	require.NoError(t, err)
	require.Equal(t, DownloadResult{Downloaded: 2, Total: 2}, res)
}
