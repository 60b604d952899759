package migrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"imgmigrate/internal/apperr"
	"imgmigrate/internal/backend"
	"imgmigrate/internal/models"
)

type fakeFetcher struct {
	dir     string
	ext     map[string]string
	fail    map[string]error
	fetched []string
	paths   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (models.DownloadedAsset, error) {
	f.fetched = append(f.fetched, url)
	if err := f.fail[url]; err != nil {
		return models.DownloadedAsset{}, err
	}
	tmp, err := os.CreateTemp(f.dir, "img-migrate-*")
	if err != nil {
		return models.DownloadedAsset{}, err
	}
	_, _ = tmp.WriteString("bytes")
	_ = tmp.Close()
	f.paths = append(f.paths, tmp.Name())
	return models.DownloadedAsset{Path: tmp.Name(), Extension: f.ext[url], Size: 5}, nil
}

type uploadCall struct {
	sourceURL string
	format    string
	options   models.UploadOptions
}

type fakeUploader struct {
	results map[string]string
	errs    map[string]error
	calls   []uploadCall
	seen    []string
}

func (u *fakeUploader) Upload(_ context.Context, path, sourceURL, format string, options models.UploadOptions) (models.UploadResult, error) {
	data, _ := os.ReadFile(path)
	u.seen = append(u.seen, string(data))
	u.calls = append(u.calls, uploadCall{sourceURL: sourceURL, format: format, options: options})
	key := u.key(len(u.calls) - 1)
	if err := u.errs[key]; err != nil {
		return models.UploadResult{}, err
	}
	return models.UploadResult{URL: u.results[key]}, nil
}

func (u *fakeUploader) key(i int) string { return u.calls[i].format + ":" + strconv.Itoa(i) }

type fakeStore struct {
	content   map[int64]string
	records   []models.MigrationRecord
	saveErr   error
	recordErr error
	saves     int
}

// SavePostMigration commits content and records together, like the sql store.
func (s *fakeStore) SavePostMigration(_ context.Context, postID int64, content string, records []models.MigrationRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.recordErr != nil {
		return s.recordErr
	}
	s.saves++
	s.content[postID] = content
	s.records = append(s.records, records...)
	return nil
}

type countingObserver struct {
	downloaded int64
	migrated   int
	duplicates int
	failed     map[Stage]int
}

func (o *countingObserver) ImageDownloaded(n int64) { o.downloaded += n }
func (o *countingObserver) ImageMigrated()          { o.migrated++ }
func (o *countingObserver) DuplicateReused()        { o.duplicates++ }
func (o *countingObserver) StageFailed(s Stage)     { o.failed[s]++ }

func intPtr(v int) *int { return &v }

func testPost() models.Post {
	return models.Post{
		ID:           42,
		DiscussionID: 7,
		Number:       intPtr(3),
		Type:         models.PostTypeComment,
		RawContent:   `<p>x</p><img src="https://ext.example.com/a.png"><img src="https://ext.example.com/b.jpg">`,
	}
}

func testFindings(post models.Post) []models.Finding {
	return []models.Finding{
		{DiscussionID: post.DiscussionID, PostID: post.ID, PostNumber: post.Number, ImageURL: "https://ext.example.com/a.png"},
		{DiscussionID: post.DiscussionID, PostID: post.ID, PostNumber: post.Number, ImageURL: "https://ext.example.com/b.jpg"},
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp files to be removed, found %d", len(entries))
	}
}

func TestMigratePostEndToEnd(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{dir: dir, ext: map[string]string{
		"https://ext.example.com/a.png": "png",
		"https://ext.example.com/b.jpg": "jpg",
	}}
	uploader := &fakeUploader{results: map[string]string{
		"webp:0": "https://cdn.mysite.com/a.webp",
		"avif:1": "https://cdn.mysite.com/b.avif",
	}}
	store := &fakeStore{content: map[int64]string{}}
	observer := &countingObserver{failed: map[Stage]int{}}
	fixed := time.Date(2025, 11, 25, 10, 0, 0, 0, time.UTC)

	m := New(fetcher, uploader, store, DefaultUploadPolicy(), "https://forum.test/", WithObserver(observer), WithClock(func() time.Time { return fixed }))
	post := testPost()
	records, err := m.MigratePost(context.Background(), post, testFindings(post))
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	want := `<p>x</p><img src="https://cdn.mysite.com/a.webp"><img src="https://cdn.mysite.com/b.avif">`
	if store.content[42] != want {
		t.Fatalf("unexpected content %q", store.content[42])
	}
	if store.saves != 1 {
		t.Fatalf("expected a single save, got %d", store.saves)
	}
	if len(records) != 2 || len(store.records) != 2 {
		t.Fatalf("expected 2 records, got %d returned and %d stored", len(records), len(store.records))
	}
	first := store.records[0]
	if first.PostID != 42 || first.DiscussionID != 7 || first.OriginalURL != "https://ext.example.com/a.png" || first.NewURL != "https://cdn.mysite.com/a.webp" || !first.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected record %+v", first)
	}
	if uploader.calls[0].sourceURL != "https://forum.test/d/7/3" {
		t.Fatalf("unexpected source url %q", uploader.calls[0].sourceURL)
	}
	opts := uploader.calls[0].options
	if opts.Lossless || opts.ScaleFactor != 1.01 || opts.Quality["webp"] != 75 || opts.Quality["avif"] != 50 || opts.Effort["webp"] != 6 || opts.Effort["avif"] != 8 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if uploader.seen[0] != "bytes" {
		t.Fatalf("uploader should read the downloaded file, got %q", uploader.seen[0])
	}
	if observer.migrated != 2 || observer.downloaded != 10 {
		t.Fatalf("unexpected observer counts %+v", observer)
	}
	assertNoTempFiles(t, dir)
}

func TestMigratePostRejectsNonComment(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir()}
	m := New(fetcher, &fakeUploader{}, &fakeStore{content: map[int64]string{}}, DefaultUploadPolicy(), "https://forum.test")
	post := testPost()
	post.Type = models.PostType("discussionRenamed")

	_, err := m.MigratePost(context.Background(), post, testFindings(post))
	if !apperr.IsKind(err, apperr.KindMigration) {
		t.Fatalf("expected migration error, got %v", err)
	}
	if len(fetcher.fetched) != 0 {
		t.Fatalf("no fetch should happen for non-comment posts")
	}
}

func TestMigratePostFailFast(t *testing.T) {
	tests := []struct {
		name      string
		fetchErr  error
		uploadErr error
		content   string
		wantKind  apperr.Kind
		wantStage Stage
	}{
		{
			name:      "second fetch fails",
			fetchErr:  apperr.New(apperr.KindFetch, "download failed"),
			wantKind:  apperr.KindFetch,
			wantStage: StageFetch,
		},
		{
			name:      "second upload fails",
			uploadErr: apperr.New(apperr.KindUpload, "upload failed with HTTP 500"),
			wantKind:  apperr.KindUpload,
			wantStage: StageUpload,
		},
		{
			name:      "second url missing from content",
			content:   `<img src="https://ext.example.com/a.png">`,
			wantKind:  apperr.KindNotFound,
			wantStage: StageRewrite,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			fetcher := &fakeFetcher{dir: dir, ext: map[string]string{}, fail: map[string]error{}}
			if tc.fetchErr != nil {
				fetcher.fail["https://ext.example.com/b.jpg"] = tc.fetchErr
			}
			uploader := &fakeUploader{
				results: map[string]string{"avif:0": "https://cdn/a.avif", "avif:1": "https://cdn/b.avif"},
				errs:    map[string]error{},
			}
			if tc.uploadErr != nil {
				uploader.errs["avif:1"] = tc.uploadErr
			}
			store := &fakeStore{content: map[int64]string{}}
			observer := &countingObserver{failed: map[Stage]int{}}
			m := New(fetcher, uploader, store, DefaultUploadPolicy(), "https://forum.test", WithObserver(observer))

			post := testPost()
			if tc.content != "" {
				post.RawContent = tc.content
			}
			_, err := m.MigratePost(context.Background(), post, testFindings(post))
			if !apperr.IsKind(err, tc.wantKind) {
				t.Fatalf("expected %s error, got %v", tc.wantKind, err)
			}
			if store.saves != 0 || len(store.records) != 0 {
				t.Fatalf("expected no writes, got %d saves and %d records", store.saves, len(store.records))
			}
			if observer.failed[tc.wantStage] != 1 {
				t.Fatalf("expected one %s failure, got %+v", tc.wantStage, observer.failed)
			}
			assertNoTempFiles(t, dir)
		})
	}
}

func TestMigratePostSaveFailureWritesNoRecords(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{content: map[int64]string{}, saveErr: errors.New("disk full")}
	uploader := &fakeUploader{results: map[string]string{"avif:0": "https://cdn/a.avif", "avif:1": "https://cdn/b.avif"}}
	m := New(&fakeFetcher{dir: dir}, uploader, store, DefaultUploadPolicy(), "https://forum.test")

	post := testPost()
	_, err := m.MigratePost(context.Background(), post, testFindings(post))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected save error, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("records must not be appended when the save fails")
	}
	assertNoTempFiles(t, dir)
}

func TestMigratePostLogFailureLeavesContentUntouched(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{content: map[int64]string{}, recordErr: errors.New("log table locked")}
	uploader := &fakeUploader{results: map[string]string{"avif:0": "https://cdn/a.avif", "avif:1": "https://cdn/b.avif"}}
	observer := &countingObserver{failed: map[Stage]int{}}
	m := New(&fakeFetcher{dir: dir}, uploader, store, DefaultUploadPolicy(), "https://forum.test", WithObserver(observer))

	post := testPost()
	records, err := m.MigratePost(context.Background(), post, testFindings(post))
	if err == nil || !strings.Contains(err.Error(), "log table locked") {
		t.Fatalf("expected log error, got %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records returned, got %+v", records)
	}
	if store.saves != 0 || len(store.content) != 0 || len(store.records) != 0 {
		t.Fatalf("expected nothing committed, got %d saves, content %v, %d records", store.saves, store.content, len(store.records))
	}
	if observer.failed[StageSave] != 1 || observer.migrated != 0 {
		t.Fatalf("unexpected observer state %+v", observer)
	}
	assertNoTempFiles(t, dir)
}

func TestMigratePostReusesDuplicate(t *testing.T) {
	dir := t.TempDir()
	dup := &backend.DuplicateUploadError{OptimizedURL: "https://cdn/existing.avif"}
	uploader := &fakeUploader{
		results: map[string]string{"avif:1": "https://cdn/b.avif"},
		errs:    map[string]error{"webp:0": apperr.Wrap(apperr.KindUpload, dup, "upload skipped")},
	}
	store := &fakeStore{content: map[int64]string{}}
	observer := &countingObserver{failed: map[Stage]int{}}
	fetcher := &fakeFetcher{dir: dir, ext: map[string]string{"https://ext.example.com/a.png": "png"}}
	m := New(fetcher, uploader, store, DefaultUploadPolicy(), "https://forum.test", WithObserver(observer))

	post := testPost()
	records, err := m.MigratePost(context.Background(), post, testFindings(post))
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(records) != 2 || records[0].NewURL != "https://cdn/existing.avif" {
		t.Fatalf("unexpected records %+v", records)
	}
	if observer.duplicates != 1 {
		t.Fatalf("expected one reused duplicate, got %d", observer.duplicates)
	}
}

func TestMigratePostNoFindings(t *testing.T) {
	store := &fakeStore{content: map[int64]string{}}
	m := New(&fakeFetcher{dir: t.TempDir()}, &fakeUploader{}, store, DefaultUploadPolicy(), "https://forum.test")
	records, err := m.MigratePost(context.Background(), testPost(), nil)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(records) != 0 || store.saves != 0 {
		t.Fatalf("expected nothing to happen, got %d records and %d saves", len(records), store.saves)
	}
}

func TestTargetFormat(t *testing.T) {
	tests := map[string]string{
		"webp": "webp",
		"WEBP": "webp",
		"avif": "avif",
		"png":  "webp",
		"jpg":  "avif",
		"jpeg": "avif",
		"gif":  "avif",
		"":     "avif",
	}
	for ext, want := range tests {
		if got := TargetFormat(ext); got != want {
			t.Fatalf("TargetFormat(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestSourceURL(t *testing.T) {
	if got := SourceURL("https://forum.test/", 7, nil); got != "https://forum.test/d/7" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := SourceURL("https://forum.test", 7, intPtr(3)); got != "https://forum.test/d/7/3" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := SourceURL("https://forum.test/", 0, intPtr(3)); got != "https://forum.test" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestUploadPolicy(t *testing.T) {
	policy := DefaultUploadPolicy()
	opts := policy.Options()
	opts.Quality["webp"] = 1
	if policy.Options().Quality["webp"] != 75 {
		t.Fatalf("mutating options must not leak into the policy")
	}

	scaled, err := policy.WithScaleFactor(1.5)
	if err != nil {
		t.Fatalf("with scale factor: %v", err)
	}
	if scaled.ScaleFactor() != 1.5 || policy.ScaleFactor() != DefaultScaleFactor {
		t.Fatalf("unexpected scale factors %v / %v", scaled.ScaleFactor(), policy.ScaleFactor())
	}
	if _, err := policy.WithScaleFactor(0); err == nil {
		t.Fatalf("expected error for zero scale factor")
	}
	if (UploadPolicy{}).ScaleFactor() != DefaultScaleFactor {
		t.Fatalf("zero policy should fall back to the default scale factor")
	}
}

func TestMigratePostRemovesDownloads(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{content: map[int64]string{}}
	uploader := &fakeUploader{results: map[string]string{"avif:0": "https://cdn/a.avif", "avif:1": "https://cdn/b.avif"}}
	fetcher := &fakeFetcher{dir: dir}
	m := New(fetcher, uploader, store, DefaultUploadPolicy(), "https://forum.test")
	post := testPost()
	if _, err := m.MigratePost(context.Background(), post, testFindings(post)); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, p := range fetcher.paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed", filepath.Base(p))
		}
	}
}
