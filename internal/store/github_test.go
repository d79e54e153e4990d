package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarwaha/release-relay/pkg/models"
)

// fakeRelease is an in-memory stand-in for the release asset API,
// covering resolution by tag, paginated listing, uploads and deletes.
type fakeRelease struct {
	mu     sync.Mutex
	nextID int64
	assets []*storedAsset
	srv    *httptest.Server
}

type storedAsset struct {
	id      int64
	name    string
	content []byte
}

func newFakeRelease() *fakeRelease {
	f := &fakeRelease{nextID: 1}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeRelease) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/repos/owner/repo/releases/tags/stable":
		fmt.Fprintf(w, `{"id":7,"upload_url":"%s/uploads/7{?name,label}"}`, f.srv.URL)

	case r.Method == http.MethodGet && path == "/repos/owner/repo/releases/7/assets":
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		start := (page - 1) * perPage
		end := start + perPage
		if start > len(f.assets) {
			start = len(f.assets)
		}
		if end > len(f.assets) {
			end = len(f.assets)
		}
		var sb strings.Builder
		sb.WriteString("[")
		for i, a := range f.assets[start:end] {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, `{"id":%d,"name":%q,"size":%d,"browser_download_url":"%s/download/%s"}`,
				a.id, a.name, len(a.content), f.srv.URL, a.name)
		}
		sb.WriteString("]")
		io.WriteString(w, sb.String())

	case r.Method == http.MethodPost && strings.HasPrefix(path, "/uploads/7"):
		name := r.URL.Query().Get("name")
		body, _ := io.ReadAll(r.Body)
		a := &storedAsset{id: f.nextID, name: name, content: body}
		f.nextID++
		f.assets = append(f.assets, a)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":%d,"name":%q,"size":%d,"browser_download_url":"%s/download/%s"}`,
			a.id, a.name, len(a.content), f.srv.URL, a.name)

	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/repos/owner/repo/releases/assets/"):
		id, _ := strconv.ParseInt(strings.TrimPrefix(path, "/repos/owner/repo/releases/assets/"), 10, 64)
		for i, a := range f.assets {
			if a.id == id {
				f.assets = append(f.assets[:i], f.assets[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/repos/owner/repo/releases/assets/"):
		id, _ := strconv.ParseInt(strings.TrimPrefix(path, "/repos/owner/repo/releases/assets/"), 10, 64)
		for _, a := range f.assets {
			if a.id == id {
				w.Write(a.content)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeRelease) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, a := range f.assets {
		names = append(names, a.name)
	}
	sort.Strings(names)
	return names
}

func (f *fakeRelease) contentOf(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		if a.name == name {
			return a.content, true
		}
	}
	return nil, false
}

func (f *fakeRelease) seed(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.assets = append(f.assets, &storedAsset{
			id:      f.nextID,
			name:    fmt.Sprintf("seed-%03d.bin", i),
			content: []byte("x"),
		})
		f.nextID++
	}
}

func newTestStore(t *testing.T) (*GitHubStore, *fakeRelease) {
	t.Helper()
	f := newFakeRelease()
	t.Cleanup(f.srv.Close)
	return NewGitHub("token", "owner/repo", "stable").WithBaseURL(f.srv.URL), f
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestUploadCreatesAsset(t *testing.T) {
	st, f := newTestStore(t)
	path := writeTemp(t, "hello release")

	asset, err := st.Upload(context.Background(), path, "hello.bin", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello.bin", asset.Name)
	assert.Equal(t, int64(len("hello release")), asset.Size)
	assert.Contains(t, asset.PublicURL, "/download/hello.bin")

	got, ok := f.contentOf("hello.bin")
	require.True(t, ok)
	assert.Equal(t, "hello release", string(got))
}

func TestUploadOverwritesExisting(t *testing.T) {
	st, f := newTestStore(t)

	_, err := st.Upload(context.Background(), writeTemp(t, "first"), "same.bin", nil, nil)
	require.NoError(t, err)
	_, err = st.Upload(context.Background(), writeTemp(t, "second"), "same.bin", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"same.bin"}, f.names())
	got, ok := f.contentOf("same.bin")
	require.True(t, ok)
	assert.Equal(t, "second", string(got))
}

func TestUploadReportsProgress(t *testing.T) {
	st, _ := newTestStore(t)
	path := writeTemp(t, "payload bytes")

	var final int64
	var total int64
	_, err := st.Upload(context.Background(), path, "p.bin", func(sent, tot int64) {
		final = sent
		total = tot
	}, nil)
	require.NoError(t, err)
	// The completion tick always fires, regardless of the report interval.
	assert.Equal(t, int64(len("payload bytes")), final)
	assert.Equal(t, int64(len("payload bytes")), total)
}

func TestUploadHonorsCancel(t *testing.T) {
	st, f := newTestStore(t)
	path := writeTemp(t, "never makes it")

	_, err := st.Upload(context.Background(), path, "c.bin", nil, func() error {
		return models.ErrStoppedByAdmin
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStoppedByAdmin)
	_, ok := f.contentOf("c.bin")
	assert.False(t, ok)
}

func TestDeleteMissingAsset(t *testing.T) {
	st, _ := newTestStore(t)

	err := st.Delete(context.Background(), "nope.bin")
	assert.ErrorIs(t, err, models.ErrAssetNotFound)
}

func TestMissingReleaseIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	st := NewGitHub("token", "owner/repo", "stable").WithBaseURL(srv.URL)
	_, err := st.List(context.Background())
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestListPaginates(t *testing.T) {
	st, f := newTestStore(t)
	f.seed(2*assetsPerPage + 37)

	assets, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, assets, 2*assetsPerPage+37)
}

func TestRenameMovesContent(t *testing.T) {
	st, f := newTestStore(t)
	_, err := st.Upload(context.Background(), writeTemp(t, "movable"), "old.bin", nil, nil)
	require.NoError(t, err)

	renamed, err := st.Rename(context.Background(), "old.bin", "new.bin")
	require.NoError(t, err)
	assert.Equal(t, "new.bin", renamed.Name)

	_, ok := f.contentOf("old.bin")
	assert.False(t, ok)
	got, ok := f.contentOf("new.bin")
	require.True(t, ok)
	assert.Equal(t, "movable", string(got))
}

func TestRenameMissingSource(t *testing.T) {
	st, _ := newTestStore(t)

	_, err := st.Rename(context.Background(), "ghost.bin", "new.bin")
	assert.ErrorIs(t, err, models.ErrAssetNotFound)
}
