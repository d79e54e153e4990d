package hls

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarwaha/release-relay/pkg/models"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
720/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=842x480
480/playlist.m3u8
`

func TestParseMasterSortsByBandwidth(t *testing.T) {
	variants := ParseMaster(masterPlaylist, "https://cdn.example/live/master.m3u8")
	require.Len(t, variants, 3)

	assert.Equal(t, "720p", variants[0].Name)
	assert.Equal(t, 2800000, variants[0].Bandwidth)
	assert.Equal(t, "https://cdn.example/live/720/playlist.m3u8", variants[0].URL)
	assert.Equal(t, "480p", variants[1].Name)
	assert.Equal(t, "360p", variants[2].Name)
}

func TestParseMasterWithoutResolution(t *testing.T) {
	content := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=500000\nlow.m3u8\n"
	variants := ParseMaster(content, "https://cdn.example/master.m3u8")
	require.Len(t, variants, 1)
	assert.Equal(t, "Quality 1", variants[0].Name)
	assert.Equal(t, 0, variants[0].Height)
}

func TestParseSegments(t *testing.T) {
	content := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXTINF:6.0,
seg0.ts
#EXTINF:6.0,
seg1.ts
#EXTINF:4.2,
https://other.example/seg2.ts
#EXT-X-ENDLIST
`
	segments := ParseSegments(content, "https://cdn.example/720/playlist.m3u8")
	assert.Equal(t, []string{
		"https://cdn.example/720/seg0.ts",
		"https://cdn.example/720/seg1.ts",
		"https://other.example/seg2.ts",
	}, segments)
}

func TestSelectVariant(t *testing.T) {
	variants := ParseMaster(masterPlaylist, "https://cdn.example/master.m3u8")

	tests := []struct {
		name string
		hint int
		want string
	}{
		{"no hint picks best", 0, "720p"},
		{"exact match", 480, "480p"},
		{"rounds down", 600, "480p"},
		{"below lowest falls back to best", 200, "720p"},
		{"above highest picks highest", 2160, "720p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := SelectVariant(variants, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Name)
		})
	}
}

func TestSelectVariantEmpty(t *testing.T) {
	_, err := SelectVariant(nil, 720)
	assert.Error(t, err)
}

func TestIsPlaylist(t *testing.T) {
	assert.True(t, IsPlaylist(masterPlaylist))
	assert.True(t, IsPlaylist("#EXTINF:6.0,\nseg.ts"))
	assert.False(t, IsPlaylist("<html>not a stream</html>"))
}

// Serves a master playlist, two variant playlists and numbered segments,
// so an end-to-end assembly can be asserted byte for byte.
func newStreamServer(t *testing.T, failSegment string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
720.m3u8
`)
	})
	media := func(prefix string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "#EXTM3U\n#EXTINF:6.0,\n%s-0.ts\n#EXTINF:6.0,\n%s-1.ts\n#EXTINF:6.0,\n%s-2.ts\n#EXT-X-ENDLIST\n",
				prefix, prefix, prefix)
		}
	}
	mux.HandleFunc("/360.m3u8", media("360"))
	mux.HandleFunc("/720.m3u8", media("720"))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path[1:] == failSegment {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "[%s]", r.URL.Path[1:])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchStreamAssemblesInOrder(t *testing.T) {
	srv := newStreamServer(t, "")
	f := newTestFetcher(t)

	var lastSoFar int64
	path, size, err := f.FetchStream(context.Background(), srv.URL+"/master.m3u8", 360, func(soFar, total int64) {
		assert.GreaterOrEqual(t, soFar, lastSoFar)
		assert.Equal(t, int64(0), total)
		lastSoFar = soFar
	})
	require.NoError(t, err)
	defer os.Remove(path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[360-0.ts][360-1.ts][360-2.ts]", string(content))
	assert.Equal(t, int64(len(content)), size)
	assert.Equal(t, size, lastSoFar)
}

func TestFetchStreamPicksBestWithoutHint(t *testing.T) {
	srv := newStreamServer(t, "")
	f := newTestFetcher(t)

	path, _, err := f.FetchStream(context.Background(), srv.URL+"/master.m3u8", 0, nil)
	require.NoError(t, err)
	defer os.Remove(path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[720-0.ts][720-1.ts][720-2.ts]", string(content))
}

func TestFetchStreamSkipsFailedSegment(t *testing.T) {
	srv := newStreamServer(t, "360-1.ts")
	f := newTestFetcher(t)

	path, _, err := f.FetchStream(context.Background(), srv.URL+"/master.m3u8", 360, nil)
	require.NoError(t, err)
	defer os.Remove(path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[360-0.ts][360-2.ts]", string(content))
}

func TestFetchStreamMediaPlaylistDirectly(t *testing.T) {
	srv := newStreamServer(t, "")
	f := newTestFetcher(t)

	path, _, err := f.FetchStream(context.Background(), srv.URL+"/360.m3u8", 0, nil)
	require.NoError(t, err)
	defer os.Remove(path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[360-0.ts][360-1.ts][360-2.ts]", string(content))
}

func TestFetchStreamRejectsNonPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>nope</html>")
	}))
	defer srv.Close()
	f := newTestFetcher(t)

	_, _, err := f.FetchStream(context.Background(), srv.URL+"/page", 0, nil)
	assert.ErrorIs(t, err, models.ErrDownloadFailed)
}

func TestFetchStreamCancelled(t *testing.T) {
	srv := newStreamServer(t, "")
	f := newTestFetcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := f.FetchStream(ctx, srv.URL+"/master.m3u8", 0, nil)
	assert.Error(t, err)
}
