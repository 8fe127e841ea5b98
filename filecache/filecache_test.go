package filecache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveMapsURLPathUnderRoot(t *testing.T) {
	root := t.TempDir()
	c := New(root, 0)

	local, err := c.Resolve("http://www.example.edu.cn/_upload/article/files/a/b.pdf?x=1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "_upload", "article", "files", "a", "b.pdf"), local)

	info, err := os.Stat(filepath.Dir(local))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	again, err := c.Resolve("http://other.host/_upload/article/files/a/b.pdf")
	require.NoError(t, err)
	require.Equal(t, local, again)
}

func TestResolveKeepsTraversalInsideRoot(t *testing.T) {
	root := t.TempDir()
	c := New(root, 0)

	local, err := c.Resolve("http://h/../../etc/passwd")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "etc", "passwd"), local)

	_, err = c.Resolve("http://h/")
	require.ErrorIs(t, err, ErrEmptyPath)
}

func TestEnsureFetchedDownloadsOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := New(t.TempDir(), 0)
	ctx := context.Background()

	local, err := c.EnsureFetched(ctx, srv.URL+"/files/doc.txt")
	require.NoError(t, err)
	b, err := os.ReadFile(local)
	require.NoError(t, err)
	require.Equal(t, "payload", string(b))

	again, err := c.EnsureFetched(ctx, srv.URL+"/files/doc.txt")
	require.NoError(t, err)
	require.Equal(t, local, again)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
	require.True(t, c.Cached(srv.URL+"/files/doc.txt"))
}

func TestEnsureFetchedCollapsesConcurrentCalls(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := New(t.TempDir(), 0)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.EnsureFetched(context.Background(), srv.URL+"/same.bin")
			require.NoError(t, err)
		}()
	}
	for atomic.LoadInt32(&hits) == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestEnsureFetchedStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(t.TempDir(), 0)
	_, err := c.EnsureFetched(context.Background(), srv.URL+"/missing.pdf")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrHTTPStatus)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusNotFound, se.StatusCode)
	require.False(t, c.Cached(srv.URL+"/missing.pdf"))
}
