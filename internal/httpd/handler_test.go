package httpd

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn はメモリ上で読み書きする net.Conn
type fakeConn struct {
	net.Conn // 使用しないメソッドは呼ばれない

	in      *bytes.Reader
	out     bytes.Buffer
	readErr error
	closed  int
}

func newFakeConn(request string) *fakeConn {
	return &fakeConn{in: bytes.NewReader([]byte(request))}
}

func (f *fakeConn) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.in.Read(p)
}

func (f *fakeConn) Write(p []byte) (int, error)      { return f.out.Write(p) }
func (f *fakeConn) Close() error                     { f.closed++; return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

// parseResponse はレスポンスをステータス行・ヘッダー・本文に分ける
func parseResponse(t *testing.T, raw []byte) (statusLine, headers, body string) {
	t.Helper()

	head, body, found := strings.Cut(string(raw), "\r\n\r\n")
	require.True(t, found, "ヘッダーの終端がありません: %q", raw)
	statusLine, headers, _ = strings.Cut(head, "\r\n")
	return statusLine, headers, body
}

// newWebfiles はテスト用の配信ディレクトリを作成する
func newWebfiles(t *testing.T) (dir string, jpeg []byte) {
	t.Helper()

	root := t.TempDir()
	dir = filepath.Join(root, "webfiles")
	require.NoError(t, os.Mkdir(dir, 0o755))

	jpeg = make([]byte, 3000)
	for i := range jpeg {
		jpeg[i] = byte(i * 7)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>hi</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpeg"), jpeg, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.html"), 0o755))
	// 配信ディレクトリの外
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.html"), []byte("secret"), 0o644))

	return dir, jpeg
}

func serveFake(h *Handler, request string) (*fakeConn, *Conn, int) {
	f := newFakeConn(request)
	c := newConn(f)
	status := h.ServeConn(c)
	return f, c, status
}

func TestHandlerScenarios(t *testing.T) {
	dir, _ := newWebfiles(t)
	h := NewHandler(NewDirResolver(dir), nil, HandlerOptions{})

	tests := []struct {
		name           string
		request        string
		expectedStatus int
	}{
		{"GET html", "GET /index.html HTTP/1.0\r\n\r\n", http.StatusOK},
		{"GET jpeg", "GET /photo.jpeg HTTP/1.0\r\n\r\n", http.StatusOK},
		{"missing html", "GET /missing.html HTTP/1.0\r\n\r\n", http.StatusNotFound},
		{"missing jpeg", "GET /missing.jpeg HTTP/1.0\r\n\r\n", http.StatusNotFound},
		{"directory is not a file", "GET /dir.html HTTP/1.0\r\n\r\n", http.StatusNotFound},
		{"POST", "POST /index.html HTTP/1.0\r\n\r\n", http.StatusNotImplemented},
		{"POST with bad extension", "POST /logo.ico HTTP/1.0\r\n\r\n", http.StatusNotImplemented},
		{"HEAD", "HEAD /index.html HTTP/1.0\r\n\r\n", http.StatusNotImplemented},
		{"lowercase get", "get /index.html HTTP/1.0\r\n\r\n", http.StatusNotImplemented},
		{"unsupported extension", "GET /logo.ico HTTP/1.0\r\n\r\n", http.StatusBadRequest},
		{"no extension", "GET /README HTTP/1.0\r\n\r\n", http.StatusBadRequest},
		{"jpg is not jpeg", "GET /photo.jpg HTTP/1.0\r\n\r\n", http.StatusBadRequest},
		{"traversal", "GET /../secret.html HTTP/1.0\r\n\r\n", http.StatusBadRequest},
		{"malformed", "\r\n\r\n", http.StatusBadRequest},
		{"method only", "GET\r\n\r\n", http.StatusBadRequest},
		{"NUL ends request", "GET /index.html\x00junk HTTP/1.0\r\n\r\n", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c, status := serveFake(h, tt.request)

			assert.Equal(t, tt.expectedStatus, status)
			assert.Equal(t, 1, f.closed, "ソケットは1回だけ閉じる")
			assert.Equal(t, StateClosed, c.State())

			statusLine, _, _ := parseResponse(t, f.out.Bytes())
			assert.Equal(t, StatusLine(tt.expectedStatus), statusLine)

			if tt.expectedStatus != http.StatusOK {
				assert.Equal(t, errorBytes(t, tt.expectedStatus), f.out.Bytes())
			}
		})
	}
}

func TestHandlerServesHTML(t *testing.T) {
	dir, _ := newWebfiles(t)
	h := NewHandler(NewDirResolver(dir), nil, HandlerOptions{})

	f, _, status := serveFake(h, "GET /index.html HTTP/1.0\r\n\r\n")
	require.Equal(t, http.StatusOK, status)

	statusLine, headers, body := parseResponse(t, f.out.Bytes())
	assert.Equal(t, "HTTP/1.0 200 OK", statusLine)
	assert.Equal(t, "Content-Type: text/html; charset=UTF-8", headers)
	assert.Equal(t, "<html>hi</html>", body)
}

func TestHandlerServesJPEG(t *testing.T) {
	dir, jpeg := newWebfiles(t)
	h := NewHandler(NewDirResolver(dir), nil, HandlerOptions{JPEGChunkSize: 512})

	f, _, status := serveFake(h, "GET /photo.jpeg HTTP/1.0\r\n\r\n")
	require.Equal(t, http.StatusOK, status)

	statusLine, headers, body := parseResponse(t, f.out.Bytes())
	assert.Equal(t, "HTTP/1.0 200 OK", statusLine)
	assert.Equal(t, "Content-Type: image/jpeg", headers)
	assert.Equal(t, jpeg, []byte(body))
}

func TestHandlerTruncatesLongRequest(t *testing.T) {
	dir, _ := newWebfiles(t)
	h := NewHandler(NewDirResolver(dir), nil, HandlerOptions{RequestBufferSize: 16})

	// 16バイト目以降は読まれない
	f, _, status := serveFake(h, "GET /index.html HTTP/1.0\r\nHost: localhost\r\n\r\n")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, len("GET /index.html HTTP/1.0\r\nHost: localhost\r\n\r\n")-16, f.in.Len())
}

func TestHandlerReadFailure(t *testing.T) {
	dir, _ := newWebfiles(t)
	h := NewHandler(NewDirResolver(dir), nil, HandlerOptions{})

	t.Run("empty", func(t *testing.T) {
		f, _, status := serveFake(h, "")
		assert.Zero(t, status)
		assert.Zero(t, f.out.Len(), "応答は送らない")
		assert.Equal(t, 1, f.closed)
	})

	t.Run("error", func(t *testing.T) {
		f := newFakeConn("")
		f.readErr = errors.New("connection reset by peer")
		status := h.ServeConn(newConn(f))
		assert.Zero(t, status)
		assert.Zero(t, f.out.Len(), "応答は送らない")
		assert.Equal(t, 1, f.closed)
	})
}

// failingOpenResolver は存在確認には成功するが開けない Resolver
type failingOpenResolver struct {
	*DirResolver
}

func (r failingOpenResolver) Exists(string) bool { return true }

func (r failingOpenResolver) Open(path string) (io.ReadCloser, error) {
	return nil, os.ErrPermission
}

func TestHandlerOpenFailureReleasesLock(t *testing.T) {
	dir, _ := newWebfiles(t)
	lock := &IOLock{}
	h := NewHandler(failingOpenResolver{NewDirResolver(dir)}, lock, HandlerOptions{})

	f, _, status := serveFake(h, "GET /index.html HTTP/1.0\r\n\r\n")
	assert.Zero(t, status)
	assert.Zero(t, f.out.Len())
	assert.Equal(t, 1, f.closed)

	// ロックは解放されている
	acquired := make(chan struct{})
	go func() {
		_ = lock.Do(func() error { return nil })
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("IOLock が解放されていません")
	}
}

func TestHandlerErrorsDoNotTakeIOLock(t *testing.T) {
	dir, _ := newWebfiles(t)
	lock := &IOLock{}
	h := NewHandler(NewDirResolver(dir), lock, HandlerOptions{})

	requests := []string{
		"POST /index.html HTTP/1.0\r\n\r\n",
		"GET /logo.ico HTTP/1.0\r\n\r\n",
		"GET /missing.html HTTP/1.0\r\n\r\n",
	}

	// ロックを保持したままエラー応答が返ることを確認する
	err := lock.Do(func() error {
		done := make(chan struct{})
		go func() {
			defer close(done)
			for _, req := range requests {
				serveFake(h, req)
			}
		}()

		select {
		case <-done:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("エラー応答が IOLock を待っています")
		}
	})
	require.NoError(t, err)
}

// trackingResolver はファイルを開いている数の最大値を記録する
type trackingResolver struct {
	*DirResolver
	inside    atomic.Int32
	maxInside atomic.Int32
}

func (r *trackingResolver) Open(path string) (io.ReadCloser, error) {
	f, err := r.DirResolver.Open(path)
	if err != nil {
		return nil, err
	}

	n := r.inside.Add(1)
	for {
		cur := r.maxInside.Load()
		if n <= cur || r.maxInside.CompareAndSwap(cur, n) {
			break
		}
	}
	return &slowFile{ReadCloser: f, owner: r}, nil
}

type slowFile struct {
	io.ReadCloser
	owner *trackingResolver
}

func (f *slowFile) Read(p []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return f.ReadCloser.Read(p)
}

func (f *slowFile) Close() error {
	f.owner.inside.Add(-1)
	return f.ReadCloser.Close()
}

func TestHandlerSerializesFileIO(t *testing.T) {
	dir, jpeg := newWebfiles(t)
	resolver := &trackingResolver{DirResolver: NewDirResolver(dir)}
	h := NewHandler(resolver, nil, HandlerOptions{JPEGChunkSize: 1024})

	const clients = 8
	var wg sync.WaitGroup
	statuses := make([]int, clients)
	bodies := make([][]byte, clients)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := "/index.html"
			if i%2 == 0 {
				target = "/photo.jpeg"
			}
			f, _, status := serveFake(h, "GET "+target+" HTTP/1.0\r\n\r\n")
			statuses[i] = status
			bodies[i] = f.out.Bytes()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), resolver.maxInside.Load(), "ファイル処理が重なっています")
	assert.Zero(t, resolver.inside.Load())

	for i := 0; i < clients; i++ {
		assert.Equal(t, http.StatusOK, statuses[i])
		_, _, body := parseResponse(t, bodies[i])
		if i%2 == 0 {
			assert.Equal(t, jpeg, []byte(body))
		} else {
			assert.Equal(t, "<html>hi</html>", body)
		}
	}
}
