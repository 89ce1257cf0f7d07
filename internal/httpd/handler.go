package httpd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	DefaultRequestBufferSize = 4096
	DefaultJPEGChunkSize     = 1024
)

// HandlerOptions は接続ハンドラの設定
type HandlerOptions struct {
	RequestBufferSize int           // 1回の読み込みで受け取る最大バイト数
	JPEGChunkSize     int           // JPEG送信のチャンクサイズ
	ReadTimeout       time.Duration // 0 は無効
	WriteTimeout      time.Duration // 0 は無効
}

// Handler は1接続分のリクエストを処理する
type Handler struct {
	resolver Resolver
	ioLock   *IOLock
	opts     HandlerOptions
}

// NewHandler は新しいHandlerを作成する
func NewHandler(resolver Resolver, ioLock *IOLock, opts HandlerOptions) *Handler {
	if opts.RequestBufferSize <= 0 {
		opts.RequestBufferSize = DefaultRequestBufferSize
	}
	if opts.JPEGChunkSize <= 0 {
		opts.JPEGChunkSize = DefaultJPEGChunkSize
	}
	if ioLock == nil {
		ioLock = &IOLock{}
	}

	return &Handler{
		resolver: resolver,
		ioLock:   ioLock,
		opts:     opts,
	}
}

// ServeConn はリクエストを読み込み、応答を返して接続を閉じる。
// 送信したステータスを返す。応答を完了できなかった場合は 0
func (h *Handler) ServeConn(c *Conn) int {
	defer c.Close()

	req, ok := h.readRequest(c)
	if !ok {
		return 0
	}

	if h.opts.WriteTimeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout)); err != nil {
			log.Printf("[%s] 書き込み期限の設定に失敗: %v", c.ShortID(), err)
		}
	}

	if req == nil {
		return h.respondError(c, http.StatusBadRequest)
	}
	return h.dispatch(c, *req)
}

// readRequest は1回の読み込みでリクエストを受け取り解析する。
// 読み込みに失敗した場合は ok=false、解析に失敗した場合は req=nil を返す
func (h *Handler) readRequest(c *Conn) (req *Request, ok bool) {
	c.setState(StateReading)

	if h.opts.ReadTimeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
			log.Printf("[%s] 読み込み期限の設定に失敗: %v", c.ShortID(), err)
		}
	}

	// バッファを超えた分は読まずに切り捨てる
	buf := make([]byte, h.opts.RequestBufferSize)
	n, err := c.Read(buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			log.Printf("[%s] リクエストの読み込みに失敗: %v", c.ShortID(), err)
		}
		return nil, false
	}

	parsed, err := ParseRequest(buf[:n])
	c.setState(StateParsed)
	if err != nil {
		log.Printf("[%s] リクエストの解析に失敗: %v", c.ShortID(), err)
		return nil, true
	}

	log.Printf("[%s] REQUESTED => %s %s", c.ShortID(), parsed.Method, parsed.Target)
	return &parsed, true
}

// dispatch はメソッドと拡張子で振り分ける
func (h *Handler) dispatch(c *Conn, req Request) int {
	c.setState(StateDispatching)

	if req.Method != http.MethodGet {
		return h.respondError(c, http.StatusNotImplemented)
	}

	media, ok := mediaTypes[req.Extension]
	if !ok {
		return h.respondError(c, http.StatusBadRequest)
	}
	if traverses(req.Target) {
		log.Printf("[%s] 上位ディレクトリへの参照を拒否: %s", c.ShortID(), req.Target)
		return h.respondError(c, http.StatusBadRequest)
	}

	path := h.resolver.Resolve(req.Target)
	if !h.resolver.Exists(path) {
		log.Printf("[%s] ファイルが見つかりません: %s", c.ShortID(), path)
		return h.respondError(c, http.StatusNotFound)
	}

	c.setState(StateServing)
	err := h.ioLock.Do(func() error {
		return h.serveFile(c, path, media)
	})
	if err != nil {
		log.Printf("[%s] ファイルの送信に失敗: %v", c.ShortID(), err)
		return 0
	}
	return http.StatusOK
}

// serveFile はファイルを開いて送信する。IOLock を保持した状態で呼ぶこと
func (h *Handler) serveFile(w io.Writer, path string, media mediaType) error {
	f, err := h.resolver.Open(path)
	if err != nil {
		return fmt.Errorf("ファイルを開けません: %w", err)
	}
	defer f.Close()

	switch media.kind {
	case BodyStreamed:
		_, err = StreamJPEG(w, f, h.opts.JPEGChunkSize)
	default:
		_, err = WriteHTML(w, f)
	}
	return err
}

// respondError はエラー応答を書き込む。IOLock は取得しない
func (h *Handler) respondError(c *Conn, status int) int {
	switch status {
	case http.StatusBadRequest:
		c.setState(StateError400)
	case http.StatusNotFound:
		c.setState(StateError404)
	case http.StatusNotImplemented:
		c.setState(StateError501)
	}

	if err := WriteError(c, status); err != nil {
		log.Printf("[%s] %d の送信に失敗: %v", c.ShortID(), status, err)
		return 0
	}
	return status
}
