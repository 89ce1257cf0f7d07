package httpd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrServerClosed は Shutdown 後に Serve が返すエラー
var ErrServerClosed = errors.New("httpd: サーバーは停止しています")

const (
	DefaultMaxClients = 10

	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = 1 * time.Second
)

// Options はサーバーの設定
type Options struct {
	MaxClients int // 同時接続数の上限
	Handler    HandlerOptions
}

// ConnInfo は処理中の接続の情報
type ConnInfo struct {
	ID         string    `json:"id"`
	Peer       string    `json:"peer"`
	State      string    `json:"state"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Server は接続を受け付け、ハンドラへ振り分ける
type Server struct {
	handler   *Handler
	admission *Admission
	conns     *xsync.MapOf[string, *Conn]
	stats     counters

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewServer は新しいServerを作成する
func NewServer(resolver Resolver, opts Options) *Server {
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}

	return &Server{
		handler:   NewHandler(resolver, &IOLock{}, opts.Handler),
		admission: NewAdmission(opts.MaxClients),
		conns:     xsync.NewMapOf[string, *Conn](xsync.WithPresize(opts.MaxClients)),
	}
}

// Listen はTCPでアドレスをバインドする
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s のリッスンに失敗: %w", addr, err)
	}
	return ln, nil
}

// ListenAndServe はアドレスをバインドして Serve を呼ぶ
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := Listen(addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve は ln で接続を受け付け続ける。ctx のキャンセルか Shutdown で ErrServerClosed を返す
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	// コンテキストがキャンセルされたらリスナーを閉じて Accept を解除する
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	log.Printf("HTTP/1.0 サーバーを起動しました: %s (同時接続数上限: %d)", ln.Addr(), s.admission.Max())

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosed() || ctx.Err() != nil {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("リスナーが閉じられました: %w", err)
			}

			// 一時的なエラーはログに残して再試行する
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			log.Printf("接続の受け付けに失敗: %v (%v 後に再試行)", err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		c := newConn(nc)
		s.stats.accepted.Add(1)

		if !s.admission.Acquire() {
			s.reject(c)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			s.admission.Release()
			c.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()

		s.conns.Store(c.ID, c)
		go s.handle(c)
	}
}

// handle はハンドラを実行し、終了時に必ず枠を返却する
func (s *Server) handle(c *Conn) {
	defer s.wg.Done()
	defer s.admission.Release()
	defer s.conns.Delete(c.ID)

	status := s.handler.ServeConn(c)
	s.stats.countResponse(status)
	log.Printf("[%s] 接続を終了しました (status=%d)", c.ShortID(), status)
}

// reject は 503 を同期的に書き込んで切断する
func (s *Server) reject(c *Conn) {
	defer c.Close()

	s.stats.rejected.Add(1)
	log.Printf("[%s] 同時接続数の上限 (%d) に達したため拒否します: %s", c.ShortID(), s.admission.Max(), c.Peer())

	if err := WriteError(c, http.StatusServiceUnavailable); err != nil {
		log.Printf("[%s] 503 の送信に失敗: %v", c.ShortID(), err)
		return
	}
	s.stats.countResponse(http.StatusServiceUnavailable)
}

// Shutdown は新規接続の受け付けを止め、処理中の接続の終了を待つ。
// ctx が先に終了した場合は残りの接続を強制的に閉じる
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("リスナーのクローズに失敗: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.conns.Range(func(id string, c *Conn) bool {
			log.Printf("[%s] シャットダウンのため接続を強制終了します (state=%s)", c.ShortID(), c.State())
			c.Close()
			return true
		})
		return fmt.Errorf("処理中の接続が残っています: %w", ctx.Err())
	}
}

// Addr はリッスン中のアドレスを返す。Serve 前は nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats は統計情報を返す
func (s *Server) Stats() Stats {
	return Stats{
		Active:     s.admission.Active(),
		MaxClients: s.admission.Max(),
		Accepted:   s.stats.accepted.Load(),
		Rejected:   s.stats.rejected.Load(),
		Responses:  s.stats.responses(),
	}
}

// Connections は処理中の接続を受け付け順で返す
func (s *Server) Connections() []ConnInfo {
	infos := make([]ConnInfo, 0, s.conns.Size())
	s.conns.Range(func(id string, c *Conn) bool {
		infos = append(infos, ConnInfo{
			ID:         id,
			Peer:       c.Peer(),
			State:      c.State().String(),
			AcceptedAt: c.AcceptedAt,
		})
		return true
	})

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].AcceptedAt.Before(infos[j].AcceptedAt)
	})
	return infos
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
