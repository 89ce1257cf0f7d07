package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"minihttpd/internal/config"
	"minihttpd/internal/httpd"

	"github.com/gin-gonic/gin"
)

// Server はファイルサーバーと管理APIを管理する構造体
type Server struct {
	config      *config.Config
	httpd       *httpd.Server
	engine      *gin.Engine
	adminServer *http.Server

	mu        sync.Mutex
	adminAddr net.Addr
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config) *Server {
	resolver := httpd.NewDirResolver(cfg.Files.Dir)
	core := httpd.NewServer(resolver, httpd.Options{
		MaxClients: cfg.Server.MaxClients,
		Handler: httpd.HandlerOptions{
			RequestBufferSize: cfg.Server.RequestBufferSize,
			JPEGChunkSize:     cfg.Server.JPEGChunkSize,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
	})

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config: cfg,
		httpd:  core,
		engine: engine,
		adminServer: &http.Server{
			Addr:         cfg.AdminAddress(),
			Handler:      engine,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
	s.setupRoutes()

	return s
}

// setupRoutes は管理APIのルートを設定する
func (s *Server) setupRoutes() {
	h := &AdminHandler{config: s.config, core: s.httpd}

	// ヘルスチェックエンドポイント
	s.engine.GET("/health", h.HealthCheck)

	// APIエンドポイント
	api := s.engine.Group("/api")
	api.GET("/status", h.GetStatus)
	api.GET("/connections", h.GetConnections)

	s.engine.NoRoute(h.NotFound)
}

// Start はサーバーを起動し、コンテキストのキャンセルかシグナルを受けるまで待つ
func (s *Server) Start(ctx context.Context) error {
	// HTTP/1.0 ポートのバインド失敗は致命的
	ln, err := httpd.Listen(s.config.ServerAddress())
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 2)

	go func() {
		if err := s.httpd.Serve(ctx, ln); err != nil && !errors.Is(err, httpd.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーが停止しました: %w", err)
		}
	}()

	if s.config.Admin.Enabled {
		adminLn, err := net.Listen("tcp", s.config.AdminAddress())
		if err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("管理APIの起動に失敗: %w", err)
		}
		s.mu.Lock()
		s.adminAddr = adminLn.Addr()
		s.mu.Unlock()

		go func() {
			log.Printf("管理APIを起動しています: %s", adminLn.Addr())
			if err := s.adminServer.Serve(adminLn); err != nil && err != http.ErrServerClosed {
				shutdownCh <- fmt.Errorf("管理APIの起動に失敗: %w", err)
			}
		}()
	}

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		_ = s.Shutdown()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := s.httpd.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("サーバーのシャットダウンに失敗: %w", err))
	}
	if err := s.adminServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("管理APIのシャットダウンに失敗: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}

// Addr はHTTP/1.0 ポートのアドレスを返す。起動前は nil
func (s *Server) Addr() net.Addr {
	return s.httpd.Addr()
}

// AdminAddr は管理APIのアドレスを返す。起動前または無効な場合は nil
func (s *Server) AdminAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminAddr
}
