// Package main はminihttpdサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"minihttpd/internal/config"
	"minihttpd/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", "", "YAML設定ファイルのパス")
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8888)")
		dir        = flag.String("dir", "", "配信ディレクトリ (デフォルト: webfiles)")
		maxClients = flag.Int("max-clients", 0, "同時接続数の上限 (デフォルト: 10)")
		adminPort  = flag.Int("admin-port", 0, "管理APIのポート (デフォルト: 8889)")
		noAdmin    = flag.Bool("no-admin", false, "管理APIを無効化")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("minihttpd")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dir != "" {
		cfg.Files.Dir = *dir
	}
	if *maxClients != 0 {
		cfg.Server.MaxClients = *maxClients
	}
	if *adminPort != 0 {
		cfg.Admin.Port = *adminPort
	}
	if *noAdmin {
		cfg.Admin.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定の検証に失敗しました: %v", err)
	}

	srv := server.New(cfg)

	// サーバーを起動
	log.Printf("minihttpd を起動します: %s (配信ディレクトリ: %s)", cfg.ServerAddress(), cfg.Files.Dir)
	if err := srv.Start(context.Background()); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
