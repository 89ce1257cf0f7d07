// Package server は、HTTP/1.0 ファイルサーバーと管理用APIを起動・停止します。
//
// このパッケージは、設定に従って httpd.Server を組み立て、
// 管理用のHTTP API (gin) と合わせてプロセスのライフサイクルを管理します。
//
// 責務:
//   - HTTP/1.0 ポートのバインド (失敗はプロセスにとって致命的)
//   - 管理APIの提供 (/health, /api/status, /api/connections)
//   - シグナル受信時のグレースフルシャットダウン
//
// 仕様:
//   - 管理APIは gin を使用し、HTTP/1.0 ポートとは別のアドレスで待ち受ける
//   - 管理APIは HTTP/1.0 ポートの挙動に影響しない
//   - シャットダウンは設定されたタイムアウトまで処理中の接続を待つ
package server
