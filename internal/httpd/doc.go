// Package httpd は HTML と JPEG だけを配信する最小限の HTTP/1.0 サーバーです。
//
// # 責務
//   - TCP接続の受け付けと同時接続数の制限 (上限超過は 503 を返して切断)
//   - リクエスト行の解析 (メソッド・ドキュメント・プロトコル・拡張子)
//   - メソッドと拡張子による振り分け (200 / 400 / 404 / 501)
//   - ファイル読み込みの全体排他 (IOLock)
//
// # 仕様
//   - 1接続1リクエスト。レスポンス送信後は必ず切断する
//   - リクエストは1回の Read で読み込み、バッファを超えた分は切り捨てる
//   - HTML はファイル全体を読み込んで1回で書き込む
//   - JPEG は固定サイズのチャンクでストリーミングする
//   - ".." を含むドキュメントは 400 として拒否する
//   - ファイルを扱う処理だけが IOLock を取得する。エラー応答はロックを取らない
//   - タイムアウトは設定しない限り無効 (遅いクライアントは接続と IOLock を保持し続ける)
package httpd
