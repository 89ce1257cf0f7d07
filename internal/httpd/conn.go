package httpd

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State は接続処理の状態
type State int32

const (
	StateReading     State = iota // リクエスト読み込み中
	StateParsed                   // 解析済み
	StateDispatching              // 振り分け中
	StateServing                  // ファイル送信中 (200)
	StateError400                 // 400 送信
	StateError404                 // 404 送信
	StateError501                 // 501 送信
	StateClosed                   // 切断済み
)

var stateNames = map[State]string{
	StateReading:     "reading",
	StateParsed:      "parsed",
	StateDispatching: "dispatching",
	StateServing:     "serving",
	StateError400:    "error_400",
	StateError404:    "error_404",
	StateError501:    "error_501",
	StateClosed:      "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Conn は受け付けたクライアント接続。処理中のハンドラだけが所有する
type Conn struct {
	net.Conn

	ID         string    // 接続の一意識別子
	AcceptedAt time.Time // 受け付けた時刻

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// newConn は net.Conn に識別子を付けて包む
func newConn(c net.Conn) *Conn {
	return &Conn{
		Conn:       c,
		ID:         uuid.New().String(),
		AcceptedAt: time.Now(),
	}
}

// ShortID はログ用の短い識別子を返す
func (c *Conn) ShortID() string {
	if len(c.ID) < 8 {
		return c.ID
	}
	return c.ID[:8]
}

// Peer は接続元アドレスを返す。取得できない場合は空文字
func (c *Conn) Peer() string {
	if addr := c.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// State は現在の状態を返す
func (c *Conn) State() State {
	return State(c.state.Load())
}

// setState は状態を更新する。閉じた後は何もしない
func (c *Conn) setState(s State) {
	for {
		cur := c.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Close はソケットを閉じる。何度呼ばれても閉じるのは1回だけ
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}
