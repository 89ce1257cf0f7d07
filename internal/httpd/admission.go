package httpd

import "sync"

// Admission は同時接続数を数え、上限を超える接続を拒否する
type Admission struct {
	mu     sync.Mutex
	max    int
	active int
}

// NewAdmission は上限 limit の Admission を作成する
func NewAdmission(limit int) *Admission {
	return &Admission{max: limit}
}

// Acquire は枠を1つ確保する。上限に達している場合は false を返し、何も変更しない
func (a *Admission) Acquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active >= a.max {
		return false
	}
	a.active++
	return true
}

// Release は Acquire で確保した枠を返却する
func (a *Admission) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active > 0 {
		a.active--
	}
}

// Active は現在の接続数を返す
func (a *Admission) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Max は同時接続数の上限を返す
func (a *Admission) Max() int {
	return a.max
}

// IOLock はリクエストによるファイル読み込みと送信をプロセス全体で直列化する
type IOLock struct {
	mu sync.Mutex
}

// Do はロックを取得して fn を実行する。fn の結果に関わらず必ず解放する
func (l *IOLock) Do(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}
