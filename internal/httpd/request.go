package httpd

import (
	"bytes"
	"errors"
	"strings"
)

// ErrMalformedRequest はメソッドまたはドキュメントが欠けているリクエスト
var ErrMalformedRequest = errors.New("不正なリクエスト行です")

// Request は解析済みのリクエスト
type Request struct {
	Method    string // GET など
	Target    string // 要求ドキュメント (例: /index.html)
	Protocol  string // HTTP/1.0 など。存在しない場合は空
	Extension string // Target の拡張子 (ドットなし)
}

// ParseRequest は生のリクエストからメソッド・ドキュメント・プロトコルを取り出す
func ParseRequest(raw []byte) (Request, error) {
	// NUL 以降はリクエストとして扱わない
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}

	// 空白・CR・LF で区切る。連続する区切り文字は1つとして扱う
	tokens := strings.FieldsFunc(string(raw), isDelimiter)
	if len(tokens) < 2 {
		return Request{}, ErrMalformedRequest
	}

	req := Request{
		Method: tokens[0],
		Target: tokens[1],
	}
	if len(tokens) > 2 {
		req.Protocol = tokens[2]
	}
	req.Extension = Extension(req.Target)

	return req, nil
}

// Extension は最後のドット以降を返す。ドットが無いか先頭にある場合は空文字
func Extension(target string) string {
	dot := strings.LastIndexByte(target, '.')
	if dot <= 0 {
		return ""
	}
	return target[dot+1:]
}

func isDelimiter(r rune) bool {
	return r == ' ' || r == '\r' || r == '\n'
}

// traverses はドキュメントが ".." のパス要素を含むかを返す
func traverses(target string) bool {
	for _, segment := range strings.FieldsFunc(target, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return true
		}
	}
	return false
}
