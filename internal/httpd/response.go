package httpd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrUnknownStatus はエラーページが定義されていないステータス
var ErrUnknownStatus = errors.New("エラーページが定義されていないステータスです")

const (
	contentTypeHTML = "text/html; charset=UTF-8"
	contentTypeJPEG = "image/jpeg"
)

// BodyKind はレスポンス本文の送り方
type BodyKind int

const (
	BodyBuffered BodyKind = iota // 全体を読み込んで1回で書き込む
	BodyStreamed                 // チャンク単位で書き込む
)

// mediaType は配信可能な拡張子の情報
type mediaType struct {
	contentType string
	kind        BodyKind
}

// mediaTypes は配信可能な拡張子の一覧。大文字小文字は区別する
var mediaTypes = map[string]mediaType{
	"html": {contentType: contentTypeHTML, kind: BodyBuffered},
	"jpeg": {contentType: contentTypeJPEG, kind: BodyStreamed},
}

// errorPages はエラー応答の固定本文
var errorPages = map[int]string{
	http.StatusBadRequest: "<!DOCTYPE html>\r\n<html><title>400-Bad Request</title>" +
		"<h1>Error 400: Bad Request</h1><p>Only jpeg and html can be requested</p></html>",
	http.StatusNotFound: "<!DOCTYPE html>\r\n<html><title>404-Not Found</title>" +
		"<h1>Error 404: Not Found</h1><p>The file doesn't exist in the folder</p></html>",
	http.StatusNotImplemented: "<!DOCTYPE html>\r\n<html><title>501-Not Implemented</title>" +
		"<h1>Error 501: Not Implemented</h1><p>Only GET request is allowed.</p></html>",
	http.StatusServiceUnavailable: "<!DOCTYPE html>\r\n<html><title>503-Busy</title>" +
		"<h1>Error 503</h1><p>Server is busy</p></html>",
}

// Response はステータス行・ヘッダー・本文の組
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// StatusLine は "HTTP/1.0 200 OK" 形式のステータス行を返す
func StatusLine(status int) string {
	return fmt.Sprintf("HTTP/1.0 %d %s", status, http.StatusText(status))
}

// Header はステータス行と Content-Type、空行までを返す
func (r Response) Header() []byte {
	return header(r.Status, r.ContentType)
}

// Bytes はヘッダーと本文を連結したものを返す
func (r Response) Bytes() []byte {
	h := r.Header()
	buf := make([]byte, 0, len(h)+len(r.Body))
	buf = append(buf, h...)
	return append(buf, r.Body...)
}

// ErrorResponse はエラー応答を返す。エラーページが無いステータスでは false を返す
func ErrorResponse(status int) (Response, bool) {
	page, ok := errorPages[status]
	if !ok {
		return Response{}, false
	}
	return Response{
		Status:      status,
		ContentType: contentTypeHTML,
		Body:        []byte(page),
	}, true
}

// WriteError は固定のエラー応答を書き込む
func WriteError(w io.Writer, status int) error {
	resp, ok := ErrorResponse(status)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, status)
	}
	_, err := w.Write(resp.Bytes())
	return err
}

// WriteHTML はファイル全体を読み込み、ヘッダーと連結して1回で書き込む
func WriteHTML(w io.Writer, r io.Reader) (int64, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("HTMLの読み込みに失敗: %w", err)
	}

	resp := Response{Status: http.StatusOK, ContentType: contentTypeHTML, Body: body}
	if _, err := w.Write(resp.Bytes()); err != nil {
		return 0, fmt.Errorf("HTMLの送信に失敗: %w", err)
	}
	return int64(len(body)), nil
}

// StreamJPEG はヘッダーを書き込んだあと、chunkSize ごとに本文を書き込む
func StreamJPEG(w io.Writer, r io.Reader, chunkSize int) (int64, error) {
	if _, err := w.Write(header(http.StatusOK, contentTypeJPEG)); err != nil {
		return 0, fmt.Errorf("ヘッダーの送信に失敗: %w", err)
	}

	// io.Copy は sendfile 等に委譲されるため、チャンク単位のループで書き込む
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, fmt.Errorf("JPEGの送信に失敗: %w", werr)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("JPEGの読み込みに失敗: %w", rerr)
		}
	}
}

func header(status int, contentType string) []byte {
	return []byte(StatusLine(status) + "\r\nContent-Type: " + contentType + "\r\n\r\n")
}
