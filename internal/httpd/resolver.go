package httpd

import (
	"io"
	"os"
	"strings"
)

// Resolver は要求ドキュメントとファイルシステムの対応付けを担う
type Resolver interface {
	// Resolve はドキュメントに対応するパスを返す
	Resolve(document string) string

	// Exists はパスに配信可能なファイルがあるかを返す
	Exists(path string) bool

	// Open はファイルを読み込み用に開く
	Open(path string) (io.ReadCloser, error)
}

// DirResolver は固定ディレクトリ配下のファイルを配信する Resolver
type DirResolver struct {
	Base string
}

// NewDirResolver は新しいDirResolverを作成する
func NewDirResolver(base string) *DirResolver {
	return &DirResolver{Base: base}
}

// Resolve はベースディレクトリとドキュメントを連結する (正規化はしない)
func (d *DirResolver) Resolve(document string) string {
	return strings.TrimSuffix(d.Base, "/") + "/" + strings.TrimPrefix(document, "/")
}

// Exists は通常ファイルが存在する場合のみ true を返す
func (d *DirResolver) Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Open はファイルを開く
func (d *DirResolver) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
