package server

import (
	"net/http"
	"time"

	"minihttpd/internal/config"
	"minihttpd/internal/httpd"

	"github.com/gin-gonic/gin"
)

// HealthResponse はヘルスチェックの応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo はHTTP/1.0 サーバーの設定情報
type ServerInfo struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Address     string `json:"address,omitempty"` // 実際にリッスンしているアドレス
	MaxClients  int    `json:"max_clients"`
	WebfilesDir string `json:"webfiles_dir"`
}

// StatusResponse はシステム状態の応答
type StatusResponse struct {
	Status    string      `json:"status"`
	Server    ServerInfo  `json:"server"`
	Stats     httpd.Stats `json:"stats"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConnectionsResponse は処理中の接続一覧の応答
type ConnectionsResponse struct {
	Count       int              `json:"count"`
	Connections []httpd.ConnInfo `json:"connections"`
}

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AdminHandler は管理APIのハンドラ
type AdminHandler struct {
	config *config.Config
	core   *httpd.Server
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *AdminHandler) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *AdminHandler) GetStatus(c *gin.Context) {
	info := ServerInfo{
		Host:        h.config.Server.Host,
		Port:        h.config.Server.Port,
		MaxClients:  h.config.Server.MaxClients,
		WebfilesDir: h.config.Files.Dir,
	}
	if addr := h.core.Addr(); addr != nil {
		info.Address = addr.String()
	}

	response := StatusResponse{
		Status:    "running",
		Server:    info,
		Stats:     h.core.Stats(),
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetConnections は処理中の接続一覧エンドポイントの実装
func (h *AdminHandler) GetConnections(c *gin.Context) {
	conns := h.core.Connections()

	response := ConnectionsResponse{
		Count:       len(conns),
		Connections: conns,
	}

	c.JSON(http.StatusOK, response)
}

// NotFound は未定義のルートへの応答
func (h *AdminHandler) NotFound(c *gin.Context) {
	errorResponse := ErrorResponse{
		Error:     "not_found",
		Message:   "指定されたエンドポイントは存在しません",
		Timestamp: time.Now(),
	}
	c.JSON(http.StatusNotFound, errorResponse)
}
