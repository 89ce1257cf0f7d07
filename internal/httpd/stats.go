package httpd

import (
	"net/http"
	"sync/atomic"
)

// Stats はサーバーの統計情報のスナップショット
type Stats struct {
	Active     int           `json:"active"`
	MaxClients int           `json:"max_clients"`
	Accepted   int64         `json:"accepted"`
	Rejected   int64         `json:"rejected"`
	Responses  map[int]int64 `json:"responses"`
}

// counters は統計用のカウンタ群
type counters struct {
	accepted atomic.Int64
	rejected atomic.Int64

	ok             atomic.Int64
	badRequest     atomic.Int64
	notFound       atomic.Int64
	notImplemented atomic.Int64
	unavailable    atomic.Int64
}

func (c *counters) countResponse(status int) {
	switch status {
	case http.StatusOK:
		c.ok.Add(1)
	case http.StatusBadRequest:
		c.badRequest.Add(1)
	case http.StatusNotFound:
		c.notFound.Add(1)
	case http.StatusNotImplemented:
		c.notImplemented.Add(1)
	case http.StatusServiceUnavailable:
		c.unavailable.Add(1)
	}
}

func (c *counters) responses() map[int]int64 {
	return map[int]int64{
		http.StatusOK:                 c.ok.Load(),
		http.StatusBadRequest:         c.badRequest.Load(),
		http.StatusNotFound:           c.notFound.Load(),
		http.StatusNotImplemented:     c.notImplemented.Load(),
		http.StatusServiceUnavailable: c.unavailable.Load(),
	}
}
