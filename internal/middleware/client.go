package middleware

import (
	"net"
	"net/http"

	"github.com/hitoshi/mp3transcriber/internal/model"
)

// ClientIP はリクエスト元のIPアドレスを返す。
// プロキシ配下ではchiのRealIPミドルウェアがRemoteAddrを書き換えた後に呼び出す。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientInfo は監査ログ用のリクエスト元情報を返す。
func ClientInfo(r *http.Request) model.ClientInfo {
	return model.ClientInfo{
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
