package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/mp3transcriber/internal/metrics"
	"github.com/hitoshi/mp3transcriber/internal/model"
)

// レート制限ポリシー名
const (
	PolicyVerify = "verify"
	PolicyLogin  = "login"
	PolicyAPI    = "api"
)

// Policy はIPアドレスごとに適用するレート制限の1種類を表す。
// Window内にRequests回まで許可し、トークンはWindow/Requestsごとに補充される。
type Policy struct {
	Name     string
	Requests int
	Window   time.Duration
	Message  string // 429応答のメッセージ
}

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	Policies        []Policy
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// パスワード検証 10回/5分、ログイン 50回/15分、API全般 100回/15分（いずれもIPごと）
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Policies: []Policy{
			{
				Name:     PolicyVerify,
				Requests: 10,
				Window:   5 * time.Minute,
				Message:  "Zu viele Zugriffe auf diesen Link. Bitte versuchen Sie es in 5 Minuten erneut.",
			},
			{
				Name:     PolicyLogin,
				Requests: 50,
				Window:   15 * time.Minute,
				Message:  "Zu viele Login-Versuche. Bitte versuchen Sie es in 15 Minuten erneut.",
			},
			{
				Name:     PolicyAPI,
				Requests: 100,
				Window:   15 * time.Minute,
				Message:  "Zu viele Anfragen. Bitte versuchen Sie es später erneut.",
			},
		},
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はIPアドレスごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// policyLimiters は1つのポリシーに属するリミッター群。
type policyLimiters struct {
	policy Policy
	limit  rate.Limit

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

// RateLimiter はIPアドレスごとのレート制限をポリシー単位で管理する。
// ポリシー同士は独立に動作する。
type RateLimiter struct {
	config   RateLimiterConfig
	policies map[string]*policyLimiters
	metrics  metrics.MetricsCollector

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。mcがnilの場合はメトリクスを記録しない。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, mc metrics.MetricsCollector) *RateLimiter {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		config:   config,
		policies: make(map[string]*policyLimiters, len(config.Policies)),
		metrics:  mc,
		stopCh:   make(chan struct{}),
	}
	for _, p := range config.Policies {
		if p.Requests <= 0 || p.Window <= 0 {
			slog.Warn("ignoring invalid rate limit policy",
				slog.String("policy", p.Name),
				slog.Int("requests", p.Requests),
				slog.Duration("window", p.Window),
			)
			continue
		}
		rl.policies[p.Name] = &policyLimiters{
			policy:   p,
			limit:    rate.Every(p.Window / time.Duration(p.Requests)),
			limiters: make(map[string]*clientLimiter),
		}
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware は指定ポリシーのレート制限ミドルウェアを返す。
// 未定義のポリシー名はプログラムの誤りとしてpanicする。
func (rl *RateLimiter) Middleware(policy string) func(next http.Handler) http.Handler {
	pl, ok := rl.policies[policy]
	if !ok {
		panic(fmt.Sprintf("middleware: unknown rate limit policy %q", policy))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			if !pl.getOrCreate(ip).Allow() {
				rl.metrics.RecordRateLimited(pl.policy.Name)
				writeRateLimitResponse(w, pl.policy)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("policy", pl.policy.Name),
					slog.String("path", r.URL.Path),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は指定ポリシーで現在管理されているエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LimiterCount(policy string) int {
	pl, ok := rl.policies[policy]
	if !ok {
		return 0
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.limiters)
}

// getOrCreate はIPアドレスのリミッターを取得または作成する。
func (pl *policyLimiters) getOrCreate(ip string) *rate.Limiter {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if cl, exists := pl.limiters[ip]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(pl.limit, pl.policy.Requests)
	pl.limiters[ip] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからCleanupIntervalの2倍とポリシーのWindowの
// いずれか長い方を超えたエントリを削除する。
// 削除されたIPはバーストが満タンの状態から再開するため、Window未満では削除しない。
func (rl *RateLimiter) cleanup(now time.Time) {
	for _, pl := range rl.policies {
		ttl := max(rl.config.CleanupInterval*2, pl.policy.Window)

		pl.mu.Lock()
		for ip, cl := range pl.limiters {
			if now.Sub(cl.lastAccess) > ttl {
				delete(pl.limiters, ip)
			}
		}
		pl.mu.Unlock()
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが1つ補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, p Policy) {
	interval := p.Window / time.Duration(p.Requests)
	retryAfterSec := int(math.Ceil(interval.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError(p.Message))
}
