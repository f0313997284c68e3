package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/hitoshi/mp3transcriber/internal/audit"
	"github.com/hitoshi/mp3transcriber/internal/auth"
	"github.com/hitoshi/mp3transcriber/internal/config"
	"github.com/hitoshi/mp3transcriber/internal/database"
	"github.com/hitoshi/mp3transcriber/internal/handler"
	"github.com/hitoshi/mp3transcriber/internal/logger"
	"github.com/hitoshi/mp3transcriber/internal/metrics"
	"github.com/hitoshi/mp3transcriber/internal/middleware"
	"github.com/hitoshi/mp3transcriber/internal/publicaccess"
	"github.com/hitoshi/mp3transcriber/internal/repository"
	"github.com/hitoshi/mp3transcriber/internal/token"
	"github.com/hitoshi/mp3transcriber/internal/transcription"
	"github.com/hitoshi/mp3transcriber/internal/user"
)

// tokenIssuerName はトークンのissクレームに設定する値。
const tokenIssuerName = "mp3transcriber"

// dbConnectTimeout は起動時のDB疎通確認のタイムアウト。
const dbConnectTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。結果の出力はoutに書き込む。
func Run(w, out io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	var rest []string
	if len(args) > 0 {
		rest = args[1:]
	}

	// フラグの誤りは設定の読み込み前に報告する
	var (
		newAccount user.NewAccount
		importOpts importOptions
		err        error
	)
	switch cmd {
	case CommandCreateAccount:
		newAccount, err = parseCreateAccountArgs(rest, out)
	case CommandImportTranscription:
		importOpts, err = parseImportTranscriptionArgs(rest, out)
	}
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCreateAccount:
		return runCreateAccount(cfg, newAccount, out)
	case CommandImportTranscription:
		return runImportTranscription(cfg, importOpts, out)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	transcriptionRepo := repository.NewPostgresTranscriptionRepo(db)
	auditRepo := repository.NewPostgresAuditLogRepo(db)

	// 3. メトリクスと監査ログ
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)
	recorder := audit.NewRecorder(auditRepo, collector, slog.Default())

	// 4. ドメインサービスの初期化
	issuer, err := token.NewIssuer([]byte(cfg.JWTSecret), tokenIssuerName)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	publicService := publicaccess.NewService(accountRepo, transcriptionRepo, issuer, recorder, collector)
	authService := auth.NewService(accountRepo, issuer, recorder, collector, auth.ServiceConfig{
		TokenTTL: cfg.SessionTokenTTL,
	})

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg), collector)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		TokenParser:       issuer,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		TrustProxy:        cfg.TrustProxy,
		Logger:            slog.Default(),

		HealthChecker: db,
		Metrics:       collector,
		Gatherer:      registry,

		PublicAccessService: publicService,
		AuthService:         authService,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// rateLimiterConfig はデフォルトのレート制限設定に環境変数の値を反映する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	for i := range rl.Policies {
		p := &rl.Policies[i]
		switch p.Name {
		case middleware.PolicyVerify:
			p.Requests, p.Window = cfg.RateLimitVerify, cfg.RateLimitVerifyWindow
		case middleware.PolicyLogin:
			p.Requests, p.Window = cfg.RateLimitLogin, cfg.RateLimitLoginWindow
		case middleware.PolicyAPI:
			p.Requests, p.Window = cfg.RateLimitAPI, cfg.RateLimitAPIWindow
		}
	}
	return rl
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runCreateAccount はアカウントを作成し、割り当てたIDをoutに出力する。
func runCreateAccount(cfg *config.Config, in user.NewAccount, out io.Writer) error {
	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := user.NewService(repository.NewPostgresAccountRepo(db), cfg.IDMaxAttempts)
	account, err := svc.Create(context.Background(), in)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	fmt.Fprintf(out, "account %s created for %s\nshare link: %s\n", account.ID, account.Username, shareLink(cfg.BaseURL, account.ID))
	return nil
}

// runImportTranscription は文字起こし結果のファイルを読み込んで登録し、割り当てたIDをoutに出力する。
func runImportTranscription(cfg *config.Config, opts importOptions, out io.Writer) error {
	text, err := os.ReadFile(opts.TextPath)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	var summary []byte
	if opts.SummaryPath != "" {
		if summary, err = os.ReadFile(opts.SummaryPath); err != nil {
			return fmt.Errorf("read summary: %w", err)
		}
	}

	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := transcription.NewService(
		repository.NewPostgresAccountRepo(db),
		repository.NewPostgresTranscriptionRepo(db),
		cfg.IDMaxAttempts,
	)
	t, err := svc.Import(context.Background(), transcription.NewTranscription{
		OwnerID:  opts.OwnerID,
		Filename: opts.Filename,
		Text:     string(text),
		Summary:  string(summary),
	})
	if err != nil {
		return fmt.Errorf("import transcription: %w", err)
	}

	fmt.Fprintf(out, "transcription %s imported for account %s\nshare link: %s\n", t.ID, t.OwnerID, shareLink(cfg.BaseURL, t.ID))
	return nil
}

// shareLink はフロントエンドの公開アクセスページのURLを返す。
// 受け取った人はこのページで所有者の名を入力する。
func shareLink(baseURL, id string) string {
	link, err := url.JoinPath(baseURL, "access", id)
	if err != nil {
		return "/access/" + id
	}
	return link
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードを伏せ字にする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
