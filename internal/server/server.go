package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
	"github.com/sakura-gakuin/admissions-services/api/internal/config"
	"github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/memory"
	mongodoc "github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/mongo"
	"github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/persistence"
	"github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/postgres"
	adminhttp "github.com/sakura-gakuin/admissions-services/api/internal/interfaces/http/admin"
	commonhttp "github.com/sakura-gakuin/admissions-services/api/internal/interfaces/http/common"
	publichttp "github.com/sakura-gakuin/admissions-services/api/internal/interfaces/http/public"
	"github.com/sakura-gakuin/admissions-services/api/internal/upload"
)

// Server は HTTP サーバーのライフサイクルを管理し、Public/Admin の各ハンドラへ依存注入するコンポジションルート。
// DDD の Interface 層に相当し、アプリケーションサービスをルータへ接続する責務を担う。
type Server struct {
	logger         *log.Logger
	addr           string
	allowedOrigins []string
	jwtConfigs     []config.JWTConfig
	jwtAudience    string
	staffRoles     []string
	uploadDir      string
	location       *time.Location

	mongoClient *mongo.Client
	durable     persistence.DurableRepository
	adapter     *persistence.Adapter
	registry    *prometheus.Registry
	cancelRetry context.CancelFunc

	commands application.ApplicationCommandService
	queries  application.ApplicationQueryService
	reviews  application.ReviewService
	uploads  *upload.Store
}

type authenticatedUser = commonhttp.AuthenticatedUser

// New は Config を受け取り、耐久ストア・フォールバック・アプリケーションサービスを組み立てた Server を返す。
// 依存解決の起点となるファクトリとして機能する。
func New(cfg config.Config) (*Server, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.FixedZone("JST", 9*60*60)
		cfg.ServerLog.Printf("タイムゾーン %s の読み込みに失敗: %v, JST を使用します", cfg.Timezone, err)
	}

	srv := &Server{
		logger:         cfg.ServerLog,
		addr:           cfg.Addr,
		allowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		jwtConfigs:     append([]config.JWTConfig(nil), cfg.JWTConfigs...),
		jwtAudience:    cfg.JWTAudience,
		staffRoles:     append([]string(nil), cfg.StaffRoles...),
		uploadDir:      cfg.UploadDir,
		location:       loc,
	}

	switch cfg.DBDriver {
	case "postgres":
		repo, err := postgres.NewApplicationRepository(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		srv.durable = repo
	default:
		clientOptions := options.Client().ApplyURI(cfg.MongoURI).SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
		client, err := mongo.Connect(ctx, clientOptions)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("MongoDB クライアントの初期化に失敗: %w", err)
		}
		srv.mongoClient = client
		srv.durable = mongodoc.NewApplicationRepository(client, cfg.MongoDatabase, cfg.ApplicationCollection)
	}

	srv.registry = prometheus.NewRegistry()
	srv.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := persistence.NewMetrics(srv.registry)

	fallback := memory.NewApplicationRepository(cfg.ServerLog)
	srv.adapter = persistence.NewAdapter(persistence.Config{
		Durable:        srv.durable,
		Fallback:       fallback,
		Logger:         cfg.ServerLog,
		Metrics:        metrics,
		MaxAttempts:    cfg.MaxConnectAttempts,
		RetryInterval:  cfg.RetryInterval,
		ConnectTimeout: cfg.ConnectTimeout,
	})

	uploads, err := upload.NewStore(upload.Config{
		Dir:             cfg.UploadDir,
		BaseURL:         cfg.UploadBaseURL,
		MaxFileSize:     cfg.MaxFileSize,
		MaxCertificates: cfg.MaxCertificates,
		Logger:          cfg.ServerLog,
	})
	if err != nil {
		return nil, err
	}
	srv.uploads = uploads

	srv.commands = application.NewApplicationCommandService(srv.adapter, nil, nil)
	srv.queries = application.NewApplicationQueryService(srv.adapter)
	srv.reviews = application.NewReviewService(srv.adapter, nil, nil)

	return srv, nil
}

// Run はHTTPサーバーを起動し、Public/Staffのルーティングやミドルウェアを組み立てる。
// インフラ初期化に限定し、ドメインロジックをここに書かないことで層の責務を守る。
func (s *Server) Run() error {
	retryCtx, cancelRetry := context.WithCancel(context.Background())
	s.cancelRetry = cancelRetry
	s.adapter.Start(retryCtx)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(withCORS(s.allowedOrigins))

	publicHandler := publichttp.NewHandler(publichttp.Config{
		Logger:   s.logger,
		Commands: s.commands,
		Queries:  s.queries,
		Uploads:  s.uploads,
		Adapter:  s.adapter,
		Location: s.location,
	})
	adminHandler := adminhttp.NewHandler(adminhttp.Config{
		Logger:  s.logger,
		Reviews: s.reviews,
	})

	router.Route("/api", func(api chi.Router) {
		publicHandler.Register(api)
		api.Group(func(staff chi.Router) {
			staff.Use(s.authMiddleware)
			staff.Use(commonhttp.RequireRoles(s.logger, s.staffRoles))
			adminHandler.Register(staff)
		})
	})

	router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Printf("HTTP サーバー起動: http://%s", s.addr)
		errChan <- httpServer.ListenAndServe()
	}()

	waitForShutdown(httpServer, errChan, s)
	return nil
}

// withCORS は許可されたオリジン情報をもとに CORS ヘッダーを付与するミドルウェアを返す。
func withCORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{})
	allowAll := false
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" || (!allowAll && len(allowed) > 0 && !originAllowed(origin, allowed)) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
			w.Header().Set("Access-Control-Max-Age", "300")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed は指定された Origin が許可リストに含まれるか判定する。
func originAllowed(origin string, allowed map[string]struct{}) bool {
	if len(allowed) == 0 {
		return true
	}
	_, ok := allowed[origin]
	return ok
}

// authMiddleware は Authorization ヘッダーから JWT を検証し、認証済みユーザーをコンテキストへ詰める。
// 職員向けルートの前段に積み、後段の RequireRoles がロール検査を行う。
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if authHeader == "" {
			commonhttp.WriteJSON(s.logger, w, http.StatusUnauthorized, map[string]string{"error": "Authorization ヘッダーがありません"})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			commonhttp.WriteJSON(s.logger, w, http.StatusUnauthorized, map[string]string{"error": "Bearer トークンを指定してください"})
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
		if tokenString == "" {
			commonhttp.WriteJSON(s.logger, w, http.StatusUnauthorized, map[string]string{"error": "アクセストークンが空です"})
			return
		}

		claims, err := s.parseAuthToken(tokenString)
		if err != nil {
			commonhttp.WriteJSON(s.logger, w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}

		user := authenticatedUser{
			ID:        claims.Subject,
			Name:      claims.Name,
			Role:      claims.Role,
			StaffType: claims.StaffType,
		}

		ctx := commonhttp.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseAuthToken は複数の JWT 設定を順番に試し、署名検証と Issuer/Audience の整合性を確認する。
// いずれの設定にも一致しない場合は認証エラーを返す。
func (s *Server) parseAuthToken(tokenString string) (*authClaims, error) {
	if len(s.jwtConfigs) == 0 {
		return nil, fmt.Errorf("認証設定が構成されていません")
	}

	for _, cfg := range s.jwtConfigs {
		claims := &authClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
			}
			return cfg.Secret, nil
		}, jwt.WithLeeway(30*time.Second))

		if err != nil || !token.Valid {
			continue
		}

		if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
			continue
		}

		now := time.Now()
		if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time) {
			continue
		}
		if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
			continue
		}
		if claims.Subject == "" {
			continue
		}
		if s.jwtAudience != "" && !contains(claims.Audience, s.jwtAudience) {
			continue
		}

		return claims, nil
	}

	return nil, fmt.Errorf("アクセストークンが無効です")
}

// contains は Audience 等の検証で利用する単純な包含チェック。
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

type authClaims struct {
	jwt.RegisteredClaims
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	StaffType string `json:"staffType,omitempty"`
}

// shutdown は耐久ストアへの接続をタイムアウト付きで切断し、プロセス終了時のリソースリークを防ぐ。
func (s *Server) shutdown(ctx context.Context) {
	if s.cancelRetry != nil {
		s.cancelRetry()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s.mongoClient != nil {
		if err := s.mongoClient.Disconnect(shutdownCtx); err != nil {
			s.logger.Printf("MongoDB 切断時にエラー: %v", err)
		}
		return
	}

	if closer, ok := s.durable.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(shutdownCtx); err != nil {
			s.logger.Printf("耐久ストア切断時にエラー: %v", err)
		}
	}
}

// waitForShutdown は ListenAndServe の終了と OS シグナルを監視し、graceful shutdown を実現する。
// アプリケーションの外側で扱うべき OS 依存の関心事をここへ閉じ込める。
func waitForShutdown(httpServer *http.Server, errChan <-chan error, srv *Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.logger.Fatalf("サーバーが異常終了: %v", err)
		}
	case sig := <-sigChan:
		srv.logger.Printf("シグナル %s を受信。サーバー停止処理を開始します。", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			srv.logger.Printf("サーバー停止時にエラー: %v", err)
		}
	}

	srv.shutdown(context.Background())
}
