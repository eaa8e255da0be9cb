package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	commonauth "schoolboard/server/common/auth"
	"schoolboard/server/common/infra/cache"
	"schoolboard/server/common/infra/db"
	"schoolboard/server/common/infra/mq"
	"schoolboard/server/common/infra/object"
	commonlog "schoolboard/server/common/log"
	"schoolboard/server/docstore"
	"schoolboard/server/school/api"
	"schoolboard/server/school/service"
)

type Server struct {
	HTTPServer *http.Server
	Store      docstore.Store
	Redis      *redis.Client
	Postgres   *pgxpool.Pool
	MQConn     *amqp.Connection
	Publisher  service.EventPublisher
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := &Server{Publisher: service.NopPublisher{}}
	if err := s.connect(ctx, cfg); err != nil {
		s.closeBackends()
		return nil, err
	}

	sessions := service.NewSessionService(s.Store)
	directory := service.NewDirectoryService(s.Store, sessions, cfg.DirectoryCacheTTL)
	auth := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)

	var guard service.MessageGuard
	if cfg.MessageGuard {
		guard = service.NewRedisMessageGuard(s.Redis)
	}

	svc := api.Services{
		Accounts:      service.NewAccountService(s.Store, sessions, directory, auth),
		Conversations: service.NewConversationService(s.Store, sessions, s.Publisher, guard, cfg.FanoutConcurrency),
		Announcements: service.NewAnnouncementService(s.Store, sessions, s.Publisher),
		Directory:     directory,
		Rename:        service.NewRenameService(s.Store, sessions, directory, s.Publisher, cfg.FanoutConcurrency),
	}
	if cfg.AttachmentsEnabled {
		client, err := object.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioRegion, cfg.MinioUseSSL)
		if err != nil {
			s.closeBackends()
			return nil, fmt.Errorf("initialize minio: %w", err)
		}
		if err := object.EnsureBucket(ctx, client, cfg.MinioBucket); err != nil {
			s.closeBackends()
			return nil, fmt.Errorf("ensure bucket %s: %w", cfg.MinioBucket, err)
		}
		svc.Attachments = service.NewAttachmentService(client, cfg.MinioBucket, cfg.PublicBaseURL, sessions)
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := api.NewHandler(svc, auth, cfg.AllowedOrigins...)
	r := gin.Default()
	h.RegisterRoutes(r)

	s.HTTPServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	commonlog.Infof("event=server_init status=ok backend=%s mq=%t attachments=%t guard=%t", cfg.DocstoreBackend, cfg.UseMQ, cfg.AttachmentsEnabled, guard != nil)
	return s, nil
}

// connect opens the backends cfg asks for and picks the document store.
func (s *Server) connect(ctx context.Context, cfg Config) error {
	if cfg.NeedsRedis() {
		s.Redis = cache.NewClient(cfg.RedisAddr)
		if err := cache.Ping(ctx, s.Redis); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}

	switch cfg.DocstoreBackend {
	case BackendRedis:
		s.Store = docstore.NewRedisStore(s.Redis)
	case BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("initialize postgres: %w", err)
		}
		s.Postgres = pool
		store := docstore.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure docstore schema: %w", err)
		}
		s.Store = store
	default:
		s.Store = docstore.NewMemoryStore()
	}

	if cfg.UseMQ {
		conn, err := mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			return fmt.Errorf("initialize lavinmq: %w", err)
		}
		s.MQConn = conn
		publisher, err := service.NewAMQPPublisher(conn)
		if err != nil {
			return fmt.Errorf("initialize amqp publisher: %w", err)
		}
		s.Publisher = publisher
	}
	return nil
}

func (s *Server) closeBackends() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		_ = s.Store.Close()
	}
	if s.MQConn != nil {
		_ = s.MQConn.Close()
	}
	if s.Postgres != nil {
		s.Postgres.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	s.closeBackends()
	return err
}
