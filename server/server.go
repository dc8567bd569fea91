package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"

	"github.com/techmailbox/shipmail/api"
	"github.com/techmailbox/shipmail/config"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/cron"
	"github.com/techmailbox/shipmail/internal/logger"
	"github.com/techmailbox/shipmail/internal/repository"
	"github.com/techmailbox/shipmail/internal/tracing"
	"github.com/techmailbox/shipmail/services/imap"
	"github.com/techmailbox/shipmail/services/notify"
	"github.com/techmailbox/shipmail/services/orchestrator"
	"github.com/techmailbox/shipmail/services/pdftext"
	"github.com/techmailbox/shipmail/services/pipeline"
	"github.com/techmailbox/shipmail/services/smtp"
	"github.com/techmailbox/shipmail/services/storage"
)

type Server struct {
	config       *config.Config
	httpServer   *http.Server
	router       *gin.Engine
	repositories *repository.Repositories
	notifier     *notify.Service
	store        interfaces.AttachmentStore
	session      interfaces.IMAPSession
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, shipmailDB *gorm.DB) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize repositories
	repos := repository.InitRepositories(shipmailDB)

	// Attachment storage
	store, err := storage.NewLocalStore(cfg.Attachments.BaseDir, appLogger)
	if err != nil {
		return nil, err
	}

	// Presentation-layer notifications
	notifier := notify.NewService(appLogger)

	// Outbound mail
	sender := smtp.NewSender(cfg.Smtp, appLogger)

	// Domain orchestration: record upserts and EAD dispatch
	handler := orchestrator.New(
		repos.ShipmentRepository,
		repos.ProcessConfigRepository,
		sender,
		store,
		notifier,
		appLogger,
	)

	// Message processing pipeline
	processor := pipeline.NewProcessor(
		pipeline.Config{MaxAttachmentSize: int64(cfg.Attachments.MaxSizeMB) * 1024 * 1024},
		store,
		pdftext.NewExtractor(),
		handler,
		notifier,
		appLogger,
	)

	// Mailbox session
	session := imap.NewSession(cfg.Imap, processor, notifier, appLogger)

	// Scheduled maintenance
	cronManager := cron.NewCronManager(cfg, appLogger, session, store)

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	return &Server{
		config:       cfg,
		router:       router,
		repositories: repos,
		notifier:     notifier,
		store:        store,
		session:      session,
		cronManager:  cronManager,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		log.Printf("❌ Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	// Root context for the application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api.RegisterRoutes(s.router, s.session, s.repositories, s.notifier, s.config.AppConfig.APIKey)

	// Start the mailbox session with panic recovery. Run blocks until Stop,
	// reconnecting on its own.
	log.Println("Starting IMAP session...")
	go s.wrapGoroutine("imap_session", func() {
		if err := s.session.Run(ctx); err != nil {
			log.Printf("❌ IMAP session error: %v", err)
		}
	})

	// Start HTTP server in a goroutine with panic recovery
	go s.wrapGoroutine("http_server", func() {
		log.Println("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ HTTP server error: %v", err)
		}
	})

	s.cronManager.Start()
	log.Println("Shipmail is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	s.cronManager.Stop()

	log.Println("Shutting down HTTP server...")
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ HTTP server shutdown error: %v", err)
	} else {
		log.Println("✅ HTTP server shut down successfully")
	}

	// Stop the mailbox session with timeout and panic recovery
	log.Println("Stopping IMAP session...")
	stopDone := make(chan struct{})
	go s.wrapGoroutine("imap_session_shutdown", func() {
		defer close(stopDone)
		if err := s.session.Stop(); err != nil {
			log.Printf("❌ IMAP session shutdown error: %v", err)
		} else {
			log.Println("✅ IMAP session stopped successfully")
		}
	})

	select {
	case <-stopDone:
		log.Println("IMAP session stopped gracefully")
	case <-time.After(10 * time.Second):
		log.Println("⚠️ IMAP session stop timed out, forcing exit")
	}

	return nil
}
