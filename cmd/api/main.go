package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/mathta/backend/internal/config"
	"github.com/zhouzirui/mathta/backend/internal/handler"
	"github.com/zhouzirui/mathta/backend/internal/handler/site"
	"github.com/zhouzirui/mathta/backend/internal/model/tutor"
	"github.com/zhouzirui/mathta/backend/internal/service/pipeline"
	"github.com/zhouzirui/mathta/backend/internal/service/relay"
	"github.com/zhouzirui/mathta/backend/internal/service/session"
	"github.com/zhouzirui/mathta/backend/internal/service/workspace"
	"github.com/zhouzirui/mathta/backend/internal/webrtcpeer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	tutorStore := tutor.NewMemoryStore(tutor.Seed())
	defaultTutor, _ := tutor.Resolve(tutorStore, tutor.DefaultID)

	relayService := relay.NewService(relay.ConfigFromRealtime(cfg.Realtime), nil)
	if !relayService.Configured() {
		log.Println("OPENAI_API_KEY 未配置，信令中继将对每次协商返回 500")
	}

	api, err := webrtcpeer.NewAPI(cfg.WebRTC)
	if err != nil {
		log.Fatalf("failed to initialize WebRTC: %v", err)
	}

	// 工作区会话与点评流水线互相引用：点评结果经由工作区推送给对应连接。
	var workspaceService *workspace.Service
	sinks := pipeline.Fanout{pipeline.LogSink{}}
	var reviewSink *pipeline.ReviewSink
	if cfg.AI.Enabled() && cfg.AI.ReviewEnabled {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize review model: %v", err)
		} else {
			reviewSink, err = pipeline.NewReviewSink(ctx, chatModel, defaultTutor, cfg.AI.ReviewTimeout, func(r pipeline.Review) {
				workspaceService.Deliver(r)
			})
			if err != nil {
				log.Printf("warning: failed to initialize review pipeline: %v", err)
				reviewSink = nil
			} else {
				sinks = append(sinks, reviewSink)
				log.Println("Turn review pipeline initialized successfully")
			}
		}
	} else {
		log.Println("Ark 凭证未配置或点评已关闭，跳过点评流水线初始化")
	}

	var onClose func(string)
	if reviewSink != nil {
		onClose = reviewSink.Forget
	}

	sessionOpts := session.OptionsFromConfig(cfg.Realtime)
	// 服务端没有真实麦克风，工作区会话默认文字输入
	sessionOpts.InputMode = session.InputText

	workspaceService = workspace.NewService(sessionOpts, workspace.Deps{
		Media: webrtcpeer.Media{},
		NewPeer: webrtcpeer.NewFactory(api, webrtcpeer.Options{
			ICEServers:    webrtcpeer.ICEServers(cfg.WebRTC),
			GatherTimeout: cfg.WebRTC.GatherTimeout,
		}),
		Negotiator: relayService,
		Sink:       sinks,
		OnClose:    onClose,
	})

	router := handler.NewRouter(handler.Deps{
		Site:       tutor.DefaultSite(),
		Tutors:     tutorStore,
		Negotiator: relayService,
		ClientKey:  cfg.Realtime.ClientKey,
		Workspace:  workspaceService,
		Status: site.Status{
			RealtimeConfigured: relayService.Configured(),
			ReviewEnabled:      reviewSink != nil,
		},
	})

	startServer(ctx, cfg.Server, router)

	workspaceService.CloseAll()
	if reviewSink != nil {
		reviewSink.Wait()
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("MathTA backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
