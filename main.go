// main is the HTTP + worker entry point, wiring config, db,
// coordination, eventbus, providers, the conversation/outbound
// services and the gin router together — the same role the teacher's
// original main.go played for one hardcoded webhook handler,
// generalized to the full dependency graph this repository now has.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/penelope/inbox/appctx"
	"github.com/penelope/inbox/authn"
	"github.com/penelope/inbox/config"
	"github.com/penelope/inbox/conversation"
	"github.com/penelope/inbox/controllers"
	"github.com/penelope/inbox/coordination"
	"github.com/penelope/inbox/db"
	"github.com/penelope/inbox/eventbus"
	"github.com/penelope/inbox/outbound"
	"github.com/penelope/inbox/providers"
	"github.com/penelope/inbox/providers/channelA"
	"github.com/penelope/inbox/providers/channelB"
	"github.com/penelope/inbox/queue"
	"github.com/penelope/inbox/router"
	"github.com/penelope/inbox/socket"
	"github.com/penelope/inbox/webhook"
)

func main() {
	cfg := config.Get()

	db.SetConfigurations(cfg)
	database, err := db.Connect()
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}

	coord, err := coordination.Connect(cfg.CoordURL)
	if err != nil {
		log.Fatalf("coordination connect: %v", err)
	}
	defer coord.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.Ping(ctx); err != nil {
		log.Fatalf("coordination ping: %v", err)
	}

	bus := eventbus.NewBus()
	mirror := eventbus.NewMirror(coord, bus)
	go func() {
		if err := mirror.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("eventbus: mirror stopped: %v", err)
		}
	}()

	adapters := map[string]providers.Adapter{
		channelA.Name: channelA.New(),
		channelB.Name: channelB.New(),
	}

	authProvider := authn.NewHMACProvider(cfg.AuthSecret)

	redisOpts := coord.Client().Options()
	redisOpt := asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	convService := conversation.NewService(database, coord, mirror)
	outboundPipeline := outbound.NewPipeline(database, asynqClient, mirror, adapters)
	webhookProcessor := webhook.NewProcessor(database, mirror)
	webhookWorker := webhook.NewWorker(database, webhookProcessor, adapters)

	socketGateway := socket.NewGateway(database, coord, bus, authProvider, convService)

	asynqServer := asynq.NewServer(redisOpt, queue.Config)
	workerMux := asynq.NewServeMux()
	workerMux.HandleFunc(queue.TypeWebhookIngest, webhookWorker.HandleIngest)
	workerMux.HandleFunc(queue.TypeOutboundSend, outboundPipeline.HandleSend)
	go func() {
		if err := asynqServer.Run(workerMux); err != nil {
			log.Printf("asynq server stopped: %v", err)
		}
	}()
	defer asynqServer.Shutdown()

	deps := router.Dependencies{
		Conversation: controllers.NewConversationController(convService),
		Message:      controllers.NewMessageController(outboundPipeline),
	}

	r := gin.New()
	r.Use(db.SetDBtoContext(database))
	r.Use(appctx.SetAsynqClient(asynqClient))
	r.Use(appctx.SetAuthProvider(authProvider))
	router.Initialize(r, cfg, deps)
	r.GET("/ws", socketGateway.HandleConnection)
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server: %v", err)
	}
}
