package router

import (
	"log"

	"github.com/penelope/inbox/config"
	"github.com/penelope/inbox/controllers"
	"github.com/penelope/inbox/middleware"

	"github.com/gin-gonic/gin"
)

// Dependencies carries the per-request controllers Initialize wires
// into routes. main.go constructs each from the services it builds at
// startup (DB, coordination store, conversation service, outbound
// pipeline); router.Initialize only knows how to route to them, the
// same separation as the teacher's router.Initialize(r, cfg).
type Dependencies struct {
	Conversation *controllers.ConversationController
	Message      *controllers.MessageController
}

// Initialize wires all routes and middlewares: public webhook routes,
// then an authenticated, organization-scoped conversation surface.
func Initialize(r *gin.Engine, cfg config.Configuration, deps Dependencies) {
	_ = cfg

	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")

	// Public: provider-facing webhook ingress, keyed per channel.
	api.GET("/webhook/:channelId", controllers.WebhookVerify)
	api.POST("/webhook/:channelId", controllers.WebhookUpdate)

	// Authenticated: agent console surface, organization-scoped by
	// Identity.OrganizationID inside each handler.
	auth := api.Group("")
	auth.Use(controllers.AuthRequired())

	auth.GET("/conversations", Logger(), deps.Conversation.List)
	auth.GET("/conversations/:id", Logger(), deps.Conversation.Get)
	auth.GET("/conversations/:id/events", Logger(), deps.Conversation.ListEvents)
	auth.GET("/conversations/:id/messages", Logger(), deps.Conversation.ListMessages)
	auth.POST("/conversations/:id/accept", Logger(), deps.Conversation.Accept)
	auth.POST("/conversations/:id/release", Logger(), deps.Conversation.Release)
	auth.POST("/conversations/:id/complete", Logger(), deps.Conversation.Complete)
	auth.POST("/conversations/:id/messages", Logger(), deps.Message.Send)

	log.Printf("Routes initialized")
}
