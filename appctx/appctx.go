// Package appctx injects the shared services main.go wires up into
// every gin.Context, the same middleware-and-accessor shape as
// db.SetDBtoContext / db.DBInstance — one pair of functions per
// collaborator instead of a single grab-bag struct, so a handler's
// imports say exactly what it depends on.
package appctx

import (
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/penelope/inbox/authn"
)

const (
	asynqKey = "asynq_client"
	authKey  = "authn_provider"
)

func SetAsynqClient(client *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(asynqKey, client)
		c.Next()
	}
}

func AsynqClient(c *gin.Context) *asynq.Client {
	v, ok := c.Get(asynqKey)
	if !ok {
		return nil
	}
	client, _ := v.(*asynq.Client)
	return client
}

func SetAuthProvider(provider authn.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(authKey, provider)
		c.Next()
	}
}

func AuthProvider(c *gin.Context) authn.Provider {
	v, ok := c.Get(authKey)
	if !ok {
		return nil
	}
	provider, _ := v.(authn.Provider)
	return provider
}
