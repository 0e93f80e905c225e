package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"storefront-core/internal/auth"
	"storefront-core/internal/config"
	"storefront-core/internal/devserver"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatal(err)
	}

	gin.SetMode(cfg.GinMode)
	store := devserver.NewStore()
	if _, err := store.CreateUser("demo@example.com", "demo-password", "Demo User"); err != nil {
		log.Fatal(err)
	}

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "storefront-core",
	}

	router, _ := devserver.NewRouter(devserver.Deps{Store: store, TokenConfig: tokenCfg})
	log.Printf("listening on %s", fmt.Sprintf(":%d", cfg.Port))
	log.Fatal(devserver.Run(cfg, router))
}
