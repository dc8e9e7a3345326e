// macrokitd is the loopback broadcast broker. Every UI process connects over
// a websocket and the broker relays each frame to all connected processes,
// the sender included.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"macrokit/internal/bus"
	"macrokit/internal/config"
)

func main() {
	cfg := config.DefaultConfig()
	flag.StringVar(&cfg.BrokerAddr, "listen", cfg.BrokerAddr, "broker listen address (host:port)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := bus.NewHub()
	go hub.Run()
	defer hub.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", hub.HandleWS)

	srv := &http.Server{Addr: cfg.BrokerAddr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("macrokitd: listening on %s", cfg.BrokerAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "macrokitd: %v\n", err)
	os.Exit(1)
}
