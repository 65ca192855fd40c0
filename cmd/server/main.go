package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/server"
)

const (
	httpShutdownTimeout = 10 * time.Second
	connShutdownTimeout = 5 * time.Second
)

func main() {
	fmt.Println("Starting Console Chat Server...")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := server.NewConfigFromEnv()
	srv := server.NewServer(config)
	httpServer := server.CreateServer(config.Port, server.SetupRoutes(srv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.StartServer(httpServer); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		err := server.ShutdownServer(httpServer, httpShutdownTimeout)
		if closeErr := srv.CloseConnections(connShutdownTimeout); closeErr != nil {
			log.Printf("Connection shutdown error: %v", closeErr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	log.Println("Server exited")
}
