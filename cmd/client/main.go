package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/roomchat/internal/client"
)

func main() {
	_ = godotenv.Load()

	cfg, err := client.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	app, err := client.NewApp(cfg, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
