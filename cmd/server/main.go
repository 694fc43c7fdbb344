package main

import (
	"context"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	log.Println("Starting roomchat server...")

	config, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := server.New(config)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	app.Start()

	httpServer := server.CreateServer(config.Port, app.Routes())
	go func() {
		if err := server.StartServer(httpServer); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(httpServer, remaining(ctx, config.ShutdownTimeout))
			},
			"chat-hub": func(ctx context.Context) error {
				return app.Shutdown(remaining(ctx, config.ShutdownTimeout))
			},
		},
	)

	exitCode := <-wait
	log.Printf("roomchat exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func remaining(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return fallback
}
