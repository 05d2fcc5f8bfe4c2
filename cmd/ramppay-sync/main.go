package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ramppay/ramppay-sync-go/internal/bootstrap"
	"github.com/ramppay/ramppay-sync-go/pkg/contextkeys"
)

func main() {
	watchTxn := flag.String("watch", "", "transaction ID to watch for status updates")
	flag.Parse()

	ctx := context.Background()
	ctx = context.WithValue(ctx, contextkeys.RequestIDKey, "app-main")

	// Initialize the application using the Wire-generated injector.
	app, cleanup, err := bootstrap.InitializeApp(ctx)
	if err != nil {
		// A very basic log if bootstrap fails, as the main logger isn't available.
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := app.Run(ctx, bootstrap.RunOptions{WatchTransaction: *watchTxn}); err != nil {
		fmt.Printf("Application run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Application exited gracefully.")
}
