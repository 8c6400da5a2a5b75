//go:generate weaver generate ./...

package main

import (
	"context"
	"log"

	"socialclient/pkg/gateway"

	"github.com/ServiceWeaver/weaver"
	"github.com/joho/godotenv"
)

// this is the entry file of the socialclient application; components live
// under pkg/services and the HTTP surface under pkg/gateway
func main() {
	// SERVICEWEAVER_CONFIG and friends may come from a local .env file
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	if err := weaver.Run(context.Background(), gateway.Serve); err != nil {
		log.Fatal(err)
	}
}
