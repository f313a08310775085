// lancast-relay is the stream forwarding server for relay-strategy casts.
//
// Senders that cannot accept direct connections publish their stream to a
// relay; any number of receivers subscribe to it by stream id. The relay
// keeps streams isolated by id and drops publishers that stop answering
// keepalives.
//
// Usage:
//
//	lancast-relay [options]
//
// Options:
//
//	-addr          Listen address (default: ":40100")
//	-ping-interval Publisher keepalive period (default: 30s)
//	-verbose       Enable debug logging
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/pion/logging"

	"github.com/lancast/lancast/pkg/relay"
)

func main() {
	addr := flag.String("addr", ":40100", "listen address")
	pingInterval := flag.Duration("ping-interval", relay.DefaultPingInterval, "publisher keepalive period")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	loggerFactory := logging.NewDefaultLoggerFactory()
	if *verbose {
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	} else {
		loggerFactory.DefaultLogLevel = logging.LogLevelInfo
	}

	server, err := relay.NewServer(relay.ServerConfig{
		Address:       *addr,
		PingInterval:  *pingInterval,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Fatalf("Failed to start relay server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Printf("Shutting down")
	if err := server.Close(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
