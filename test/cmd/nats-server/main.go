// Package main runs a standalone NATS server with JetStream enabled.
//
// The server binds a random available port, stores JetStream data in a
// per-process temporary directory, and prints its connection URL to stdout.
// It backs the examples and manual testing when no external broker is
// running; integration tests embed their own server and do not use it.
package main

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

func main() {
	log.SetFlags(0)

	if err := run(); err != nil {
		log.Fatalf("nats-server: %v", err)
	}
}

func run() error {
	port, err := freePort()
	if err != nil {
		return fmt.Errorf("reserve port: %w", err)
	}

	storeDir := filepath.Join(os.TempDir(), fmt.Sprintf("relay-nats-%d", os.Getpid()))
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return fmt.Errorf("store dir: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(storeDir)
	}()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      port,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true, // signals are handled below so cleanup runs
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		return errors.New("not ready within 10s")
	}

	// Connection info goes to stdout so callers (and the examples) can
	// source it: NATS_URL=$(go run ./test/cmd/nats-server | head -1 | cut -d= -f2)
	fmt.Printf("NATS_URL=nats://%s:%d\n", opts.Host, opts.Port)
	fmt.Println("NATS_READY=true")
	log.Printf("listening on port %d (pid %d)", port, os.Getpid())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Print("shutting down")
	srv.Shutdown()
	srv.WaitForShutdown()

	return nil
}

// freePort reserves a port by binding and releasing it. The server re-binds
// the same port; the window in between is acceptable for a dev tool.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = l.Close()
	}()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address type %T", l.Addr())
	}

	return addr.Port, nil
}
