package network

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"lanshare/logger"
	"lanshare/models"
	"lanshare/storage"
)

type memoryRecorder struct {
	mu        sync.Mutex
	transfers []storage.Transfer
	err       error
}

func (r *memoryRecorder) RecordTransfer(transfer storage.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, transfer)
	return r.err
}

func (r *memoryRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.transfers))
	for _, transfer := range r.transfers {
		out = append(out, transfer.Kind)
	}
	return out
}

func testIdentity(alias string, port uint16) models.Identity {
	return models.Identity{ID: uuid.New(), Alias: alias, Port: port}
}

// startTestServer serves a rendezvous on a loopback port until the test ends.
func startTestServer(t *testing.T, sharedDir string, recorder Recorder) (*Server, models.Peer) {
	t.Helper()

	server, err := Listen("127.0.0.1:0", ServerOptions{
		SharedDir: sharedDir,
		Offers:    NewOfferTable(time.Hour),
		Recorder:  recorder,
		Logger:    logger.Discard(),
	})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	})

	host, portText, err := net.SplitHostPort(server.Addr().String())
	if err != nil {
		t.Fatalf("split server addr: %v", err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}

	peer := models.Peer{
		Info: testIdentity("server", uint16(port)),
		IP:   host,
	}
	return server, peer
}

func writeTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func testContent(size int) []byte {
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i % 251)
	}
	return content
}
