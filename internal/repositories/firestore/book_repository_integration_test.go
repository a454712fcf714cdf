//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	pconfig "github.com/ink3-shop/api/internal/platform/config"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
	"github.com/ink3-shop/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestBookRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "book-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close()
	})

	repo, err := NewBookRepository(provider)
	if err != nil {
		t.Fatalf("new book repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err := client.Collection(booksCollection).Doc("book_001").Set(ctx, bookDocument{
		Title:    "The Go Programming Language",
		Quantity: 5,
		Price:    36000,
	}); err != nil {
		t.Fatalf("seed book: %v", err)
	}

	if err := repo.IncrementQuantity(ctx, "book_001", -3); err != nil {
		t.Fatalf("increment -3: %v", err)
	}
	book, err := repo.FindByID(ctx, "book_001")
	if err != nil {
		t.Fatalf("find after decrement: %v", err)
	}
	if book.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", book.Quantity)
	}

	if err := repo.IncrementQuantity(ctx, "book_001", 3); err != nil {
		t.Fatalf("increment +3: %v", err)
	}
	book, err = repo.FindByID(ctx, "book_001")
	if err != nil {
		t.Fatalf("find after restock: %v", err)
	}
	if book.Quantity != 5 {
		t.Fatalf("expected quantity 5 after restock, got %d", book.Quantity)
	}

	// A unit of work groups the read and the stock transform: the read comes
	// first, the decrement buffers a blind write afterwards.
	unit := pfirestore.NewUnitOfWork(provider)
	err = unit.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := repo.FindByID(txCtx, "book_001")
		if err != nil {
			return err
		}
		if current.Quantity < 1 {
			return errors.New("out of stock")
		}
		if err := repo.IncrementQuantity(txCtx, "book_001", -1); err != nil {
			return err
		}
		return errors.New("force rollback")
	})
	if err == nil {
		t.Fatalf("expected forced rollback error")
	}
	if got, err := repo.FindByID(ctx, "book_001"); err != nil || got.Quantity != 5 {
		t.Fatalf("expected rollback to keep quantity 5, got %+v err %v", got, err)
	}

	_, err = repo.FindByID(ctx, "book_missing")
	if err == nil {
		t.Fatalf("expected not found")
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found classification, got %T %v", err, err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
