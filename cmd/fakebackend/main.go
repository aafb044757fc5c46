// Command fakebackend serves an in-memory YClients API with a demo salon so the
// MCP server can be exercised without a real account.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/yclients-mcp/internal/yclients/yclientstest"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

func main() {
	addr := flag.String("addr", ":8089", "listen address")
	companyID := flag.Int("company", 1, "company id")
	token := flag.String("token", "demo-token", "bearer token the backend accepts")
	flag.Parse()

	logger := logging.New(os.Getenv("LOG_LEVEL"))
	backend := yclientstest.NewDemo(*companyID, *token, time.Now())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("fake yclients backend listening",
		"addr", *addr,
		"base_url", "http://localhost"+*addr,
		"company_id", *companyID,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("fake backend error", "error", err)
		os.Exit(1)
	}
}
