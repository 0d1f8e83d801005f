package botclient_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"telegram-proxy/internal/botclient"
	"telegram-proxy/internal/client"
	"telegram-proxy/internal/config"
	"telegram-proxy/internal/handler"
	"telegram-proxy/internal/middleware"
	"telegram-proxy/internal/service"
)

// TestClientThroughProxy drives the bot client against a real proxy stack
// whose upstream is a fake Bot API.
func TestClientThroughProxy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	botAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bot999:tok/sendMessage":
			_ = r.ParseForm()
			if r.PostForm.Get("text") != "ping from test" {
				t.Errorf("text = %q", r.PostForm.Get("text"))
			}
		case "/bot999:tok/sendPhoto":
			file, _, err := r.FormFile("photo")
			if err != nil {
				t.Errorf("FormFile: %v", err)
				return
			}
			_ = file.Close()
		default:
			t.Errorf("unexpected upstream path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer botAPI.Close()

	cfg := &config.Config{Upstream: config.UpstreamConfig{IdleConnections: 4}}
	f := service.NewForwarderForTest(client.NewUpstreamClient(cfg, logger, nil), botAPI.URL, logger)

	e := echo.New()
	e.Use(middleware.StripHopByHop())
	handler.RegisterRoutes(e, handler.NewProxyHandler(f, logger), handler.NewHealthHandler(f, "test"))
	proxy := httptest.NewServer(e)
	defer proxy.Close()

	c := botclient.New(proxy.URL, "999:tok", "42", proxy.Client(), logger)

	if _, err := c.SendMessage(context.Background(), "ping from test"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	photo := filepath.Join(t.TempDir(), "cat.jpg")
	if err := os.WriteFile(photo, []byte{0xff, 0xd8, 0xff, 0xe0}, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SendPhoto(context.Background(), botclient.Media{Path: photo}); err != nil {
		t.Fatalf("SendPhoto() error = %v", err)
	}
}
