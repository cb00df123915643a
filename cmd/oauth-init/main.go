// Command oauth-init runs the installed-app OAuth flow once and stores the
// refresh token the Sheets exporter needs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"

	"moneymind/internal/cli"
	applog "moneymind/internal/log"
)

const authTimeout = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := applog.New(applog.Config{Component: applog.ComponentSheets, Output: os.Stderr})

	clientJSON, err := readClient(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"), os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))
	if err != nil {
		cli.Fatal(logger, "Missing OAuth client", err)
	}

	cfg, err := google.ConfigFromJSON(clientJSON, sheets.SpreadsheetsScope)
	if err != nil {
		cli.Fatal(logger, "Invalid OAuth client", err)
	}

	// the redirect URI must be registered on the OAuth client
	port := os.Getenv("OAUTH_REDIRECT_PORT")
	if port == "" {
		port = "8085"
	}
	cfg.RedirectURL = "http://localhost:" + port + "/callback"

	ctx, cancel := cli.SignalContext(context.Background(), logger.Logger)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, authTimeout)
	defer cancelTimeout()

	state := uuid.NewString()
	code, err := awaitCode(ctx, net.JoinHostPort("localhost", port), state, func() {
		fmt.Printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))
	})
	if err != nil {
		cli.Fatal(logger, "Authorization failed", err)
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		cli.Fatal(logger, "Token exchange failed", err)
	}

	out := os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")
	if out == "" {
		out = "token.json"
	}
	if err := saveToken(out, tok); err != nil {
		cli.Fatal(logger, "Failed to save token", err, "path", out)
	}
	logger.Info("Saved OAuth token", "path", out)
}

func readClient(inline, file string) ([]byte, error) {
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		return os.ReadFile(file)
	default:
		return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}
}

// awaitCode serves the redirect endpoint on addr until a code with the
// expected state arrives or ctx ends. ready runs once the listener is up.
func awaitCode(ctx context.Context, addr, state string, ready func()) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("oauth error: %s", q.Get("error")):
			default:
			}
			return
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	ready()

	select {
	case code := <-codeCh:
		return code, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}
