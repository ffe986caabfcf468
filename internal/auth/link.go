package auth

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/beekhof/studygroup-sync/internal/logging"
	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

const linkTimeout = 5 * time.Minute

// Linker creates credential records through the provider's consent flow and
// destroys them on unlink.
type Linker struct {
	oauth  *oauth2.Config
	store  CredentialWriter
	out    io.Writer
	logger *slog.Logger
}

// NewLinker creates a Linker. Instructions for the user are written to out.
func NewLinker(oauthConfig *oauth2.Config, store CredentialWriter, out io.Writer, logger *slog.Logger) *Linker {
	return &Linker{
		oauth:  oauthConfig,
		store:  store,
		out:    out,
		logger: logger,
	}
}

// callbackServer receives the provider's redirect on the loopback interface.
// Port 8080 is preferred; a random port is used when it is taken.
type callbackServer struct {
	redirectURL string
	codes       <-chan string
	errs        <-chan error
	// shutdown closes the listener. It is safe to call more than once.
	shutdown func()
}

func startCallbackServer(state string) (*callbackServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:8080")
	if err != nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("failed to start local server: %w", err)
		}
	}

	port := listener.Addr().(*net.TCPAddr).Port
	codes := make(chan string, 1)
	errs := make(chan error, 1)

	server := &http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Get("error") != "":
			fmt.Fprintf(w, "<html><body><h1>Linking failed</h1><p>%s</p></body></html>", html.EscapeString(query.Get("error")))
			report(errs, fmt.Errorf("authorization error: %s", query.Get("error")))
		case query.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			report(errs, fmt.Errorf("authorization state mismatch"))
		case query.Get("code") == "":
			fmt.Fprint(w, "<html><body><h1>No authorization code received</h1></body></html>")
			report(errs, fmt.Errorf("no authorization code received"))
		default:
			fmt.Fprint(w, "<html><body><h1>Calendar linked</h1><p>You can close this window.</p></body></html>")
			report(codes, query.Get("code"))
		}
		go func() {
			time.Sleep(time.Second)
			server.Shutdown(context.Background())
		}()
	})
	server.Handler = mux

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			report(errs, fmt.Errorf("server error: %w", err))
		}
	}()

	return &callbackServer{
		redirectURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		codes:       codes,
		errs:        errs,
		shutdown: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(ctx)
			// Serve may not have taken ownership of the listener yet.
			listener.Close()
		},
	}, nil
}

// report delivers the first callback result; later ones are dropped.
func report[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// Link runs the interactive consent flow for userID and stores the resulting
// credential record.
func (l *Linker) Link(ctx context.Context, userID string) error {
	state := uuid.NewString()
	srv, err := startCallbackServer(state)
	if err != nil {
		return err
	}
	defer srv.shutdown()

	cfg := *l.oauth
	cfg.RedirectURL = srv.redirectURL

	// Forced consent makes the provider issue a refresh token even when the
	// user linked before.
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Fprintf(l.out, "Listening for the authorization callback on %s\n", srv.redirectURL)
	if srv.redirectURL != DefaultRedirectURL {
		fmt.Fprintf(l.out, "Note: port 8080 was unavailable. Add %s to the authorized redirect URIs of your OAuth client.\n", srv.redirectURL)
	}
	fmt.Fprintln(l.out, "\nVisit the following URL to link your calendar:")
	fmt.Fprintln(l.out, authURL)
	fmt.Fprintln(l.out, "\nWaiting for authorization...")

	var code string
	select {
	case code = <-srv.codes:
	case err := <-srv.errs:
		return fmt.Errorf("failed to receive authorization code: %w", err)
	case <-time.After(linkTimeout):
		return fmt.Errorf("authorization timeout: no response received within %s", linkTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	return l.exchange(ctx, &cfg, userID, code)
}

// LinkWithCode completes linking with an authorization code the user copied
// by hand.
func (l *Linker) LinkWithCode(ctx context.Context, userID, code string) error {
	if code == "" {
		return fmt.Errorf("no authorization code received")
	}
	return l.exchange(ctx, l.oauth, userID, code)
}

// AuthCodeURL returns the consent URL for the manual flow.
func (l *Linker) AuthCodeURL() string {
	return l.oauth.AuthCodeURL(uuid.NewString(), oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (l *Linker) exchange(ctx context.Context, cfg *oauth2.Config, userID, code string) error {
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("provider returned no refresh token for user %s: %w", userID, syncerr.ErrMissingCredential)
	}

	record := CredentialRecord{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if err := l.store.SaveCredential(ctx, record); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	logging.FromContext(ctx, l.logger).Info("calendar linked", "component", "auth", "user_id", userID)
	return nil
}

// Unlink destroys the credential record for userID.
func (l *Linker) Unlink(ctx context.Context, userID string) error {
	if err := l.store.DeleteCredential(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete credentials for user %s: %w", userID, err)
	}
	logging.FromContext(ctx, l.logger).Info("calendar unlinked", "component", "auth", "user_id", userID)
	return nil
}
