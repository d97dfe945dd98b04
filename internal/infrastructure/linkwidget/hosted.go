// Package linkwidget opens the aggregator's hosted link page and receives its
// terminal callback on a loopback HTTP listener.
package linkwidget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"finboard/internal/domain/link"
	"finboard/internal/shared/logging"
	"finboard/internal/shared/middleware"
)

const (
	callbackPath    = "/callback/"
	shutdownTimeout = 5 * time.Second
)

const closePage = `<!doctype html><html><body><p>%s You can close this window and return to finboard.</p></body></html>`

// Config configures a HostedOpener.
type Config struct {
	HostedURL    string
	CallbackAddr string
	// Launch shows the page to the user. The default prints the URL to Out.
	Launch func(pageURL string) error
	Out    io.Writer
	Logger logrus.FieldLogger
}

// HostedOpener implements link.Opener with the aggregator's hosted page.
type HostedOpener struct {
	hostedURL    string
	callbackAddr string
	launch       func(string) error
	logger       logrus.FieldLogger
}

var _ link.Opener = (*HostedOpener)(nil)

// NewHostedOpener creates an opener from cfg.
func NewHostedOpener(cfg Config) *HostedOpener {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	launch := cfg.Launch
	if launch == nil {
		launch = func(pageURL string) error {
			_, err := fmt.Fprintf(out, "Open this link in your browser to connect your bank:\n\n  %s\n\n", pageURL)
			return err
		}
	}
	addr := cfg.CallbackAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	return &HostedOpener{
		hostedURL:    cfg.HostedURL,
		callbackAddr: addr,
		launch:       launch,
		logger:       logging.Component(cfg.Logger, "linkwidget"),
	}
}

// Open serves the callback endpoint, shows the hosted page for token and
// blocks until the first terminal callback arrives or ctx ends.
func (o *HostedOpener) Open(ctx context.Context, token link.Token) link.Outcome {
	ln, err := net.Listen("tcp", o.callbackAddr)
	if err != nil {
		o.logger.WithError(err).Error("Failed to start link callback listener")
		return link.Failure(fmt.Sprintf("could not listen for the link callback: %v", err))
	}

	callbackURL := "http://" + ln.Addr().String() + callbackPath
	pageURL, err := BuildPageURL(o.hostedURL, token.Value, callbackURL)
	if err != nil {
		ln.Close()
		return link.Failure(err.Error())
	}

	results := make(chan link.Outcome, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		outcome := ParseCallback(strings.TrimPrefix(r.URL.Path, callbackPath), r.URL.Query())

		select {
		case results <- outcome:
		default:
			// Only the first terminal callback counts.
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch outcome.Kind {
		case link.OutcomeSuccess:
			fmt.Fprintf(w, closePage, "Your bank is connected.")
		case link.OutcomeUserCancelled:
			fmt.Fprintf(w, closePage, "Linking was cancelled.")
		default:
			fmt.Fprintf(w, closePage, "Linking failed.")
		}
	})

	srv := &http.Server{
		Handler: middleware.Chain(mux,
			middleware.Tracing(callbackPath),
			middleware.Logging(o.logger),
			middleware.LoopbackOnly,
			middleware.NoStore,
		),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.WithError(err).Warn("Link callback server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			o.logger.WithError(err).Warn("Error shutting down link callback server")
		}
	}()

	o.logger.WithField("callback", callbackURL).Debug("Waiting for link callback")
	if err := o.launch(pageURL); err != nil {
		return link.Failure(fmt.Sprintf("could not open the link page: %v", err))
	}

	select {
	case outcome := <-results:
		return outcome
	case <-ctx.Done():
		return link.Failure(fmt.Sprintf("link session aborted: %v", ctx.Err()))
	}
}

// BuildPageURL appends the link token and the callback target to the hosted
// page address.
func BuildPageURL(hostedURL, token, callbackURL string) (string, error) {
	u, err := url.Parse(hostedURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid hosted link URL %q", hostedURL)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("isWebview", "true")
	q.Set("redirect_uri", callbackURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseCallback maps a hosted-page redirect onto a terminal outcome. event is
// the path after the callback prefix ("connected", "exit", ...).
func ParseCallback(event string, q url.Values) link.Outcome {
	if pt := strings.TrimSpace(q.Get("public_token")); pt != "" {
		return link.Success(pt)
	}

	reason := q.Get("error_message")
	if reason == "" {
		reason = q.Get("error")
	}
	if code := q.Get("error_code"); code != "" {
		if reason == "" {
			reason = code
		} else {
			reason = code + ": " + reason
		}
	}
	if reason != "" {
		return link.Failure(reason)
	}

	switch strings.ToLower(strings.Trim(event, "/")) {
	case "exit", "cancel", "cancelled", "canceled":
		return link.Cancelled()
	}
	switch strings.ToLower(q.Get("status")) {
	case "exit", "cancelled", "canceled":
		return link.Cancelled()
	}

	return link.Failure("unrecognized link callback")
}
