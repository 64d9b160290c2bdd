package auth

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/agentsessiond/agentsession/internal/logging"
)

const successHTML = `<html><body><h1>Authorization complete</h1><p>You can close this window.</p></body></html>`

func failureHTML(reason string) string {
	return fmt.Sprintf(`<html><body><h1>Authorization failed</h1><p>%s</p></body></html>`, reason)
}

// Flow is one in-progress OAuth loopback authorization. The listener it
// owns is released on completion or replacement, never left dangling.
type Flow struct {
	Provider string
	MethodID string
	URL      string

	listener net.Listener
	srv      *http.Server
	done     chan result
	once     sync.Once
}

type result struct {
	ok      bool
	message string
	cred    Credential
}

// Manager tracks at most one active loopback flow at a time, matching
// spec.md's ownership rule: a new authorize call replaces and closes any
// flow currently in progress.
type Manager struct {
	mu     sync.Mutex
	active *Flow
	store  *Store
	config func(provider string) *oauth2.Config
}

func NewManager(store *Store, configFor func(provider string) *oauth2.Config) *Manager {
	return &Manager{store: store, config: configFor}
}

// Store returns the credential store the manager persists completed
// OAuth flows into.
func (m *Manager) Store() *Store { return m.store }

// preferredPorts is tried in order before falling back to ephemeral (0)
// then a scan of the high dynamic range, per spec.md §4.5.
var preferredPorts = []int{51234, 52341, 53417}

func listenLoopback() (net.Listener, error) {
	for _, port := range preferredPorts {
		if l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port)); err == nil {
			return l, nil
		}
	}
	if l, err := net.Listen("tcp", "127.0.0.1:0"); err == nil {
		return l, nil
	}
	for i := 0; i < 50; i++ {
		port := 49152 + rand.Intn(65535-49152+1)
		if l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port)); err == nil {
			return l, nil
		}
	}
	return nil, fmt.Errorf("auth: no loopback port available")
}

// Authorize starts a new OAuth flow for provider/methodID, closing any
// flow already in progress. It returns the new Flow, whose URL the caller
// forwards as a provider_auth_challenge message; Flow.Wait then yields the
// final result once the loopback callback fires or the context is
// cancelled.
func (m *Manager) Authorize(ctx context.Context, provider, methodID string) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.close("replaced by a new authorization")
	}

	l, err := listenLoopback()
	if err != nil {
		return nil, err
	}

	cfg := m.config(provider)
	if cfg == nil {
		l.Close()
		return nil, fmt.Errorf("auth: no oauth config for provider %q", provider)
	}

	addr := l.Addr().(*net.TCPAddr)
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/callback", addr.Port)
	state := fmt.Sprintf("%d", time.Now().UnixNano())

	flow := &Flow{
		Provider: provider,
		MethodID: methodID,
		URL:      cfg.AuthCodeURL(state, oauth2.AccessTypeOffline),
		listener: l,
		done:     make(chan result, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			w.Write([]byte(failureHTML("missing authorization code")))
			flow.finish(result{ok: false, message: "missing authorization code"})
			return
		}
		tok, err := cfg.Exchange(r.Context(), code)
		if err != nil {
			w.Write([]byte(failureHTML(err.Error())))
			flow.finish(result{ok: false, message: err.Error()})
			return
		}
		w.Write([]byte(successHTML))
		flow.finish(result{ok: true, cred: Credential{
			Mode:         ModeOAuth,
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    tok.Expiry,
		}})
	})
	flow.srv = &http.Server{Handler: mux}

	go func() {
		if err := flow.srv.Serve(l); err != nil && err != http.ErrServerClosed {
			logging.Warn().Err(err).Str("provider", provider).Msg("auth: loopback server error")
		}
	}()

	m.active = flow
	return flow, nil
}

// Callback completes a flow explicitly (the provider_auth_callback
// message path), for providers whose client cannot hit the loopback
// server directly, e.g. a code pasted back from a CLI login.
func (m *Manager) Callback(ctx context.Context, provider, methodID, code string) error {
	m.mu.Lock()
	flow := m.active
	m.mu.Unlock()
	if flow == nil || flow.Provider != provider || flow.MethodID != methodID {
		return fmt.Errorf("auth: no authorization in progress for %s/%s", provider, methodID)
	}
	cfg := m.config(provider)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		flow.finish(result{ok: false, message: err.Error()})
		return err
	}
	flow.finish(result{ok: true, cred: Credential{
		Mode:         ModeOAuth,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}})
	return nil
}

// Wait blocks until the flow completes (success, failure, or ctx done),
// storing the resulting credential on success.
func (f *Flow) Wait(ctx context.Context, store *Store) (ok bool, message string) {
	select {
	case r := <-f.done:
		f.close("")
		if r.ok {
			if err := store.SetOAuth(f.Provider, r.cred); err != nil {
				return false, err.Error()
			}
			return true, ""
		}
		return false, r.message
	case <-ctx.Done():
		f.close("cancelled")
		return false, "cancelled"
	}
}

func (f *Flow) finish(r result) {
	f.once.Do(func() {
		f.done <- r
	})
}

func (f *Flow) close(reason string) {
	if f.srv != nil {
		go f.srv.Close()
	}
}
