package session

import (
	"context"
	"net"
	"sync"

	"github.com/serebryakov7/telematics-gateway/internal/telemetry"
)

// Acceptor owns the TCP listener and the live-session registry. It is an
// explicit value created and held by main, not a package-level
// singleton, so a process can run more than one without shared state.
type Acceptor struct {
	listener net.Listener
	handler  *Handler
	log      *telemetry.Logger

	mu       sync.Mutex
	sessions map[string]*SessionState
	wg       sync.WaitGroup
}

// NewAcceptor wraps an already-bound listener with the session registry
// and dispatcher that drives every accepted connection through handler.
func NewAcceptor(listener net.Listener, handler *Handler, log *telemetry.Logger) *Acceptor {
	return &Acceptor{
		listener: listener,
		handler:  handler,
		log:      log,
		sessions: make(map[string]*SessionState),
	}
}

// Run accepts connections until ctx is canceled or the listener errors,
// dispatching each to its own goroutine. It returns once every dispatched
// connection's goroutine has exited.
func (a *Acceptor) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = a.listener.Close()
	}()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				a.wg.Wait()
				return nil
			}
			a.log.Errorf("acceptor: accept error: %v", err)
			a.wg.Wait()
			return err
		}

		a.wg.Add(1)
		go a.dispatch(ctx, conn)
	}
}

func (a *Acceptor) dispatch(ctx context.Context, conn net.Conn) {
	defer a.wg.Done()
	defer conn.Close()

	addr := conn.RemoteAddr().String()
	st := &SessionState{RemoteAddr: addr, State: AwaitingLogin}
	a.register(addr, st)
	defer a.unregister(addr)

	a.handler.Serve(ctx, conn, st)
}

func (a *Acceptor) register(addr string, st *SessionState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[addr] = st
}

func (a *Acceptor) unregister(addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, addr)
}

// ActiveSessions returns a snapshot of currently open sessions, keyed by
// remote address. No HTTP route exposes it.
func (a *Acceptor) ActiveSessions() map[string]SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]SessionState, len(a.sessions))
	for addr, st := range a.sessions {
		out[addr] = *st
	}
	return out
}
