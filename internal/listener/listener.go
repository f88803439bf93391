// Package listener implements the daemon's Unix-domain-socket control
// surface (spec.md §6/§4.11): length-prefixed ojproto.Message frames
// carrying request/response/notification envelopes, a single advisory
// lock file guarding against a second daemon instance, and a loopback
// debug HTTP surface sharing the same read path.
package listener

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/decision"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/logger"
	"github.com/oddjobs/oj/internal/ojerr"
	"github.com/oddjobs/oj/internal/runbook"
	"github.com/oddjobs/oj/pkg/ojproto"
)

// socketFileName is the fixed leaf name under stateDir (spec.md §6).
const socketFileName = "daemon.sock"

// maxSocketPathLen mirrors unix.SOCK_MAX_PATH (108 including the NUL
// terminator, 107 usable bytes on Linux). This is plain platform
// plumbing, not behavior, so it's a constant rather than an
// golang.org/x/sys/unix import.
const maxSocketPathLen = 107

// Listener owns the Unix socket, the debug HTTP surface, and the lock
// file for the daemon's lifetime.
type Listener struct {
	stateDir   string
	socketPath string
	version    string

	lock       *singleton
	nl         net.Listener
	dispatcher *ojproto.Dispatcher
	debug      *debugServer
	log        *logger.Logger

	wg sync.WaitGroup
}

// Deps bundles the collaborators handlers need to read state and submit
// commands; passed as one struct so New's signature doesn't grow with
// every new action.
type Deps struct {
	Executor  *effects.Executor
	Runbooks  *runbook.Cache
	Decisions *decision.Builder
	Router    *adapters.Router
}

// New validates the socket path, acquires the singleton lock, binds the
// Unix socket and the debug listener, and wires every ojproto action to
// its handler. It does not start accepting connections — call Serve for
// that.
func New(stateDir, version string, deps Deps, debugAddr string, debugEnabled bool, log *logger.Logger) (*Listener, error) {
	log = log.WithFields(zap.String("component", "listener"))

	socketPath := filepath.Join(stateDir, socketFileName)
	if len(socketPath) > maxSocketPathLen {
		return nil, ojerr.New(ojerr.Validation, fmt.Sprintf("socketPathTooLong: %q is %d bytes, max %d", socketPath, len(socketPath), maxSocketPathLen))
	}

	lock, err := acquireSingleton(stateDir, version)
	if err != nil {
		return nil, err
	}

	// A prior unclean shutdown can leave a stale socket file behind; the
	// lock above is the real mutual-exclusion guard, so it's safe to
	// remove whatever we find once we hold it.
	os.Remove(socketPath)

	nl, err := net.Listen("unix", socketPath)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("listener: bind unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		log.Warn("failed to chmod socket", zap.Error(err))
	}

	dispatcher := ojproto.NewDispatcher()
	l := &Listener{
		stateDir:   stateDir,
		socketPath: socketPath,
		version:    version,
		lock:       lock,
		nl:         nl,
		dispatcher: dispatcher,
		log:        log,
	}
	registerHandlers(dispatcher, deps.Executor, deps.Runbooks, deps.Router)

	if debugEnabled {
		dbg, err := newDebugServer(debugAddr, deps.Executor, log)
		if err != nil {
			nl.Close()
			lock.release()
			return nil, err
		}
		l.debug = dbg
	}

	return l, nil
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (l *Listener) Serve(ctx context.Context) error {
	if l.debug != nil {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.debug.serve()
		}()
	}

	go func() {
		<-ctx.Done()
		l.nl.Close()
	}()

	for {
		nc, err := l.nl.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.wg.Wait()
				return nil
			default:
				return fmt.Errorf("listener: accept: %w", err)
			}
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			c := newConn(uuid.NewString(), nc, l.dispatcher, l.log)
			c.serve(ctx)
		}()
	}
}

// Close tears down the socket, debug server, and lock file in order.
func (l *Listener) Close() error {
	err := l.nl.Close()
	if l.debug != nil {
		l.debug.close()
	}
	l.wg.Wait()
	os.Remove(l.socketPath)
	l.lock.release()
	return err
}
