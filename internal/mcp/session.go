package mcp

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// transportKind is the closed set of transports a session can be bound to.
// A session id presented to the wrong transport is a protocol error, never
// a silent crossover.
type transportKind int

const (
	kindStreamable transportKind = iota
	kindSSE
)

func (k transportKind) String() string {
	switch k {
	case kindStreamable:
		return "streamable-http"
	case kindSSE:
		return "sse"
	default:
		return "unknown"
	}
}

// session is one client's isolated conversation: an unguessable id, the
// transport kind it arrived on, and its own executor instance.
type session struct {
	id        string
	kind      transportKind
	exec      *executor
	createdAt time.Time
	// stream is set for SSE sessions only: the outbound pipe the GET
	// handler drains.
	stream *sseStream

	closeOnce sync.Once
	// closeTransport tears down transport-held resources (the SSE stream);
	// nil for plain streamable sessions.
	closeTransport func()
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		if s.closeTransport != nil {
			s.closeTransport()
		}
	})
}

var (
	errSessionLimit   = errors.New("maximum session count reached")
	errUnknownSession = errors.New("no valid session")
)

// sessionRegistry is the single authoritative session map, owned by the
// server and mutated only through these methods.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
	max      int
}

func newSessionRegistry(max int) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*session),
		max:      max,
	}
}

// create allocates a session with a fresh unguessable identifier.
// Identifiers are never reused; uuids make collisions and guessing moot.
func (r *sessionRegistry) create(kind transportKind, exec *executor, closeTransport func()) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max > 0 && len(r.sessions) >= r.max {
		return nil, errSessionLimit
	}

	sess := &session{
		id:             uuid.NewString(),
		kind:           kind,
		exec:           exec,
		createdAt:      time.Now(),
		closeTransport: closeTransport,
	}
	r.sessions[sess.id] = sess
	return sess, nil
}

// lookup resolves an id for the given transport kind. Unknown ids and
// kind mismatches both report errUnknownSession.
func (r *sessionRegistry) lookup(id string, kind transportKind) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.kind != kind {
		return nil, errUnknownSession
	}
	return sess, nil
}

// remove drops the map entry and returns the session for teardown. After
// remove returns, no entry for the id remains.
func (r *sessionRegistry) remove(id string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	return sess
}

// drain empties the registry and returns every tracked session.
func (r *sessionRegistry) drain() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		out = append(out, sess)
		delete(r.sessions, id)
	}
	return out
}

func (r *sessionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
