package memory

import (
	"context"
	"sync"
	"time"

	"supportcore/internal/config"
	"supportcore/internal/llm"
	"supportcore/internal/objectstore"
)

// Manager owns one actor per active session, creating them lazily and
// routing every operation through the owning actor's serialized inbox.
type Manager struct {
	mu     sync.Mutex
	actors map[string]*actor

	hot      KVStore
	warm     KVStore
	cold     objectstore.ObjectStore
	provider llm.Provider
	model    string
	cfg      config.MemoryConfig
}

// NewManager builds a Manager. hot backs the actor's own session/memory
// state; warm backs archive pointers and other short metadata; cold is the
// blob store archived conversations are written to.
func NewManager(cfg config.MemoryConfig, hot, warm KVStore, cold objectstore.ObjectStore, provider llm.Provider, summaryModel string) *Manager {
	return &Manager{
		actors:   make(map[string]*actor),
		hot:      hot,
		warm:     warm,
		cold:     cold,
		provider: provider,
		model:    summaryModel,
		cfg:      cfg,
	}
}

func (m *Manager) actorFor(sessionID string) *actor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actors[sessionID]; ok {
		return a
	}
	a := newActor(sessionID, m.hot, m.warm, m.cold, m.provider, m.model, m.cfg)
	m.actors[sessionID] = a
	return a
}

// drop removes a session's actor from the manager, e.g. after it archives.
// drop does not close the actor's inbox, so the actor's goroutine keeps
// running; in-flight submits already holding a reference keep working against stale state,
// which is acceptable since archive/restore always reload from storage.
func (m *Manager) drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actors, sessionID)
}

// InitSession creates sessionID if it doesn't already exist, returning the
// existing or newly created Session either way (idempotent).
func (m *Manager) InitSession(ctx context.Context, sessionID string, metadata map[string]any) (Session, error) {
	a := m.actorFor(sessionID)
	val, err := a.submit(ctx, func(ctx context.Context, a *actor) (any, error) {
		return a.opInit(ctx, metadata)
	})
	if err != nil {
		return Session{}, err
	}
	return val.(Session), nil
}

// AddMessage appends msg to sessionID's history under serialization,
// triggering trimming and, once the trigger threshold is crossed, a
// coalesced background summarization.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, msg ChatMessage) (ConversationMemory, error) {
	a := m.actorFor(sessionID)
	val, err := a.submit(ctx, func(ctx context.Context, a *actor) (any, error) {
		return a.opAddMessage(ctx, msg)
	})
	if err != nil {
		return ConversationMemory{}, err
	}
	return val.(ConversationMemory), nil
}

// GetSession returns the identity/lifecycle record for sessionID without
// touching its conversation history.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (Session, error) {
	a := m.actorFor(sessionID)
	val, err := a.submit(ctx, func(ctx context.Context, a *actor) (any, error) {
		return a.opGetSession(ctx)
	})
	if err != nil {
		return Session{}, err
	}
	return val.(Session), nil
}

// GetContext returns the summary, a bounded recent-message tail, and the
// active-topic/resolved-issue snapshot for sessionID.
func (m *Manager) GetContext(ctx context.Context, sessionID string) (ConversationContext, error) {
	a := m.actorFor(sessionID)
	val, err := a.submit(ctx, func(ctx context.Context, a *actor) (any, error) {
		return a.opGetContext(ctx)
	})
	if err != nil {
		return ConversationContext{}, err
	}
	return val.(ConversationContext), nil
}

// GenerateSummary forces an immediate (foreground) summary refresh.
func (m *Manager) GenerateSummary(ctx context.Context, sessionID string) (string, error) {
	a := m.actorFor(sessionID)
	val, err := a.submit(ctx, func(ctx context.Context, a *actor) (any, error) {
		return a.opGenerateSummary(ctx)
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

// ArchiveSession writes the full conversation to cold storage, records an
// archive pointer in the warm tier, and clears the session's hot state.
func (m *Manager) ArchiveSession(ctx context.Context, sessionID string) error {
	a := m.actorFor(sessionID)
	_, err := a.submit(ctx, func(ctx context.Context, a *actor) (any, error) {
		return nil, a.opArchive(ctx)
	})
	if err == nil {
		m.drop(sessionID)
	}
	return err
}

// RestoreSession reinstates an archived session's hot state from its cold
// blob and marks it active again.
func (m *Manager) RestoreSession(ctx context.Context, sessionID string) (Session, error) {
	a := m.actorFor(sessionID)
	val, err := a.submit(ctx, func(ctx context.Context, a *actor) (any, error) {
		return a.opRestore(ctx)
	})
	if err != nil {
		return Session{}, err
	}
	return val.(Session), nil
}

// Cleanup archives sessionID if it has been idle longer than its TTL. It
// reports whether an archive was performed.
func (m *Manager) Cleanup(ctx context.Context, sessionID string) (bool, error) {
	a := m.actorFor(sessionID)
	val, err := a.submit(ctx, func(ctx context.Context, a *actor) (any, error) {
		return a.opCleanup(ctx)
	})
	if err != nil {
		return false, err
	}
	archived := val.(bool)
	if archived {
		m.drop(sessionID)
	}
	return archived, nil
}

// SweepIdle runs Cleanup across every session the manager currently tracks
// in memory. Intended to be called periodically (e.g. from a cron job) so
// sessions idle past their TTL are archived even without new traffic.
func (m *Manager) SweepIdle(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.actors))
	for id := range m.actors {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, _ = m.Cleanup(sweepCtx, id)
		cancel()
	}
}
