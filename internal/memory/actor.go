package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"supportcore/internal/apperr"
	"supportcore/internal/config"
	"supportcore/internal/llm"
	"supportcore/internal/objectstore"
	"supportcore/internal/observability"
)

// command is a unit of work processed serially by an actor's run loop.
type command struct {
	ctx   context.Context
	op    func(ctx context.Context, a *actor) (any, error)
	reply chan result
}

type result struct {
	val any
	err error
}

// actor owns exclusive access to one session's state. All reads and writes
// to that session's Session/ConversationMemory happen on this goroutine, so
// intra-session operations never race.
type actor struct {
	sessionID string
	inbox     chan command

	hot      KVStore
	warm     KVStore
	cold     objectstore.ObjectStore
	provider llm.Provider
	model    string
	cfg      config.MemoryConfig

	session *Session
	mem     *ConversationMemory

	summarizing bool
}

func newActor(sessionID string, hot, warm KVStore, cold objectstore.ObjectStore, provider llm.Provider, model string, cfg config.MemoryConfig) *actor {
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = 100
	}
	a := &actor{
		sessionID: sessionID,
		inbox:     make(chan command, inboxSize),
		hot:       hot,
		warm:      warm,
		cold:      cold,
		provider:  provider,
		model:     model,
		cfg:       cfg,
	}
	go a.run()
	return a
}

func (a *actor) run() {
	for cmd := range a.inbox {
		val, err := cmd.op(cmd.ctx, a)
		select {
		case cmd.reply <- result{val: val, err: err}:
		default:
		}
	}
}

// submit enqueues cmd, dropping the oldest queued command on overflow so the
// actor never blocks its caller.
func (a *actor) submit(ctx context.Context, op func(ctx context.Context, a *actor) (any, error)) (any, error) {
	reply := make(chan result, 1)
	cmd := command{ctx: ctx, op: op, reply: reply}

	select {
	case a.inbox <- cmd:
	default:
		select {
		case dropped := <-a.inbox:
			observability.LoggerWithTrace(ctx).Warn().Str("session", a.sessionID).Msg("memory_actor_inbox_overflow_dropped_oldest")
			select {
			case dropped.reply <- result{err: apperr.New(apperr.Internal, "dropped due to inbox overflow")}:
			default:
			}
		default:
		}
		select {
		case a.inbox <- cmd:
		default:
			return nil, apperr.New(apperr.Internal, "memory actor inbox full")
		}
	}

	select {
	case r := <-reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, apperr.New(apperr.Timeout, "memory operation timed out")
	}
}

// --- persisted wire shapes -------------------------------------------------

type persistedSession struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id,omitempty"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type persistedMemory struct {
	SessionID        string        `json:"session_id"`
	Messages         []ChatMessage `json:"messages"`
	Summary          string        `json:"summary"`
	Topics           []string      `json:"topics"`
	ResolvedIssues   []string      `json:"resolved_issues"`
	LastSummaryAt    time.Time     `json:"last_summary_at"`
	TTLSeconds       int64         `json:"ttl_seconds"`
	SinceLastSummary int           `json:"since_last_summary"`
}

func toPersistedSession(s Session) persistedSession {
	return persistedSession{
		ID: s.ID, UserID: s.UserID, Status: s.Status,
		CreatedAt: s.CreatedAt, LastActivity: s.LastActivity, Metadata: s.Metadata,
	}
}

func fromPersistedSession(p persistedSession) Session {
	return Session{
		ID: p.ID, UserID: p.UserID, Status: p.Status,
		CreatedAt: p.CreatedAt, LastActivity: p.LastActivity, Metadata: p.Metadata,
	}
}

func toPersistedMemory(m ConversationMemory) persistedMemory {
	return persistedMemory{
		SessionID:        m.SessionID,
		Messages:         m.Messages,
		Summary:          m.Summary,
		Topics:           topicKeys(m.Topics),
		ResolvedIssues:   topicKeys(m.ResolvedIssues),
		LastSummaryAt:    m.LastSummaryAt,
		TTLSeconds:       int64(m.TTL.Seconds()),
		SinceLastSummary: m.SinceLastSummary,
	}
}

func fromPersistedMemory(p persistedMemory) ConversationMemory {
	topics := make(map[string]struct{}, len(p.Topics))
	for _, t := range p.Topics {
		topics[t] = struct{}{}
	}
	resolved := make(map[string]struct{}, len(p.ResolvedIssues))
	for _, t := range p.ResolvedIssues {
		resolved[t] = struct{}{}
	}
	return ConversationMemory{
		SessionID: p.SessionID, Messages: p.Messages, Summary: p.Summary,
		Topics: topics, ResolvedIssues: resolved,
		LastSummaryAt: p.LastSummaryAt, TTL: time.Duration(p.TTLSeconds) * time.Second,
		SinceLastSummary: p.SinceLastSummary,
	}
}

func sessionKey(id string) string { return "session:" + id }
func memoryKey(id string) string  { return "memory:" + id }

// --- op implementations -----------------------------------------------------

func (a *actor) loadIfAbsent(ctx context.Context) error {
	if a.session != nil && a.mem != nil {
		return nil
	}
	raw, err := a.hot.Get(ctx, sessionKey(a.sessionID))
	if err != nil && err != ErrNotFoundInStore {
		return apperr.Wrap(apperr.StorageError, "load session", err)
	}
	if err == nil {
		var ps persistedSession
		if uerr := json.Unmarshal(raw, &ps); uerr != nil {
			return apperr.Wrap(apperr.StorageError, "decode session", uerr)
		}
		sess := fromPersistedSession(ps)
		a.session = &sess
	}

	memRaw, err := a.hot.Get(ctx, memoryKey(a.sessionID))
	if err != nil && err != ErrNotFoundInStore {
		return apperr.Wrap(apperr.StorageError, "load memory", err)
	}
	if err == nil {
		var pm persistedMemory
		if uerr := json.Unmarshal(memRaw, &pm); uerr != nil {
			return apperr.Wrap(apperr.StorageError, "decode memory", uerr)
		}
		mem := fromPersistedMemory(pm)
		a.mem = &mem
	}
	return nil
}

func (a *actor) persist(ctx context.Context) error {
	sessRaw, err := json.Marshal(toPersistedSession(*a.session))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode session", err)
	}
	if err := a.hot.Set(ctx, sessionKey(a.sessionID), sessRaw, a.mem.TTL); err != nil {
		return apperr.Wrap(apperr.StorageError, "persist session", err)
	}
	memRaw, err := json.Marshal(toPersistedMemory(*a.mem))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode memory", err)
	}
	if err := a.hot.Set(ctx, memoryKey(a.sessionID), memRaw, a.mem.TTL); err != nil {
		return apperr.Wrap(apperr.StorageError, "persist memory", err)
	}
	return nil
}

func (a *actor) ttl() time.Duration {
	hours := a.cfg.SessionTTLHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func (a *actor) opInit(ctx context.Context, metadata map[string]any) (Session, error) {
	if err := a.loadIfAbsent(ctx); err != nil {
		return Session{}, err
	}
	if a.session != nil {
		return *a.session, nil
	}
	now := time.Now()
	a.session = &Session{
		ID: a.sessionID, Status: StatusActive, CreatedAt: now, LastActivity: now, Metadata: metadata,
	}
	a.mem = &ConversationMemory{
		SessionID: a.sessionID, Topics: map[string]struct{}{}, ResolvedIssues: map[string]struct{}{}, TTL: a.ttl(),
	}
	if err := a.persist(ctx); err != nil {
		a.session, a.mem = nil, nil
		return Session{}, err
	}
	return *a.session, nil
}

func (a *actor) opAddMessage(ctx context.Context, msg ChatMessage) (ConversationMemory, error) {
	if err := a.loadIfAbsent(ctx); err != nil {
		return ConversationMemory{}, err
	}
	if a.session == nil || a.mem == nil {
		return ConversationMemory{}, apperr.New(apperr.NotFound, "session not initialized")
	}
	if a.session.Status != StatusActive {
		return ConversationMemory{}, apperr.New(apperr.Validation, "session ended").
			WithDetails(map[string]any{"reason": "session_ended"})
	}

	next := *a.mem
	next.Messages = append(append([]ChatMessage{}, a.mem.Messages...), msg)
	next.SinceLastSummary = a.mem.SinceLastSummary + 1
	mergeTopics(next.Topics, ExtractTopics([]string{msg.Content}))

	nextSession := *a.session
	nextSession.LastActivity = time.Now()

	prevSession, prevMem := a.session, a.mem
	a.session, a.mem = &nextSession, &next
	if err := a.persist(ctx); err != nil {
		a.session, a.mem = prevSession, prevMem
		return ConversationMemory{}, err
	}

	a.applyTrimming(ctx)
	a.maybeScheduleSummary(ctx)

	return *a.mem, nil
}

// applyTrimming enforces MAX_MESSAGES with a KEEP_RECENT floor, folding every
// message except the newest KEEP_RECENT into the summary synchronously, so
// exactly KEEP_RECENT messages remain after a trim (the persisted copy already
// reflects the append, so a failed in-place summarization here just leaves
// the over-long history for the next append to retry).
func (a *actor) applyTrimming(ctx context.Context) {
	maxMessages := a.cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = 100
	}
	keepRecent := a.cfg.KeepRecent
	if keepRecent <= 0 {
		keepRecent = 20
	}
	if len(a.mem.Messages) <= maxMessages {
		return
	}
	dropCount := len(a.mem.Messages) - keepRecent
	if dropCount <= 0 {
		return
	}
	chunk := a.mem.Messages[:dropCount]
	newSummary, err := summarize(ctx, a.provider, a.model, a.mem.Summary, chunk)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("session", a.sessionID).Msg("memory_trim_summary_failed")
		return
	}
	a.mem.Summary = newSummary
	a.mem.Messages = append([]ChatMessage{}, a.mem.Messages[dropCount:]...)
	a.mem.LastSummaryAt = time.Now()
	a.mem.SinceLastSummary = 0
	if err := a.persist(ctx); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("session", a.sessionID).Msg("memory_trim_persist_failed")
	}
}

// maybeScheduleSummary launches a background summarization when the trigger
// threshold is crossed, coalescing concurrent requests into the single
// in-flight run.
func (a *actor) maybeScheduleSummary(ctx context.Context) {
	trigger := a.cfg.SummaryTrigger
	if trigger <= 0 {
		trigger = 20
	}
	if a.mem.SinceLastSummary < trigger || a.summarizing {
		return
	}
	a.summarizing = true
	sessionID := a.sessionID
	chunk := append([]ChatMessage{}, a.mem.Messages...)
	existing := a.mem.Summary
	provider, model := a.provider, a.model
	// The background goroutine re-enters the actor's serialized queue to
	// apply its result instead of mutating state directly.
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		summary, err := summarize(bgCtx, provider, model, existing, chunk)
		a.submit(bgCtx, func(ctx context.Context, a *actor) (any, error) {
			a.summarizing = false
			if err != nil {
				observability.LoggerWithTrace(ctx).Warn().Err(err).Str("session", sessionID).Msg("memory_background_summary_failed")
				return nil, nil
			}
			a.mem.Summary = summary
			a.mem.LastSummaryAt = time.Now()
			a.mem.SinceLastSummary = 0
			return nil, a.persist(ctx)
		})
	}()
}

func (a *actor) opGetSession(ctx context.Context) (Session, error) {
	if err := a.loadIfAbsent(ctx); err != nil {
		return Session{}, err
	}
	if a.session == nil {
		return Session{}, apperr.New(apperr.NotFound, "session not found")
	}
	return *a.session, nil
}

func (a *actor) opGetContext(ctx context.Context) (ConversationContext, error) {
	if err := a.loadIfAbsent(ctx); err != nil {
		return ConversationContext{}, err
	}
	if a.mem == nil {
		return ConversationContext{}, apperr.New(apperr.NotFound, "session not found")
	}
	tail := a.mem.Messages
	if len(tail) > MaxContextMessages {
		tail = tail[len(tail)-MaxContextMessages:]
	}
	return ConversationContext{
		SessionID:      a.sessionID,
		Summary:        a.mem.Summary,
		Messages:       append([]ChatMessage{}, tail...),
		Topics:         topicKeys(a.mem.Topics),
		ResolvedIssues: topicKeys(a.mem.ResolvedIssues),
	}, nil
}

func (a *actor) opGenerateSummary(ctx context.Context) (string, error) {
	if err := a.loadIfAbsent(ctx); err != nil {
		return "", err
	}
	if a.mem == nil {
		return "", apperr.New(apperr.NotFound, "session not found")
	}
	summary, err := summarize(ctx, a.provider, a.model, a.mem.Summary, a.mem.Messages)
	if err != nil {
		return "", apperr.Wrap(apperr.UpstreamUnavailable, "generate summary", err)
	}
	a.mem.Summary = summary
	a.mem.LastSummaryAt = time.Now()
	a.mem.SinceLastSummary = 0
	if err := a.persist(ctx); err != nil {
		return "", err
	}
	return summary, nil
}

func archiveKey(sessionID string, ts time.Time) string {
	return fmt.Sprintf("archive/%s/%s.json", sessionID, ts.UTC().Format(time.RFC3339))
}

func archivePointerKey(sessionID string) string { return "archive_pointer:" + sessionID }

func (a *actor) opArchive(ctx context.Context) error {
	if err := a.loadIfAbsent(ctx); err != nil {
		return err
	}
	if a.session == nil || a.mem == nil {
		return apperr.New(apperr.NotFound, "session not found")
	}

	blob, err := json.Marshal(toPersistedMemory(*a.mem))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode archive blob", err)
	}
	key := archiveKey(a.sessionID, time.Now())
	if _, err := a.cold.Put(ctx, key, bytes.NewReader(blob), objectstore.PutOptions{ContentType: "application/json"}); err != nil {
		return apperr.Wrap(apperr.StorageError, "write archive blob", err)
	}

	pointer, err := json.Marshal(map[string]string{"key": key})
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode archive pointer", err)
	}
	if err := a.warm.Set(ctx, archivePointerKey(a.sessionID), pointer, 0); err != nil {
		// Compensate: the blob write succeeded but the pointer didn't, so the
		// blob is now unreachable; best-effort delete and log.
		if delErr := a.cold.Delete(ctx, key); delErr != nil {
			observability.LoggerWithTrace(ctx).Error().Err(delErr).Str("session", a.sessionID).
				Msg("memory_archive_compensation_delete_failed")
		}
		return apperr.Wrap(apperr.StorageError, "write archive pointer", err)
	}

	if err := a.hot.Delete(ctx, sessionKey(a.sessionID)); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("session", a.sessionID).Msg("memory_archive_clear_session_failed")
	}
	if err := a.hot.Delete(ctx, memoryKey(a.sessionID)); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("session", a.sessionID).Msg("memory_archive_clear_memory_failed")
	}
	a.session, a.mem = nil, nil
	return nil
}

func (a *actor) opRestore(ctx context.Context) (Session, error) {
	raw, err := a.warm.Get(ctx, archivePointerKey(a.sessionID))
	if err == ErrNotFoundInStore {
		return Session{}, apperr.New(apperr.NotFound, "archive pointer not found")
	}
	if err != nil {
		return Session{}, apperr.Wrap(apperr.StorageError, "read archive pointer", err)
	}
	var pointer struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &pointer); err != nil {
		return Session{}, apperr.Wrap(apperr.StorageError, "decode archive pointer", err)
	}

	reader, _, err := a.cold.Get(ctx, pointer.Key)
	if err == objectstore.ErrNotFound {
		return Session{}, apperr.New(apperr.StorageError, "archive blob missing for recorded pointer").
			WithDetails(map[string]any{"reason": "corrupted"})
	}
	if err != nil {
		return Session{}, apperr.Wrap(apperr.StorageError, "read archive blob", err)
	}
	defer reader.Close()

	var pm persistedMemory
	if err := json.NewDecoder(reader).Decode(&pm); err != nil {
		return Session{}, apperr.Wrap(apperr.StorageError, "decode archive blob", err).
			WithDetails(map[string]any{"reason": "corrupted"})
	}

	mem := fromPersistedMemory(pm)
	now := time.Now()
	a.session = &Session{ID: a.sessionID, Status: StatusActive, CreatedAt: now, LastActivity: now}
	a.mem = &mem
	a.mem.TTL = a.ttl()
	if err := a.persist(ctx); err != nil {
		return Session{}, err
	}
	return *a.session, nil
}

func (a *actor) opCleanup(ctx context.Context) (bool, error) {
	if err := a.loadIfAbsent(ctx); err != nil {
		return false, err
	}
	if a.session == nil {
		return false, nil
	}
	ttl := a.ttl()
	if time.Since(a.session.LastActivity) <= ttl {
		return false, nil
	}
	if err := a.opArchive(ctx); err != nil {
		return false, err
	}
	return true, nil
}
