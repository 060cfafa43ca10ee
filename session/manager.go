package session

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"webrag/crawler"
	"webrag/index"
	"webrag/metrics"
	"webrag/pkg/chunking"
	"webrag/pkg/llm"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Crawler interface {
	Crawl(ctx context.Context, seedURL string) ([]crawler.Document, error)
}

type Splitter interface {
	SplitCapped(docs []crawler.Document) ([]chunking.Chunk, bool)
}

type IndexBuilder interface {
	Build(ctx context.Context, chunks []chunking.Chunk) (index.Index, int, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, idx index.Index, question string) ([]chunking.Chunk, error)
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Crawler   Crawler
	Splitter  Splitter
	Indexer   IndexBuilder
	Loader    index.Backend
	Retriever Retriever
	Generator llm.Generator
}

type Config struct {
	Root      string
	CacheSize int // loaded indexes kept in memory, 0 = unlimited
}

// Manager owns the session registry and the cache of loaded indexes.
// mu guards sessions, indexes, loadOrder and every entry's history; it is
// never held across crawling, embedding, search, generation or disk I/O.
type Manager struct {
	deps   Deps
	store  *Store
	config Config
	logger *zap.Logger

	mu        sync.Mutex
	sessions  map[string]*entry
	indexes   map[string]index.Index
	loadOrder []string
}

func NewManager(config Config, deps Deps, logger *zap.Logger) *Manager {
	return &Manager{
		deps:     deps,
		store:    NewStore(config.Root),
		config:   config,
		logger:   logger,
		sessions: make(map[string]*entry),
		indexes:  make(map[string]index.Index),
	}
}

func (m *Manager) Store() *Store { return m.store }

// Create crawls url, indexes the pages and registers a new session. The
// session becomes visible only after its directory is fully written.
func (m *Manager) Create(ctx context.Context, url string) (CreateResult, error) {
	url = strings.TrimSpace(url)
	logger := m.logger.With(zap.String("url", url))
	start := time.Now()

	docs, err := m.deps.Crawler.Crawl(ctx, url)
	if err != nil {
		return CreateResult{}, err
	}
	if len(docs) == 0 {
		logger.Info("crawl returned no documents")
		return CreateResult{}, ErrNoContent
	}

	chunks, capped := m.deps.Splitter.SplitCapped(docs)
	if capped {
		logger.Warn("chunk limit reached, remaining content dropped", zap.Int("chunks", len(chunks)))
	}

	idx, count, err := m.deps.Indexer.Build(ctx, chunks)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to build index: %w", err)
	}

	id := uuid.NewString()
	if err := m.persistNew(ctx, id, url, idx); err != nil {
		if derr := index.Discard(context.WithoutCancel(ctx), idx); derr != nil {
			logger.Warn("failed to discard index", zap.Error(derr))
		}
		return CreateResult{}, err
	}

	m.mu.Lock()
	m.sessions[id] = &entry{id: id, url: url}
	m.cacheIndexLocked(id, idx)
	active := len(m.sessions)
	m.mu.Unlock()
	metrics.SessionsActive.Set(float64(active))

	logger.Info("session created",
		zap.String("session_id", id),
		zap.Int("pages", len(docs)),
		zap.Int("chunks", count),
		zap.Duration("elapsed", time.Since(start)))

	return CreateResult{SessionID: id, PagesCrawled: len(docs), ChunksCreated: count}, nil
}

func (m *Manager) persistNew(ctx context.Context, id, url string, idx index.Index) error {
	if err := m.store.Init(); err != nil {
		return err
	}
	tmp := m.store.TempDir(id)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	err := idx.Save(ctx, tmp)
	if err == nil {
		err = m.store.WriteMeta(tmp, Meta{URL: url})
	}
	if err == nil {
		err = m.store.Promote(tmp, id)
	}
	if err != nil {
		if rerr := os.RemoveAll(tmp); rerr != nil {
			m.logger.Warn("failed to remove temp session directory", zap.String("dir", tmp), zap.Error(rerr))
		}
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Ask answers question from the session's index and appends the exchange
// to its history. A failed generation is recorded as a visible error answer.
func (m *Manager) Ask(ctx context.Context, id, question string) (AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AskResult{}, ErrEmptyQuestion
	}

	e, fromDisk, err := m.lookup(id)
	if err != nil {
		return AskResult{}, err
	}
	idx, err := m.indexFor(ctx, id)
	if err != nil {
		return AskResult{}, err
	}
	if fromDisk {
		e = m.register(e)
	}

	logger := m.logger.With(zap.String("session_id", id))
	chunks, err := m.deps.Retriever.Retrieve(ctx, idx, question)
	if err != nil {
		return AskResult{}, fmt.Errorf("failed to retrieve context: %w", err)
	}

	answer, err := m.deps.Generator.Generate(ctx, question, llm.BuildContext(chunks))
	if err != nil {
		logger.Warn("answer generation failed", zap.Error(err))
		answer = LLMErrorPrefix + err.Error()
	}

	m.mu.Lock()
	e.history = append(e.history,
		Turn{Role: RoleUser, Content: question},
		Turn{Role: RoleAssistant, Content: answer})
	e.version++
	version := e.version
	history := e.snapshot()
	url := e.url
	m.mu.Unlock()

	if err := m.persistHistory(e, version, Meta{URL: url, History: history}); err != nil {
		logger.Error("failed to persist history", zap.Error(err))
	}

	logger.Debug("question answered",
		zap.Int("chunks", len(chunks)),
		zap.Int("turns", len(history)))
	return AskResult{Answer: answer, History: history}, nil
}

// persistHistory writes meta, unless a newer snapshot of the same session
// has already been written.
func (m *Manager) persistHistory(e *entry, version uint64, meta Meta) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if version <= e.written {
		return nil
	}
	if err := m.store.WriteMeta(m.store.Dir(e.id), meta); err != nil {
		return err
	}
	e.written = version
	return nil
}

// History returns a copy of the session's turns.
func (m *Manager) History(id string) ([]Turn, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.History, nil
}

// Get returns a snapshot of a registered or persisted session.
func (m *Manager) Get(id string) (Session, error) {
	e, fromDisk, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	if fromDisk {
		e = m.register(e)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return Session{ID: e.id, URL: e.url, History: e.snapshot()}, nil
}

// List summarizes the registered sessions ordered by id.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Summary, 0, len(m.sessions))
	for id, e := range m.sessions {
		out = append(out, Summary{ID: id, URL: e.url, Turns: len(e.history)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Evict drops the session and its index from memory. Persisted files are
// kept, so the session is recovered from disk on its next use.
func (m *Manager) Evict(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	delete(m.indexes, id)
	m.forgetLoadLocked(id)
	active := len(m.sessions)
	m.mu.Unlock()

	metrics.SessionsActive.Set(float64(active))
	return ok
}

// Restore registers every persisted session's metadata without loading
// any index. Sessions already in memory are left alone.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if removed, err := m.store.RemoveTemp(); err != nil {
		m.logger.Warn("failed to clean temp session directories", zap.Error(err))
	} else if removed > 0 {
		m.logger.Info("removed incomplete session directories", zap.Int("count", removed))
	}

	ids, err := index.ListPersisted(m.store.Root())
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		if !validID(id) {
			continue
		}
		meta, ok, err := m.store.ReadMeta(id)
		if err != nil {
			m.logger.Warn("skipping unreadable session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		m.mu.Lock()
		if _, exists := m.sessions[id]; !exists {
			m.sessions[id] = &entry{id: id, url: meta.URL, history: meta.History}
			restored++
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	active := len(m.sessions)
	m.mu.Unlock()
	metrics.SessionsActive.Set(float64(active))

	m.logger.Info("sessions restored", zap.Int("restored", restored), zap.Int("active", active))
	return restored, nil
}

// lookup finds a session in memory or, failing that, reads its metadata
// from disk without registering it.
func (m *Manager) lookup(id string) (*entry, bool, error) {
	if !validID(id) {
		return nil, false, ErrSessionNotFound
	}

	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return e, false, nil
	}

	meta, ok, err := m.store.ReadMeta(id)
	if err != nil {
		m.logger.Warn("session metadata unreadable", zap.String("session_id", id), zap.Error(err))
		return nil, false, ErrSessionNotFound
	}
	if !ok {
		return nil, false, ErrSessionNotFound
	}
	return &entry{id: id, url: meta.URL, history: meta.History}, true, nil
}

// register adds e unless another caller registered the same id first, in
// which case that entry wins.
func (m *Manager) register(e *entry) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[e.id]; ok {
		return existing
	}
	m.sessions[e.id] = e
	metrics.SessionsActive.Set(float64(len(m.sessions)))
	return e
}

func (m *Manager) indexFor(ctx context.Context, id string) (index.Index, error) {
	m.mu.Lock()
	idx, ok := m.indexes[id]
	m.mu.Unlock()
	if ok {
		metrics.IndexCacheTotal.WithLabelValues("hit").Inc()
		return idx, nil
	}
	metrics.IndexCacheTotal.WithLabelValues("miss").Inc()

	loaded, ok, err := m.deps.Loader.Load(ctx, m.store.Dir(id))
	if err != nil {
		m.logger.Warn("index load failed", zap.String("session_id", id), zap.Error(err))
		return nil, ErrSessionNotFound
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.indexes[id]; ok {
		return existing, nil
	}
	m.cacheIndexLocked(id, loaded)
	return loaded, nil
}

// cacheIndexLocked stores idx and evicts the oldest loaded indexes beyond
// the cache size. Callers hold mu.
func (m *Manager) cacheIndexLocked(id string, idx index.Index) {
	m.indexes[id] = idx
	m.forgetLoadLocked(id)
	m.loadOrder = append(m.loadOrder, id)

	if m.config.CacheSize <= 0 {
		return
	}
	for len(m.indexes) > m.config.CacheSize && len(m.loadOrder) > 0 {
		oldest := m.loadOrder[0]
		m.loadOrder = m.loadOrder[1:]
		delete(m.indexes, oldest)
	}
}

func (m *Manager) forgetLoadLocked(id string) {
	for i, v := range m.loadOrder {
		if v == id {
			m.loadOrder = append(m.loadOrder[:i], m.loadOrder[i+1:]...)
			return
		}
	}
}

// CachedIndexes returns the number of indexes held in memory.
func (m *Manager) CachedIndexes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.indexes)
}

// validID accepts canonical uuids only, which also keeps ids from
// escaping the storage root.
func validID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}
