package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"webrag/crawler"
	"webrag/index"
	"webrag/pkg/chunking"
	"webrag/pkg/embedding/embeddingtest"
	"webrag/retriever"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var acmeDocs = []crawler.Document{
	{SourceURL: "https://acme.test/", Depth: 0, Content: "Acme builds rocket powered roller skates for coyotes. Our workshop is in the desert."},
	{SourceURL: "https://acme.test/pricing", Depth: 1, Content: "The premium plan costs twenty dollars per month. The basic plan is free forever."},
	{SourceURL: "https://acme.test/contact", Depth: 1, Content: "Email support at help@acme.test. The office is open Monday to Friday."},
}

type staticCrawler struct {
	docs []crawler.Document
	err  error
}

func (c staticCrawler) Crawl(context.Context, string) ([]crawler.Document, error) {
	return c.docs, c.err
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
	seen  []string
}

func (g *fakeGenerator) Generate(_ context.Context, question, passages string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.seen = append(g.seen, passages)
	if g.err != nil {
		return "", g.err
	}
	return "answer to " + question, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type testEnv struct {
	root      string
	generator *fakeGenerator
	deps      Deps
}

func newEnv(t *testing.T, c Crawler) *testEnv {
	t.Helper()
	provider, _ := embeddingtest.NewProvider(1024)

	splitter, err := chunking.NewRecursiveCharacterChunker(chunking.Config{Size: 60, Overlap: 10})
	require.NoError(t, err)
	ret, err := retriever.NewRetriever(provider, retriever.Config{Policy: retriever.PolicySimilarity, K: 2, FetchK: 4})
	require.NoError(t, err)

	gen := &fakeGenerator{}
	return &testEnv{
		root:      filepath.Join(t.TempDir(), "data"),
		generator: gen,
		deps: Deps{
			Crawler:   c,
			Splitter:  splitter,
			Indexer:   index.NewIndexer(provider, index.FlatBackend{}, zap.NewNop()),
			Loader:    index.FlatBackend{},
			Retriever: ret,
			Generator: gen,
		},
	}
}

func (e *testEnv) manager(cacheSize int) *Manager {
	return NewManager(Config{Root: e.root, CacheSize: cacheSize}, e.deps, zap.NewNop())
}

func readMeta(t *testing.T, root, id string) Meta {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, id, MetaFileName))
	require.NoError(t, err)
	var meta Meta
	require.NoError(t, json.Unmarshal(data, &meta))
	return meta
}

func TestCreate_PersistsAndRegisters(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	m := env.manager(0)

	res, err := m.Create(context.Background(), " https://acme.test/ ")
	require.NoError(t, err)

	assert.True(t, validID(res.SessionID))
	assert.Equal(t, 3, res.PagesCrawled)
	assert.Greater(t, res.ChunksCreated, 3)

	assert.FileExists(t, filepath.Join(env.root, res.SessionID, index.FlatFileName))
	meta := readMeta(t, env.root, res.SessionID)
	assert.Equal(t, "https://acme.test/", meta.URL)
	assert.NotNil(t, meta.History)
	assert.Empty(t, meta.History)

	assert.Equal(t, []Summary{{ID: res.SessionID, URL: "https://acme.test/", Turns: 0}}, m.List())
	assert.Equal(t, 1, m.CachedIndexes())
}

func TestCreate_SameInputSameChunkCount(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	m := env.manager(0)

	first, err := m.Create(context.Background(), "https://acme.test/")
	require.NoError(t, err)
	second, err := m.Create(context.Background(), "https://acme.test/")
	require.NoError(t, err)

	assert.Equal(t, first.ChunksCreated, second.ChunksCreated)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestAsk_TwoQuestionsGiveFourTurnsInOrder(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	m := env.manager(0)
	ctx := context.Background()

	res, err := m.Create(ctx, "https://acme.test/")
	require.NoError(t, err)

	first, err := m.Ask(ctx, res.SessionID, "  How much is the premium plan?  ")
	require.NoError(t, err)
	assert.Equal(t, "answer to How much is the premium plan?", first.Answer)
	assert.Len(t, first.History, 2)

	second, err := m.Ask(ctx, res.SessionID, "When is the office open?")
	require.NoError(t, err)

	want := []Turn{
		{Role: RoleUser, Content: "How much is the premium plan?"},
		{Role: RoleAssistant, Content: "answer to How much is the premium plan?"},
		{Role: RoleUser, Content: "When is the office open?"},
		{Role: RoleAssistant, Content: "answer to When is the office open?"},
	}
	assert.Equal(t, want, second.History)

	history, err := m.History(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, want, history)
	assert.Equal(t, want, readMeta(t, env.root, res.SessionID).History)

	assert.Contains(t, env.generator.seen[0], "premium plan costs twenty dollars")
}

func TestAsk_UnknownSessionMutatesNothing(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	m := env.manager(0)
	ctx := context.Background()

	res, err := m.Create(ctx, "https://acme.test/")
	require.NoError(t, err)
	_, err = m.Ask(ctx, res.SessionID, "hello")
	require.NoError(t, err)
	before := readMeta(t, env.root, res.SessionID)

	for _, id := range []string{uuid.NewString(), "not-a-session", "../" + res.SessionID, ""} {
		_, err := m.Ask(ctx, id, "What is Acme?")
		assert.ErrorIs(t, err, ErrSessionNotFound, "id %q", id)

		_, err = m.History(id)
		assert.ErrorIs(t, err, ErrSessionNotFound, "id %q", id)
	}

	assert.Equal(t, 1, env.generator.callCount())
	assert.Len(t, m.List(), 1)
	assert.Equal(t, before, readMeta(t, env.root, res.SessionID))
}

func TestAsk_EmptyQuestionRejectedFirst(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	m := env.manager(0)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := m.Ask(context.Background(), uuid.NewString(), q)
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	}
	assert.Zero(t, env.generator.callCount())
}

func TestAsk_GenerationFailureIsRecorded(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	env.generator.err = errors.New("rate limit exceeded")
	m := env.manager(0)
	ctx := context.Background()

	res, err := m.Create(ctx, "https://acme.test/")
	require.NoError(t, err)

	got, err := m.Ask(ctx, res.SessionID, "What is Acme?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.Answer, LLMErrorPrefix))
	assert.Contains(t, got.Answer, "rate limit exceeded")
	assert.Equal(t, got.Answer, readMeta(t, env.root, res.SessionID).History[1].Content)
}

func TestCreate_TimeoutMeansNoContentAndNoSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c, err := crawler.NewCrawler(&crawler.CrawlerConfig{MaxDepth: 1, MaxPages: 10, RequestTimeout: 100 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	env := newEnv(t, c)
	m := env.manager(0)

	_, err = m.Create(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNoContent)
	assert.Empty(t, m.List())

	_, err = os.Stat(env.root)
	assert.True(t, os.IsNotExist(err), "nothing may be written for a failed creation")
}

func TestCreate_InvalidURL(t *testing.T) {
	c, err := crawler.NewCrawler(crawler.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	m := newEnv(t, c).manager(0)

	_, err = m.Create(context.Background(), "ftp://acme.test")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestCreate_BlankPagesFailIndexBuild(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: []crawler.Document{{SourceURL: "https://acme.test/", Content: ""}}})
	m := env.manager(0)

	_, err := m.Create(context.Background(), "https://acme.test/")
	assert.ErrorIs(t, err, index.ErrEmptyInput)
	assert.Empty(t, m.List())
}

type brokenIndex struct {
	index.Index
	discarded bool
}

func (b *brokenIndex) Save(context.Context, string) error { return errors.New("disk full") }

func (b *brokenIndex) Discard(context.Context) error {
	b.discarded = true
	return nil
}

type brokenBuilder struct{ idx *brokenIndex }

func (b brokenBuilder) Build(context.Context, []chunking.Chunk) (index.Index, int, error) {
	return b.idx, 1, nil
}

func TestCreate_PersistFailureLeavesNothing(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	broken := &brokenIndex{}
	env.deps.Indexer = brokenBuilder{idx: broken}
	m := env.manager(0)

	_, err := m.Create(context.Background(), "https://acme.test/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, broken.discarded)
	assert.Empty(t, m.List())

	entries, err := os.ReadDir(env.root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestore_LoadsMetadataOnly(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	ctx := context.Background()

	first := env.manager(0)
	res, err := first.Create(ctx, "https://acme.test/")
	require.NoError(t, err)
	_, err = first.Ask(ctx, res.SessionID, "What is Acme?")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(env.root, index.TempPrefix+"crashed"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.root, uuid.NewString()), 0o755)) // no meta.json

	second := env.manager(0)
	n, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, second.CachedIndexes(), "restore must not load indexes")
	assert.NoDirExists(t, filepath.Join(env.root, index.TempPrefix+"crashed"))

	got, err := second.Ask(ctx, res.SessionID, "Who is the office for?")
	require.NoError(t, err)
	assert.Len(t, got.History, 4)
	assert.Equal(t, 1, second.CachedIndexes())

	n, err = second.Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sessions in memory are not overwritten")
	history, err := second.History(res.SessionID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestAsk_RecoversFromDiskWithoutRestore(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	ctx := context.Background()

	res, err := env.manager(0).Create(ctx, "https://acme.test/")
	require.NoError(t, err)

	fresh := env.manager(0)
	assert.Empty(t, fresh.List())

	got, err := fresh.Ask(ctx, res.SessionID, "What does the premium plan cost?")
	require.NoError(t, err)
	assert.Len(t, got.History, 2)
	assert.Len(t, fresh.List(), 1)
}

func TestAsk_MissingIndexIsNotFound(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	ctx := context.Background()

	res, err := env.manager(0).Create(ctx, "https://acme.test/")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(env.root, res.SessionID, index.FlatFileName)))

	fresh := env.manager(0)
	_, err = fresh.Ask(ctx, res.SessionID, "What is Acme?")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, fresh.List())
	assert.Empty(t, readMeta(t, env.root, res.SessionID).History)
}

func TestAsk_CorruptIndexIsNotFound(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	ctx := context.Background()

	res, err := env.manager(0).Create(ctx, "https://acme.test/")
	require.NoError(t, err)
	path := filepath.Join(env.root, res.SessionID, index.FlatFileName)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("garbage", 2000)), 0o600))

	_, err = env.manager(0).Ask(ctx, res.SessionID, "What is Acme?")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestIndexCache_EvictsOldestLoaded(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	m := env.manager(1)
	ctx := context.Background()

	a, err := m.Create(ctx, "https://acme.test/a")
	require.NoError(t, err)
	b, err := m.Create(ctx, "https://acme.test/b")
	require.NoError(t, err)
	assert.Equal(t, 1, m.CachedIndexes())

	// a was evicted and is reloaded from disk transparently
	_, err = m.Ask(ctx, a.SessionID, "What is Acme?")
	require.NoError(t, err)
	_, err = m.Ask(ctx, b.SessionID, "What is Acme?")
	require.NoError(t, err)
	assert.Equal(t, 1, m.CachedIndexes())
}

func TestEvict(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	m := env.manager(0)
	ctx := context.Background()

	res, err := m.Create(ctx, "https://acme.test/")
	require.NoError(t, err)
	_, err = m.Ask(ctx, res.SessionID, "What is Acme?")
	require.NoError(t, err)

	assert.True(t, m.Evict(res.SessionID))
	assert.False(t, m.Evict(res.SessionID))
	assert.Empty(t, m.List())
	assert.Zero(t, m.CachedIndexes())

	got, err := m.Ask(ctx, res.SessionID, "And the pricing?")
	require.NoError(t, err)
	assert.Len(t, got.History, 4)
}

func TestAsk_ConcurrentAppendsAreNotLost(t *testing.T) {
	env := newEnv(t, staticCrawler{docs: acmeDocs})
	m := env.manager(0)
	ctx := context.Background()

	res, err := m.Create(ctx, "https://acme.test/")
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Ask(ctx, res.SessionID, fmt.Sprintf("question %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := m.History(res.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 2*n)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, RoleUser, history[i].Role)
		assert.Equal(t, RoleAssistant, history[i+1].Role)
		assert.Equal(t, "answer to "+history[i].Content, history[i+1].Content)
	}
	assert.Equal(t, history, readMeta(t, env.root, res.SessionID).History)
}
