package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-knowledge/internal/cache"
	"token-knowledge/internal/cmc"
	"token-knowledge/internal/store"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, ok := s.data[key]
	return raw, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.data[key] = value
	return nil
}

type fakeEmbedder struct {
	calls  int
	vector []float64
	err    error
}

func (e *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

type fakeFacts struct {
	facts []store.Fact
}

func (f *fakeFacts) SearchFacts(_ context.Context, _ []float64, count int) ([]store.Fact, error) {
	if count > 0 && len(f.facts) > count {
		return f.facts[:count], nil
	}
	return f.facts, nil
}

type fakeGenerator struct {
	responses []string
	prompts   []string
	err       error
}

func (g *fakeGenerator) GenerateJSON(_ context.Context, _, user string, out any) error {
	if g.err != nil {
		return g.err
	}
	g.prompts = append(g.prompts, user)
	if len(g.responses) == 0 {
		return errors.New("no canned response")
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return json.Unmarshal([]byte(resp), out)
}

func TestMentionsNormalizesAndDropsEmpty(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"tokens": [
			{"symbol": "btc", "name": "Bitcoin"},
			{"symbol": null, "name": "mog"},
			{"symbol": null, "name": null}
		]}`,
	}}
	r := New(newMemStore(), &fakeFacts{}, &fakeEmbedder{}, gen)

	mentions, err := r.Mentions(context.Background(), "compare bitcoin to mog")
	require.NoError(t, err)

	assert.Equal(t, []Mention{
		{Symbol: "BTC", Name: "Bitcoin"},
		{Name: "mog"},
	}, mentions)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "compare bitcoin to mog")
}

func TestMentionsGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("llm unavailable")}
	r := New(newMemStore(), &fakeFacts{}, &fakeEmbedder{}, gen)

	_, err := r.Mentions(context.Background(), "anything")
	assert.Error(t, err)
}

func TestResolveSymboledMentionPassesThrough(t *testing.T) {
	embedder := &fakeEmbedder{}
	gen := &fakeGenerator{}
	r := New(newMemStore(), &fakeFacts{}, embedder, gen)

	mentions, err := r.Resolve(context.Background(), []Mention{{Symbol: "ETH", Name: "Ethereum"}})
	require.NoError(t, err)

	assert.Equal(t, []Mention{{Symbol: "ETH", Name: "Ethereum"}}, mentions)
	assert.Equal(t, 0, embedder.calls, "no disambiguation when the symbol is present")
	assert.Empty(t, gen.prompts)
}

func TestResolveNameHitInLookupCache(t *testing.T) {
	cacheStore := newMemStore()
	require.NoError(t, cache.SetJSON(context.Background(), cacheStore, "token-by-name:dogecoin",
		cmc.BasicInfo{ID: 74, Rank: 9, Name: "Dogecoin", Symbol: "DOGE", Slug: "dogecoin"}, 0))

	embedder := &fakeEmbedder{}
	r := New(cacheStore, &fakeFacts{}, embedder, &fakeGenerator{})

	mentions, err := r.Resolve(context.Background(), []Mention{{Name: "Dogecoin"}})
	require.NoError(t, err)

	assert.Equal(t, []Mention{{Symbol: "DOGE", Name: "Dogecoin"}}, mentions)
	assert.Equal(t, 0, embedder.calls, "cache hit skips embedding search")
}

func TestResolveFallsBackToKnowledgeSearch(t *testing.T) {
	facts := &fakeFacts{facts: []store.Fact{
		{ID: "a", Body: "Mog Coin with symbol MOG has rank 180 on CoinMarketCap"},
		{ID: "b", Body: "Bitcoin with symbol BTC has rank 1 on CoinMarketCap"},
	}}
	gen := &fakeGenerator{responses: []string{`{"symbol": "MOG", "name": "Mog Coin"}`}}
	embedder := &fakeEmbedder{vector: []float64{1, 0}}
	r := New(newMemStore(), facts, embedder, gen)

	mentions, err := r.Resolve(context.Background(), []Mention{{Name: "mog"}})
	require.NoError(t, err)

	assert.Equal(t, []Mention{{Symbol: "MOG", Name: "Mog Coin"}}, mentions)
	assert.Equal(t, 1, embedder.calls)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "ticker symbol of mog")
	assert.Contains(t, gen.prompts[0], " - Mog Coin with symbol MOG has rank 180 on CoinMarketCap")
}

func TestResolveUnplaceableMentionSurvives(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"symbol": null, "name": null}`}}
	r := New(newMemStore(), &fakeFacts{}, &fakeEmbedder{vector: []float64{1}}, gen)

	mentions, err := r.Resolve(context.Background(), []Mention{{Name: "Obscure Project"}})
	require.NoError(t, err)

	assert.Equal(t, []Mention{{Name: "Obscure Project"}}, mentions)
}

func TestResolveEmbedderFailurePropagates(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embedding api down")}
	r := New(newMemStore(), &fakeFacts{}, embedder, &fakeGenerator{})

	_, err := r.Resolve(context.Background(), []Mention{{Name: "mog"}})
	assert.Error(t, err)
}

func TestMentionTitle(t *testing.T) {
	assert.Equal(t, "Bitcoin (BTC)", Mention{Symbol: "BTC", Name: "Bitcoin"}.Title())
	assert.Equal(t, "Bitcoin", Mention{Name: "Bitcoin"}.Title())
	assert.Equal(t, "BTC", Mention{Symbol: "BTC"}.Title())
}
