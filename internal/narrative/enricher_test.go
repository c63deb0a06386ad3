package narrative

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bitcoinPage = `<html><body>
<div id="section-coin-about">
	<section>
		<h3>What Is Bitcoin?</h3>
		<p>Bitcoin is a decentralized cryptocurrency.</p>
		<p>It was launched in January 2009.</p>
	</section>
	<section>
		<h3>Who Are the Founders?</h3>
		<p>It was created by Satoshi Nakamoto.</p>
	</section>
	<section></section>
</div>
<div id="unrelated"><section><p>ignore me</p></section></div>
</body></html>`

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

type fakeGenerator struct {
	inputs []string
	reply  string
	err    error
}

func (g *fakeGenerator) Generate(_ context.Context, _, user string) (string, error) {
	g.inputs = append(g.inputs, user)
	return g.reply, g.err
}

func TestAboutFetchesSummarizesAndCaches(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/currencies/bitcoin", r.URL.Path)
		w.Write([]byte(bitcoinPage))
	}))
	t.Cleanup(srv.Close)

	gen := &fakeGenerator{reply: "Bitcoin is the original decentralized cryptocurrency."}
	e := New(Config{PageURL: srv.URL}, newMemStore(), gen)

	source := Source{ID: 1, Symbol: "BTC", Slug: "bitcoin"}
	abouts, err := e.About(context.Background(), []Source{source})
	require.NoError(t, err)

	require.Len(t, abouts, 1)
	assert.Equal(t, About{ID: 1, Symbol: "BTC", Slug: "bitcoin",
		Content: "Bitcoin is the original decentralized cryptocurrency."}, abouts[0])

	// The summarizer input carries the flattened titled sections, only from
	// the about container.
	require.Len(t, gen.inputs, 1)
	assert.Contains(t, gen.inputs[0], "## What Is Bitcoin?")
	assert.Contains(t, gen.inputs[0], "Bitcoin is a decentralized cryptocurrency.")
	assert.Contains(t, gen.inputs[0], "It was launched in January 2009.")
	assert.Contains(t, gen.inputs[0], "## Who Are the Founders?")
	assert.NotContains(t, gen.inputs[0], "ignore me")

	// Second lookup answers from the cache.
	abouts, err = e.About(context.Background(), []Source{source})
	require.NoError(t, err)
	require.Len(t, abouts, 1)
	assert.Equal(t, 1, requests)
	assert.Len(t, gen.inputs, 1)
}

func TestAboutDedupesSymbols(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(bitcoinPage))
	}))
	t.Cleanup(srv.Close)

	e := New(Config{PageURL: srv.URL}, newMemStore(), &fakeGenerator{reply: "summary"})

	abouts, err := e.About(context.Background(), []Source{
		{ID: 1, Symbol: "BTC", Slug: "bitcoin"},
		{ID: 1, Symbol: "BTC", Slug: "bitcoin"},
	})
	require.NoError(t, err)

	assert.Len(t, abouts, 1)
	assert.Equal(t, 1, requests)
}

func TestAboutPageErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	e := New(Config{PageURL: srv.URL}, newMemStore(), &fakeGenerator{})

	_, err := e.About(context.Background(), []Source{{ID: 9999, Symbol: "XXX", Slug: "missing"}})
	assert.Error(t, err)
}
