package resolver

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"token-knowledge/internal/cache"
	"token-knowledge/internal/cmc"
	"token-knowledge/internal/store"
)

const mentionTemplate = `Assume all user messages are in the context of cryptocurrency. Your task is to identify any cryptocurrencies or crypto
tokens discussed in the user messages, including indirect references like memes, cultural events, or token nicknames.
If the user refers to a meme or cultural event, assume it could be a meme coin unless explicitly ruled out.

Here are the user messages for context:
{{recentMessages}}

Which cryptocurrencies or crypto tokens does the user discuss in the most recent message (from just now)?
If the user compares the token(s) of the most recent message to other tokens, include those tokens as well in the
response.

Respond with a JSON object {"tokens": [...]} of ticker symbols and/or project names. For well-known crypto projects,
always include the ticker symbol. If the message is not related to any specific token, the "tokens" array should be
empty.

A token ticker is three to five alphanumeric characters, typically in all-caps or prefixed with a dollar sign (eg ETH,
$ETH or $eth). A project name generally is not in all-caps (eg Ethereum or ethereum).`

const symbolTemplate = `What is the ticker symbol of {{token}}?

It could be one of these:
{{knowledge}}

Respond with a JSON object of the ticker symbol and project name: {"symbol": ..., "name": ...}.

If there multiple possibilities which are equally possible, pick the one with the highest rank.
If it unlikely to be one of the mentioned projects, respond with null.`

// Mention is a raw, possibly incomplete token reference extracted from free
// text. Either field may be empty, never both once extraction succeeds.
type Mention struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Title renders the mention for user-facing messages.
func (m Mention) Title() string {
	if m.Name != "" && m.Symbol != "" {
		return fmt.Sprintf("%s (%s)", m.Name, m.Symbol)
	}
	if m.Name != "" {
		return m.Name
	}
	return m.Symbol
}

type mentionWire struct {
	Symbol *string `json:"symbol"`
	Name   *string `json:"name"`
}

type objectGenerator interface {
	GenerateJSON(ctx context.Context, system, user string, out any) error
}

// FactSearcher finds known-token facts nearest to an embedding.
type FactSearcher interface {
	SearchFacts(ctx context.Context, embedding []float64, count int) ([]store.Fact, error)
}

// Resolver turns free-text token mentions into canonical symbols, consulting
// the name lookup cache before falling back to embedding search plus LLM
// disambiguation over the known-token facts.
type Resolver struct {
	cache    cache.Store
	facts    FactSearcher
	embedder embedding.Embedder
	gen      objectGenerator
}

func New(cacheStore cache.Store, facts FactSearcher, embedder embedding.Embedder, gen objectGenerator) *Resolver {
	return &Resolver{cache: cacheStore, facts: facts, embedder: embedder, gen: gen}
}

// Mentions extracts the token mentions discussed in the given conversation
// excerpt.
func (r *Resolver) Mentions(ctx context.Context, recentMessages string) ([]Mention, error) {
	prompt := strings.Replace(mentionTemplate, "{{recentMessages}}", recentMessages, 1)

	var result struct {
		Tokens []mentionWire `json:"tokens"`
	}
	if err := r.gen.GenerateJSON(ctx, "", prompt, &result); err != nil {
		return nil, fmt.Errorf("extract token mentions: %w", err)
	}

	out := make([]Mention, 0, len(result.Tokens))
	for _, token := range result.Tokens {
		mention := Mention{Symbol: deref(token.Symbol), Name: deref(token.Name)}
		mention.Symbol = strings.ToUpper(strings.TrimSpace(mention.Symbol))
		mention.Name = strings.TrimSpace(mention.Name)
		if mention.Symbol == "" && mention.Name == "" {
			continue
		}
		out = append(out, mention)
	}
	return out, nil
}

// Resolve fills in symbols for mentions that lack one, where possible.
// Mentions that already carry a symbol pass through unmodified; mentions the
// disambiguation cannot place survive as identity-only.
func (r *Resolver) Resolve(ctx context.Context, mentions []Mention) ([]Mention, error) {
	out := make([]Mention, 0, len(mentions))
	for _, mention := range mentions {
		if mention.Symbol != "" || mention.Name == "" {
			out = append(out, mention)
			continue
		}
		resolved, err := r.lookupSymbol(ctx, mention.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", mention.Name, err)
		}
		out = append(out, resolved)
	}
	return out, nil
}

func (r *Resolver) lookupSymbol(ctx context.Context, name string) (Mention, error) {
	cached, err := cache.GetJSON[cmc.BasicInfo](ctx, r.cache, "token-by-name:"+strings.ToLower(name))
	if err != nil {
		return Mention{}, err
	}
	if cached != nil {
		return Mention{Symbol: cached.Symbol, Name: cached.Name}, nil
	}

	log.Printf("figuring out token symbol for %s", name)

	vectors, err := r.embedder.EmbedStrings(ctx, []string{fmt.Sprintf("is %s known on coinmarketcap?", strings.ToLower(name))})
	if err != nil {
		return Mention{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return Mention{}, fmt.Errorf("embed query: empty result")
	}

	facts, err := r.facts.SearchFacts(ctx, vectors[0], 5)
	if err != nil {
		return Mention{}, fmt.Errorf("search facts: %w", err)
	}

	lines := make([]string, len(facts))
	for i, fact := range facts {
		lines[i] = " - " + fact.Body
	}
	prompt := strings.Replace(symbolTemplate, "{{token}}", name, 1)
	prompt = strings.Replace(prompt, "{{knowledge}}", strings.Join(lines, "\n"), 1)

	var result mentionWire
	if err := r.gen.GenerateJSON(ctx, "", prompt, &result); err != nil {
		return Mention{}, err
	}
	if deref(result.Symbol) == "" {
		return Mention{Name: name}, nil
	}

	resolvedName := deref(result.Name)
	if resolvedName == "" {
		resolvedName = name
	}
	return Mention{Symbol: strings.ToUpper(deref(result.Symbol)), Name: resolvedName}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
