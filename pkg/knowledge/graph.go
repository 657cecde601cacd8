// Package knowledge provides the term normalization collaborator: a
// read-only knowledge graph of synonyms and related terms used to expand a
// resolved intent into scoring keywords and to recognize synonymous titles.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Expander turns a resolved intent into direct keywords and semantically
// related neighbour terms. Both lists are lower-case.
type Expander interface {
	Expand(intent string) (keywords, neighbors []string)
}

// SynonymChecker reports whether two terms are registered synonyms.
type SynonymChecker interface {
	AreSynonyms(a, b string) bool
}

const (
	// DefaultNeighborLimit is how many related terms each keyword contributes.
	DefaultNeighborLimit = 3
	// fuzzyCutoff is the minimum similarity for a typo to resolve to a known term.
	fuzzyCutoff = 0.8

	hintsHeader = "\n[SEMANTIC HINTS FROM KNOWLEDGE GRAPH]\n"
)

// DefaultStopwords are dropped from intents before scoring.
var DefaultStopwords = []string{
	"are", "there", "any", "jobs", "available", "at", "in", "for",
	"opening", "role", "position", "work", "vacancy", "hiring", "job",
}

var wordPattern = regexp.MustCompile(`\w+`)

// Ontology is the on-disk knowledge graph format.
type Ontology struct {
	Synonyms       map[string]string   `json:"synonyms"`
	GraphNeighbors map[string][]string `json:"graph_neighbors"`
}

// Graph is an immutable, in-memory knowledge graph. It is safe for
// concurrent use.
type Graph struct {
	// display maps a lower-cased term to its spelling in the ontology.
	display   map[string]string
	synonyms  map[string]string
	neighbors map[string][]string
	terms     []string

	neighborLimit int
	stopwords     map[string]struct{}
}

// Option configures a Graph.
type Option func(*Graph)

// WithNeighborLimit sets how many neighbours each keyword contributes.
func WithNeighborLimit(n int) Option {
	return func(g *Graph) {
		if n >= 0 {
			g.neighborLimit = n
		}
	}
}

// WithStopwords replaces the default stopword list.
func WithStopwords(words []string) Option {
	return func(g *Graph) {
		g.stopwords = toSet(words)
	}
}

// Load reads an ontology JSON file.
func Load(path string, opts ...Option) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ontology: %w", err)
	}
	return Parse(data, opts...)
}

// Parse decodes ontology JSON.
func Parse(data []byte, opts ...Option) (*Graph, error) {
	var o Ontology
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode ontology: %w", err)
	}
	return New(o, opts...), nil
}

// Empty returns a graph with no terms. Expand still tokenizes intents.
func Empty(opts ...Option) *Graph {
	return New(Ontology{}, opts...)
}

// New builds a graph from an ontology. Term lookups are case-insensitive.
func New(o Ontology, opts ...Option) *Graph {
	g := &Graph{
		display:       make(map[string]string),
		synonyms:      make(map[string]string, len(o.Synonyms)),
		neighbors:     make(map[string][]string, len(o.GraphNeighbors)),
		neighborLimit: DefaultNeighborLimit,
		stopwords:     toSet(DefaultStopwords),
	}
	for _, opt := range opts {
		opt(g)
	}

	for term, related := range o.GraphNeighbors {
		key := g.addTerm(term)
		g.neighbors[key] = append([]string(nil), related...)
	}
	for term, syn := range o.Synonyms {
		key := g.addTerm(term)
		g.synonyms[key] = strings.TrimSpace(syn)
	}

	g.terms = make([]string, 0, len(g.display))
	for key := range g.display {
		g.terms = append(g.terms, key)
	}
	sort.Strings(g.terms)
	return g
}

func (g *Graph) addTerm(term string) string {
	key := strings.ToLower(strings.TrimSpace(term))
	if _, ok := g.display[key]; !ok {
		g.display[key] = strings.TrimSpace(term)
	}
	return key
}

// resolve finds the known term for word, falling back to the closest
// spelling when there is no exact match.
func (g *Graph) resolve(word string) (string, bool) {
	if word == "" || len(g.terms) == 0 {
		return "", false
	}
	if _, ok := g.display[word]; ok {
		return word, true
	}
	return closestMatch(word, g.terms, fuzzyCutoff)
}

// Expand tokenizes intent into lower-case keywords, dropping stopwords and
// single-character tokens, and collects the synonym and the first few
// graph neighbours of every keyword. Both lists are de-duplicated and keep
// first-seen order.
func (g *Graph) Expand(intent string) (keywords, neighbors []string) {
	seenKW := make(map[string]struct{})
	seenNB := make(map[string]struct{})
	addNeighbor := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return
		}
		if _, ok := seenNB[term]; !ok {
			seenNB[term] = struct{}{}
			neighbors = append(neighbors, term)
		}
	}

	for _, word := range wordPattern.FindAllString(strings.ToLower(intent), -1) {
		if _, stop := g.stopwords[word]; stop || len([]rune(word)) < 2 {
			continue
		}
		if _, dup := seenKW[word]; dup {
			continue
		}
		seenKW[word] = struct{}{}
		keywords = append(keywords, word)

		term, ok := g.resolve(word)
		if !ok {
			continue
		}
		if syn, ok := g.synonyms[term]; ok {
			addNeighbor(syn)
		}
		for _, related := range g.limited(term) {
			addNeighbor(related)
		}
	}
	return keywords, neighbors
}

func (g *Graph) limited(term string) []string {
	related := g.neighbors[term]
	if len(related) > g.neighborLimit {
		related = related[:g.neighborLimit]
	}
	return related
}

// AreSynonyms reports whether either term is registered as the other's
// synonym. Comparison ignores case and surrounding whitespace.
func (g *Graph) AreSynonyms(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if syn, ok := g.synonyms[a]; ok && strings.EqualFold(syn, b) {
		return true
	}
	if syn, ok := g.synonyms[b]; ok && strings.EqualFold(syn, a) {
		return true
	}
	return false
}

// Hints renders the semantic hints block for a natural-language question,
// or "" when no word resolves to a known term.
func (g *Graph) Hints(question string) string {
	var hints []string
	for _, word := range strings.Fields(question) {
		clean := strings.ToLower(strings.Trim(word, "?,.!"))
		term, ok := g.resolve(clean)
		if !ok {
			continue
		}
		if syn, ok := g.synonyms[term]; ok {
			hints = append(hints, fmt.Sprintf("Synonym: '%s' implies '%s'", word, syn))
		}
		if related := g.limited(term); len(related) > 0 {
			hints = append(hints, fmt.Sprintf("Implicit Context: '%s' relates to %s", g.display[term], listLiteral(related)))
		}
	}
	if len(hints) == 0 {
		return ""
	}
	return hintsHeader + strings.Join(hints, "\n")
}

// Terms returns the number of known terms.
func (g *Graph) Terms() int {
	return len(g.terms)
}

func listLiteral(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}
