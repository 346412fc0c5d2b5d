package engine

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lazypower/totemic/internal/store"
)

const (
	// DefaultSimilarityThreshold links two answers.
	DefaultSimilarityThreshold = 0.7

	// DefaultMinTokenLength drops shorter words as noise.
	DefaultMinTokenLength = 4
)

// ClusterOptions tunes the similarity pass.
type ClusterOptions struct {
	Threshold      float64
	MinTokenLength int
}

// DefaultClusterOptions returns the standard threshold and token length.
func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{
		Threshold:      DefaultSimilarityThreshold,
		MinTokenLength: DefaultMinTokenLength,
	}
}

func (o ClusterOptions) withDefaults() ClusterOptions {
	if o.Threshold <= 0 {
		o.Threshold = DefaultSimilarityThreshold
	}
	if o.MinTokenLength <= 0 {
		o.MinTokenLength = DefaultMinTokenLength
	}
	return o
}

// Tokens returns the set of lowercase words in text with at least minLen
// runes. Words are split on anything that is not a letter or digit.
func Tokens(text string, minLen int) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) >= minLen {
			set[w] = true
		}
	}
	return set
}

// Jaccard is |a∩b| / |a∪b|. Two empty sets score 0.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	shared := 0
	for w := range a {
		if b[w] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// Similarity is the token Jaccard index of two texts. Texts with no
// qualifying tokens are similar only if they are the same text.
func Similarity(a, b string, minLen int) float64 {
	return similarity(Tokens(a, minLen), Tokens(b, minLen), a, b)
}

// similarity scores two texts from their token sets.
func similarity(ta, tb map[string]bool, a, b string) float64 {
	if len(ta) == 0 && len(tb) == 0 {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
			return 1
		}
		return 0
	}
	return Jaccard(ta, tb)
}

// Cluster links each answer i to every later answer j whose similarity
// meets the threshold. Groups are stars centered on the earlier answer and
// may overlap; links are not followed transitively. Only answers with at
// least one link appear as keys.
func Cluster(answers []store.Answer, opts ClusterOptions) map[int][]int {
	opts = opts.withDefaults()

	tokens := make([]map[string]bool, len(answers))
	for i := range answers {
		tokens[i] = Tokens(answers[i].Text, opts.MinTokenLength)
	}

	groups := make(map[int][]int)
	for i := 0; i < len(answers); i++ {
		for j := i + 1; j < len(answers); j++ {
			sim := similarity(tokens[i], tokens[j], answers[i].Text, answers[j].Text)
			if sim >= opts.Threshold {
				groups[i] = append(groups[i], j)
			}
		}
	}
	return groups
}

// Suggestion is a totem proposed for an answer because similar answers
// carry it.
type Suggestion struct {
	Totem      string  `json:"totem"`
	Count      int     `json:"count"`
	Confidence float64 `json:"confidence"`
}

// Suggest ranks totems per answer. For each star group (the anchor plus its
// linked answers) a totem's confidence is the number of group answers
// carrying it divided by the group size. Every member of the group receives
// the group's totems it does not already carry; an answer in several groups
// keeps the highest confidence per totem. Lists are sorted by confidence,
// then name.
func Suggest(answers []store.Answer, groups map[int][]int) map[int][]Suggestion {
	best := make(map[int]map[string]Suggestion)

	for _, anchor := range sortedKeys(groups) {
		members := append([]int{anchor}, groups[anchor]...)

		counts := make(map[string]int)
		for _, m := range members {
			for _, name := range uniqueNames(answers[m]) {
				counts[name]++
			}
		}

		size := float64(len(members))
		for _, m := range members {
			own := make(map[string]bool)
			for _, name := range uniqueNames(answers[m]) {
				own[name] = true
			}
			for name, n := range counts {
				if own[name] {
					continue
				}
				s := Suggestion{Totem: name, Count: n, Confidence: round2(float64(n) / size)}
				if best[m] == nil {
					best[m] = make(map[string]Suggestion)
				}
				if prev, ok := best[m][name]; !ok || s.Confidence > prev.Confidence {
					best[m][name] = s
				}
			}
		}
	}

	out := make(map[int][]Suggestion, len(best))
	for m, byName := range best {
		list := make([]Suggestion, 0, len(byName))
		for _, s := range byName {
			list = append(list, s)
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Confidence != list[j].Confidence {
				return list[i].Confidence > list[j].Confidence
			}
			return list[i].Totem < list[j].Totem
		})
		out[m] = list
	}
	return out
}

// Edge is an undirected totem relationship. A sorts before B.
type Edge struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Weight int    `json:"weight"`
}

// BuildGraph connects every totem on a group's anchor answer to every totem
// on each answer linked to it. Self-edges are dropped. Weight counts how
// many times the pair was connected.
func BuildGraph(answers []store.Answer, groups map[int][]int) []Edge {
	weights := make(map[[2]string]int)
	for _, anchor := range sortedKeys(groups) {
		for _, a := range uniqueNames(answers[anchor]) {
			for _, j := range groups[anchor] {
				for _, b := range uniqueNames(answers[j]) {
					if a == b {
						continue
					}
					key := [2]string{a, b}
					if b < a {
						key = [2]string{b, a}
					}
					weights[key]++
				}
			}
		}
	}

	edges := make([]Edge, 0, len(weights))
	for k, w := range weights {
		edges = append(edges, Edge{A: k[0], B: k[1], Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		return edges[i].B < edges[j].B
	})
	return edges
}

// Neighbors turns an edge list into a sorted adjacency list per totem.
func Neighbors(edges []Edge) map[string][]string {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.A] = append(adj[e.A], e.B)
		adj[e.B] = append(adj[e.B], e.A)
	}
	for name := range adj {
		sort.Strings(adj[name])
	}
	return adj
}

// ApplyRelations recomputes the relationship graph over the document's
// answers and replaces every totem's RelatedTotemNames with its neighbors.
// Totems with no neighbors end up with none. Returns the graph.
func ApplyRelations(doc *store.Document, opts ClusterOptions) []Edge {
	edges := BuildGraph(doc.Answers, Cluster(doc.Answers, opts))
	adj := Neighbors(edges)

	for i := range doc.Answers {
		for j := range doc.Answers[i].Totems {
			t := &doc.Answers[i].Totems[j]
			t.RelatedTotemNames = append([]string(nil), adj[store.NormalizeName(t.Name)]...)
		}
	}
	return edges
}

func uniqueNames(a store.Answer) []string {
	seen := make(map[string]bool, len(a.Totems))
	names := make([]string, 0, len(a.Totems))
	for _, name := range a.TotemNames() {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func sortedKeys(groups map[int][]int) []int {
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
