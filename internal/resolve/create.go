package resolve

import (
	"regexp"
	"strings"

	"notesync-engine/internal/domain"
)

// Weighted similarity components for create-conflict scoring.
const (
	titleWeight    = 0.3
	contentWeight  = 0.6
	categoryWeight = 0.1

	autoMergeThreshold  = 0.9
	userChoiceThreshold = 0.7
)

var sentenceSplit = regexp.MustCompile(`[.!?]+\s*`)

// ContentSimilarity scores two note bodies. Jaccard over word sets is the
// baseline; the overlap coefficient covers the common case where one body
// extends the other (pure Jaccard punishes length asymmetry even when every
// word of the shorter body is present in the longer one).
func ContentSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}

	jaccard := float64(intersection) / float64(union)
	overlap := float64(intersection) / float64(smaller)
	if overlap > jaccard {
		return overlap
	}
	return jaccard
}

// ResolveCreateConflict decides what to do with a new note given existing
// candidates that look similar. The best candidate's weighted similarity
// picks the band: auto-merge, defer to the user, or accept the new note.
func ResolveCreateConflict(newNote *domain.Note, candidates []*domain.Note) Resolution {
	if len(candidates) == 0 {
		return Resolution{
			Strategy:   domain.ResolutionAcceptNew,
			Note:       newNote,
			Confidence: 1.0,
			Reason:     "no similar notes found",
		}
	}

	var (
		best      *domain.Note
		bestScore float64
	)
	for _, cand := range candidates {
		score := weightedSimilarity(newNote, cand)
		if best == nil || score > bestScore {
			best, bestScore = cand, score
		}
	}

	switch {
	case bestScore > autoMergeThreshold:
		return Resolution{
			Strategy:   domain.ResolutionAutoMerge,
			Note:       MergeNotes(best, newNote),
			Confidence: bestScore,
			Reason:     "near-duplicate of an existing note, merged automatically",
		}
	case bestScore > userChoiceThreshold:
		return Resolution{
			Strategy:   domain.ResolutionUserChoice,
			Note:       best,
			Confidence: bestScore,
			Reason:     "similar note exists, side-by-side review suggested",
		}
	default:
		return Resolution{
			Strategy:   domain.ResolutionAcceptNew,
			Note:       newNote,
			Confidence: 1.0 - bestScore,
			Reason:     "sufficiently distinct from existing notes",
		}
	}
}

func weightedSimilarity(a, b *domain.Note) float64 {
	score := titleWeight*LevenshteinSimilarity(a.Title, b.Title) +
		contentWeight*ContentSimilarity(a.Content, b.Content)
	if a.Category == b.Category {
		score += categoryWeight
	}
	return score
}

// MergeNotes builds the auto-merged note: longer title wins, sentences are
// deduplicated across both bodies, tags are unioned, the existing category
// is kept unless it is the default, and the version moves past both inputs.
func MergeNotes(existing, incoming *domain.Note) *domain.Note {
	merged := existing.Clone()

	if len(incoming.Title) > len(existing.Title) {
		merged.Title = incoming.Title
	}

	merged.Content = mergeSentences(existing.Content, incoming.Content)
	merged.Tags = unionTags(existing.Tags, incoming.Tags)

	if existing.Category == domain.DefaultCategory && incoming.Category != "" {
		merged.Category = incoming.Category
	}

	version := existing.Version
	if incoming.Version > version {
		version = incoming.Version
	}
	merged.Version = version + 1

	return merged
}

func mergeSentences(a, b string) string {
	seen := make(map[string]bool)
	var out []string
	for _, block := range []string{a, b} {
		for _, s := range sentenceSplit.Split(block, -1) {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			key := strings.ToLower(s)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, ". ") + "."
}

func unionTags(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" || seen[strings.ToLower(t)] {
				continue
			}
			seen[strings.ToLower(t)] = true
			out = append(out, t)
		}
	}
	return out
}
