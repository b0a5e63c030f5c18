package resolve

import (
	"strings"

	"notesync-engine/internal/domain"
)

type changeClass int

const (
	changeNone changeClass = iota
	changeAddition
	changeDeletion
	changeModification
)

// ResolveUpdateConflict decides how to reconcile proposed changes against
// the current note, dispatching on the detected conflict type.
func ResolveUpdateConflict(current *domain.Note, proposed map[string]string, conflict ConflictData) Resolution {
	switch conflict.Type {
	case ConflictVersion:
		return resolveVersionConflict(proposed, conflict)
	case ConflictContent:
		return resolveContentConflict(proposed, conflict)
	case ConflictMetadata:
		return resolveMetadataConflict(current, proposed)
	case ConflictCollaborative:
		// Operational transform already reconciled these upstream.
		return Resolution{
			Strategy:   domain.ResolutionAutoMerge,
			Changes:    proposed,
			Confidence: 0.9,
			Reason:     "collaborative changes pre-resolved by operational transform",
		}
	default: // structural and anything unclassified
		return Resolution{
			Strategy:   domain.ResolutionUserChoice,
			Changes:    proposed,
			Confidence: 0.3,
			Reason:     "structural divergence requires manual review",
		}
	}
}

func resolveVersionConflict(proposed map[string]string, conflict ConflictData) Resolution {
	merge := MergeThreeWay(conflict.BaseContent, conflict.LocalContent, conflict.RemoteContent)

	switch {
	case merge.HasConflicts:
		return Resolution{
			Strategy:   domain.ResolutionUserChoice,
			Changes:    proposed,
			Confidence: merge.Confidence,
			Reason:     "three-way merge produced conflict blocks",
			Merge:      &merge,
		}
	case merge.Confidence > 0.8:
		resolved := copyChanges(proposed)
		resolved["content"] = merge.Content
		return Resolution{
			Strategy:   domain.ResolutionAutoMerge,
			Changes:    resolved,
			Confidence: merge.Confidence,
			Reason:     "three-way merge resolved cleanly",
			Merge:      &merge,
		}
	default:
		return Resolution{
			Strategy:   domain.ResolutionAIAssisted,
			Changes:    proposed,
			Confidence: merge.Confidence,
			Reason:     "merge ambiguous, flagged for assisted review",
			Merge:      &merge,
		}
	}
}

func resolveContentConflict(proposed map[string]string, conflict ConflictData) Resolution {
	localClass := classifyChange(conflict.BaseContent, conflict.LocalContent)
	remoteClass := classifyChange(conflict.BaseContent, conflict.RemoteContent)

	switch {
	case localClass == changeAddition && remoteClass == changeAddition:
		resolved := copyChanges(proposed)
		resolved["content"] = mergeAdditions(conflict.BaseContent, conflict.LocalContent, conflict.RemoteContent)
		return Resolution{
			Strategy:   domain.ResolutionAutoMerge,
			Changes:    resolved,
			Confidence: 0.7,
			Reason:     "both sides added content, additions combined",
		}
	case localClass == changeDeletion && remoteClass == changeModification:
		return Resolution{
			Strategy:   domain.ResolutionUserChoice,
			Changes:    proposed,
			Confidence: 0.3,
			Reason:     "local deletion conflicts with remote modification",
		}
	default:
		return Resolution{
			Strategy:   domain.ResolutionUserChoice,
			Changes:    proposed,
			Confidence: 0.5,
			Reason:     "content changes diverge, manual review required",
		}
	}
}

// classifyChange uses a length-ratio heuristic: growth past 1.2x is an
// addition, shrinkage below 0.8x a deletion, anything else that differs a
// modification.
func classifyChange(base, changed string) changeClass {
	if base == changed {
		return changeNone
	}
	if len(base) == 0 {
		return changeAddition
	}
	ratio := float64(len(changed)) / float64(len(base))
	switch {
	case ratio > 1.2:
		return changeAddition
	case ratio < 0.8:
		return changeDeletion
	default:
		return changeModification
	}
}

// mergeAdditions starts from the local text and appends remote words that
// neither the base nor the local side already contains.
func mergeAdditions(base, local, remote string) string {
	baseWords := wordSet(base)
	localWords := wordSet(local)

	merged := local
	for _, w := range wordSplit.Split(remote, -1) {
		key := strings.ToLower(w)
		if w == "" || baseWords[key] || localWords[key] {
			continue
		}
		merged += " " + w
		localWords[key] = true
	}
	return merged
}

func resolveMetadataConflict(current *domain.Note, proposed map[string]string) Resolution {
	resolved := make(map[string]string, len(proposed))
	fieldStrategies := make(map[string]domain.ResolutionStrategy, len(proposed))
	affected := make([]string, 0, len(proposed))

	var confidenceSum float64
	for field, value := range proposed {
		affected = append(affected, field)

		var (
			winner     string
			strategy   domain.ResolutionStrategy
			confidence float64
		)
		switch field {
		case "title":
			winner, strategy, confidence = resolveTitle(current.Title, value)
		case "category":
			winner, strategy, confidence = resolveCategory(current.Category, value)
		case "tags":
			winner, strategy, confidence = resolveTags(strings.Join(current.Tags, ","), value)
		default:
			// Last write wins for fields without a dedicated rule.
			winner, strategy, confidence = value, domain.ResolutionLastWriteWins, 0.8
		}

		resolved[field] = winner
		fieldStrategies[field] = strategy
		confidenceSum += confidence
	}

	mean := 0.0
	if len(proposed) > 0 {
		mean = confidenceSum / float64(len(proposed))
	}

	strategy := domain.ResolutionUserChoice
	reason := "metadata field confidence too low for automatic merge"
	if mean > 0.7 {
		strategy = domain.ResolutionAutoMerge
		reason = "metadata fields merged per-field"
	}

	return Resolution{
		Strategy:        strategy,
		Changes:         resolved,
		Confidence:      mean,
		Reason:          reason,
		AffectedFields:  affected,
		FieldStrategies: fieldStrategies,
	}
}

func resolveTitle(current, proposed string) (string, domain.ResolutionStrategy, float64) {
	switch {
	case current == proposed:
		return current, domain.ResolutionAutoMerge, 1.0
	case strings.TrimSpace(current) == "":
		return proposed, domain.ResolutionAutoMerge, 0.9
	case strings.TrimSpace(proposed) == "":
		return current, domain.ResolutionAutoMerge, 0.9
	case len(proposed) > len(current):
		return proposed, domain.ResolutionAutoMerge, 0.7
	default:
		return current, domain.ResolutionAutoMerge, 0.7
	}
}

func resolveCategory(current, proposed string) (string, domain.ResolutionStrategy, float64) {
	switch {
	case current == proposed:
		return current, domain.ResolutionAutoMerge, 1.0
	case current == domain.DefaultCategory:
		return proposed, domain.ResolutionAutoMerge, 0.9
	case proposed == domain.DefaultCategory:
		return current, domain.ResolutionAutoMerge, 0.9
	default:
		return proposed, domain.ResolutionLastWriteWins, 0.6
	}
}

func resolveTags(current, proposed string) (string, domain.ResolutionStrategy, float64) {
	union := unionTags(splitTags(current), splitTags(proposed))
	joined := strings.Join(union, ",")
	if current == proposed {
		return joined, domain.ResolutionAutoMerge, 1.0
	}
	return joined, domain.ResolutionAutoMerge, 0.8
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func copyChanges(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
