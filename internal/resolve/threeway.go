package resolve

import "strings"

const (
	markerLocal     = "<<<<<<< LOCAL"
	markerSeparator = "======="
	markerRemote    = ">>>>>>> REMOTE"
)

// ConflictMarker records one line-level conflict block emitted by the
// three-way merge, with both variants verbatim.
type ConflictMarker struct {
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	LocalContent  string `json:"local_content"`
	RemoteContent string `json:"remote_content"`
}

// MergeResult is the outcome of a three-way content merge.
type MergeResult struct {
	Content      string           `json:"content"`
	HasConflicts bool             `json:"has_conflicts"`
	Confidence   float64          `json:"confidence"`
	Markers      []ConflictMarker `json:"markers,omitempty"`
}

// MergeThreeWay reconciles local and remote edits against their common
// ancestor. Trivial cases short-circuit; otherwise lines are merged
// index-by-index and genuine divergences become LOCAL/REMOTE conflict
// blocks.
func MergeThreeWay(base, local, remote string) MergeResult {
	switch {
	case base == local && local == remote:
		return MergeResult{Content: local, Confidence: 1.0}
	case base == local:
		// Only the remote side changed.
		return MergeResult{Content: remote, Confidence: 0.9}
	case base == remote:
		// Only the local side changed.
		return MergeResult{Content: local, Confidence: 0.9}
	case local == remote:
		// Convergent edits.
		return MergeResult{Content: local, Confidence: 1.0}
	}

	baseLines := strings.Split(base, "\n")
	localLines := strings.Split(local, "\n")
	remoteLines := strings.Split(remote, "\n")

	maxLines := len(baseLines)
	if len(localLines) > maxLines {
		maxLines = len(localLines)
	}
	if len(remoteLines) > maxLines {
		maxLines = len(remoteLines)
	}

	merged := make([]string, 0, maxLines)
	var markers []ConflictMarker

	for i := 0; i < maxLines; i++ {
		baseLine := lineAt(baseLines, i)
		localLine := lineAt(localLines, i)
		remoteLine := lineAt(remoteLines, i)

		switch {
		case baseLine == localLine && localLine == remoteLine:
			merged = append(merged, baseLine)
		case baseLine == localLine:
			merged = append(merged, remoteLine)
		case baseLine == remoteLine:
			merged = append(merged, localLine)
		case localLine == remoteLine:
			merged = append(merged, localLine)
		default:
			start := len(merged)
			merged = append(merged,
				markerLocal,
				localLine,
				markerSeparator,
				remoteLine,
				markerRemote,
			)
			markers = append(markers, ConflictMarker{
				StartLine:     start,
				EndLine:       len(merged) - 1,
				LocalContent:  localLine,
				RemoteContent: remoteLine,
			})
		}
	}

	confidence := 0.8
	if len(markers) > 0 {
		confidence = 0.3
	}

	return MergeResult{
		Content:      strings.Join(merged, "\n"),
		HasConflicts: len(markers) > 0,
		Confidence:   confidence,
		Markers:      markers,
	}
}

// Missing trailing lines compare as empty.
func lineAt(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}
	return ""
}
