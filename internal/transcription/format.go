package transcription

import (
	"regexp"
	"strings"
)

const (
	// SpeakerPrefix decorates raw diarization labels ("A" -> "Speaker A")
	SpeakerPrefix = "Speaker "

	// DefaultLabel is the speaker assumed for non-diarized transcripts
	DefaultLabel = "A"

	// UnknownLabel replaces utterances the provider left unlabeled
	UnknownLabel = "Unknown"
)

// speakerLine matches a transcript that already starts with a decorated label
var speakerLine = regexp.MustCompile(`^` + SpeakerPrefix + `(\S+): `)

// Format renders the transcript as "<name>: <text>" lines, resolving each
// diarization label through names. The output depends only on t and names.
func Format(t Transcript, names map[string]string) string {
	if len(t.Utterances) == 0 {
		return normalize(t.Text, names)
	}

	lines := make([]string, 0, len(t.Utterances))
	for _, u := range t.Utterances {
		lines = append(lines, ResolveName(u.Speaker, names)+": "+u.Text)
	}
	return strings.Join(lines, "\n")
}

// ResolveName picks the display name for a raw label: an exact mapping wins,
// then a mapping on the decorated label, then the decorated label itself.
func ResolveName(label string, names map[string]string) string {
	if label == "" {
		label = UnknownLabel
	}
	if name, ok := names[label]; ok && name != "" {
		return name
	}
	decorated := DecorateLabel(label)
	if name, ok := names[decorated]; ok && name != "" {
		return name
	}
	return decorated
}

// DecorateLabel returns the provider-style form of a label
func DecorateLabel(label string) string {
	return SpeakerPrefix + label
}

// SpeakerCount returns the number of distinct raw labels, at least 1
func SpeakerCount(t Transcript) int {
	seen := make(map[string]struct{}, len(t.Utterances))
	for _, u := range t.Utterances {
		label := u.Speaker
		if label == "" {
			label = UnknownLabel
		}
		seen[label] = struct{}{}
	}
	if len(seen) == 0 {
		return 1
	}
	return len(seen)
}

// Duration returns the audio length in seconds, falling back to the end of the last utterance
func Duration(t Transcript) float64 {
	if t.AudioDuration > 0 {
		return t.AudioDuration
	}
	var endMS int64
	for _, u := range t.Utterances {
		if u.EndMS > endMS {
			endMS = u.EndMS
		}
	}
	return float64(endMS) / 1000
}

// normalize gives single-speaker text the same "speaker: text" shape as diarized output
func normalize(text string, names map[string]string) string {
	if m := speakerLine.FindStringSubmatchIndex(text); m != nil {
		label := text[m[2]:m[3]]
		return ResolveName(label, names) + text[m[3]:]
	}
	return ResolveName(DefaultLabel, names) + ": " + text
}
