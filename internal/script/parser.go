package script

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/intonelabs/intone/internal/emotion"
)

type rawSegment struct {
	Text       *string `json:"text"`
	Emotion    *string `json:"emotion"`
	PauseAfter *string `json:"pause_after"`
}

type rawDocument struct {
	Title    string        `json:"title"`
	Segments *[]rawSegment `json:"segments"`
}

// Parse validates a narration document and resolves every segment against
// the emotion table. An unrecognized emotion degrades to neutral with one
// warning per occurrence; an unrecognized pause_after is a hard error. The
// asymmetry is deliberate and matches the input format's contract.
func Parse(data []byte, table *emotion.Table, log *slog.Logger) (Script, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Script{}, &InvalidScriptError{Segment: -1, Reason: "document is not valid JSON", Err: err}
	}
	if doc.Segments == nil {
		return Script{}, &InvalidScriptError{Segment: -1, Reason: "segments field is missing or not an array"}
	}

	utterances := make([]Utterance, 0, len(*doc.Segments))
	for i, seg := range *doc.Segments {
		if seg.Text == nil {
			return Script{}, &InvalidScriptError{Segment: i, Reason: "text field is missing"}
		}
		text := strings.TrimSpace(*seg.Text)
		if text == "" {
			return Script{}, &InvalidScriptError{Segment: i, Reason: "text is empty"}
		}

		name := emotion.Neutral
		if seg.Emotion != nil {
			name = *seg.Emotion
		}
		profile, ok := table.Resolve(name)
		if !ok {
			log.Warn("unrecognized emotion, using neutral",
				slog.String("emotion", name),
				slog.Int("segment", i))
			name = emotion.Neutral
		}

		pause := PauseNone
		if seg.PauseAfter != nil {
			k, ok := pauseKind(*seg.PauseAfter)
			if !ok {
				return Script{}, &InvalidScriptError{Segment: i,
					Reason: fmt.Sprintf("unrecognized pause_after %q", *seg.PauseAfter)}
			}
			pause = k
		}

		utterances = append(utterances, Utterance{
			Text:        text,
			Emotion:     profile,
			EmotionName: name,
			PauseAfter:  pause,
			Index:       i,
		})
	}

	return Script{Title: doc.Title, Utterances: utterances}, nil
}
