package models

import (
	"strings"
	"time"
)

// Emotion is the closed set of journal labels.
type Emotion string

const (
	EmotionCalm       Emotion = "Calm"
	EmotionStress     Emotion = "Stress"
	EmotionGratitude  Emotion = "Gratitude"
	EmotionSadness    Emotion = "Sadness"
	EmotionJoy        Emotion = "Joy"
	EmotionDepressive Emotion = "Depressive"
)

// Emotions lists every label in display order.
var Emotions = []Emotion{
	EmotionCalm,
	EmotionStress,
	EmotionGratitude,
	EmotionSadness,
	EmotionJoy,
	EmotionDepressive,
}

// ParseEmotion maps s onto the fixed set, ignoring case and surrounding whitespace.
func ParseEmotion(s string) (Emotion, bool) {
	s = strings.TrimSpace(s)
	for _, e := range Emotions {
		if strings.EqualFold(s, string(e)) {
			return e, true
		}
	}
	return "", false
}

// JournalEntry is a private journal record created from a voice capture.
// Transcript is set once at creation.
type JournalEntry struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Transcript string    `json:"transcript"`
	Emotion    Emotion   `json:"emotion_label"`
	MimeType   string    `json:"mime_type,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	HasAudio   bool      `json:"has_audio"`
	CreatedAt  time.Time `json:"created_at"`
}

// BlobKey returns the blob key of the retained audio.
func (e *JournalEntry) BlobKey() string {
	return JournalBlobKey(e.ID)
}

// JournalBlobKey returns the blob key for a journal entry id.
func JournalBlobKey(id string) string {
	return "journal/" + id
}
