package model

// Tone is a discrete emotional classification of user-authored text.
type Tone string

const (
	ToneHappy    Tone = "happy"
	ToneNeutral  Tone = "neutral"
	ToneStressed Tone = "stressed"
	ToneAngry    Tone = "angry"
	ToneSad      Tone = "sad"
)

// ToneDetection is the classifier output. Confidence is within [0, 1].
type ToneDetection struct {
	Tone       Tone    `json:"tone"`
	Confidence float64 `json:"confidence"`
	EmojiHint  bool    `json:"emojiHint"`
}
