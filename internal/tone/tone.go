// Package tone classifies free text into a discrete emotional tone.
//
// Classification is keyword and punctuation driven. Rules are checked in a
// fixed precedence order (angry, stressed, sad, happy, neutral) and the first
// match wins. Keyword lists cover English and Spanish and match by substring
// on the lower-cased text padded with spaces; a leading space in a keyword
// anchors it to the start of a word.
package tone

import (
	"strings"
	"unicode"

	"github.com/ashita-ai/conductor/internal/model"
)

var (
	angerKeywords = []string{
		"angry", "furious", "outraged", " hate", "ridiculous", "unacceptable", "terrible service", "worst", "pissed",
		"enojado", "enfadado", "furioso", " odio", "inaceptable", "harto", "ridículo", "pésimo",
	}
	stressKeywords = []string{
		"stressed", "stress", "overwhelmed", "anxious", "urgent", "asap", "deadline", "panic", "worried", "help me",
		"estresado", "estrés", "agobiado", "ansioso", "urgente", "plazo", "pánico", "preocupado", "ayuda",
	}
	sadKeywords = []string{
		" sad", "depressed", "lonely", "heartbroken", "disappointed", "unhappy", "miss you", "lost my",
		"triste", "deprimido", "me siento solo", "desanimado", "decepcionado", "extraño", "perdí",
	}
	happyKeywords = []string{
		"happy", "great", "awesome", " love", "thanks", "thank you", "excited", "amazing", "wonderful", "perfect",
		"feliz", "genial", "increíble", "encanta", "gracias", "emocionado", "maravilloso", "perfecto",
	}
)

// Confidence levels per branch.
const (
	emptyConfidence    = 0.3
	neutralConfidence  = 0.6
	angryConfidence    = 0.88
	angryBoost         = 0.07
	stressedConfidence = 0.82
	sadConfidence      = 0.84
	happyConfidence    = 0.78
	happyBoost         = 0.08
)

// Detect classifies text. Empty or whitespace-only input is neutral with
// low confidence. EmojiHint reports emoji presence regardless of tone.
func Detect(text string) model.ToneDetection {
	if strings.TrimSpace(text) == "" {
		return model.ToneDetection{Tone: model.ToneNeutral, Confidence: emptyConfidence}
	}

	lower := " " + strings.ToLower(text) + " "
	exclaims := strings.Count(text, "!")
	emoji := hasEmoji(text)

	switch {
	case containsAny(lower, angerKeywords) || exclaims >= 3 || capsWords(text) >= 2:
		conf := angryConfidence
		if exclaims >= 5 {
			conf += angryBoost
		}
		return model.ToneDetection{Tone: model.ToneAngry, Confidence: capped(conf), EmojiHint: emoji}

	case containsAny(lower, stressKeywords) || strings.Contains(text, "??"):
		return model.ToneDetection{Tone: model.ToneStressed, Confidence: stressedConfidence, EmojiHint: emoji}

	case containsAny(lower, sadKeywords):
		return model.ToneDetection{Tone: model.ToneSad, Confidence: sadConfidence, EmojiHint: emoji}

	case containsAny(lower, happyKeywords) || emoji || exclaims >= 1:
		conf := happyConfidence
		if exclaims >= 2 {
			conf += happyBoost
		}
		return model.ToneDetection{Tone: model.ToneHappy, Confidence: capped(conf), EmojiHint: emoji}
	}

	return model.ToneDetection{Tone: model.ToneNeutral, Confidence: neutralConfidence, EmojiHint: emoji}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// capsWords counts words of three or more letters written entirely in
// upper case ("STOP", "NOW"). Punctuation around a word is ignored.
func capsWords(text string) int {
	n := 0
	for _, field := range strings.Fields(text) {
		word := strings.TrimFunc(field, func(r rune) bool { return !unicode.IsLetter(r) })
		letters := 0
		upper := true
		for _, r := range word {
			if !unicode.IsLetter(r) {
				continue
			}
			letters++
			if !unicode.IsUpper(r) {
				upper = false
				break
			}
		}
		if upper && letters >= 3 {
			n++
		}
	}
	return n
}

// hasEmoji reports whether text contains a pictographic emoji or a
// regional-indicator flag.
func hasEmoji(text string) bool {
	for _, r := range text {
		switch {
		case r >= 0x1F300 && r <= 0x1FAFF: // symbols, pictographs, emoticons, transport
			return true
		case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
			return true
		case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
			return true
		}
	}
	return false
}

func capped(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
