package callback

import "github.com/ashita-ai/conductor/internal/model"

// VoiceParams are the acoustic settings passed to the voice synthesizer.
// All values are within [0, 1].
type VoiceParams struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

var (
	expressiveVoice = VoiceParams{Stability: 0.35, SimilarityBoost: 0.75, Style: 0.65}
	calmVoice       = VoiceParams{Stability: 0.80, SimilarityBoost: 0.85, Style: 0.10}
	neutralVoice    = VoiceParams{Stability: 0.55, SimilarityBoost: 0.75, Style: 0.30}
)

// ParamsFor maps a detected tone to voice settings. Upbeat users get a
// livelier delivery; stressed, angry or sad users get a steady, flat one.
func ParamsFor(t model.Tone) VoiceParams {
	switch t {
	case model.ToneHappy:
		return expressiveVoice
	case model.ToneStressed, model.ToneAngry, model.ToneSad:
		return calmVoice
	default:
		return neutralVoice
	}
}
