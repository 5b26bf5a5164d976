package callback

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashita-ai/conductor/internal/model"
)

// wordsPerSecond approximates conversational speech rate.
const wordsPerSecond = 2.5

// BuildScript composes the text read to the user on a callback call.
// closing is appended last. When maxDuration is positive the script is cut
// at the last whole sentence that fits; the greeting is always kept.
func BuildScript(goal, summary string, results []model.SubtaskResult, closing string, maxDuration time.Duration) string {
	sentences := []string{fmt.Sprintf("Hi, this is your assistant calling about your task: %s.", strings.TrimRight(strings.TrimSpace(goal), ".!?"))}
	if s := strings.TrimSpace(summary); s != "" {
		sentences = append(sentences, s)
	}
	for _, r := range results {
		sentences = append(sentences, fmt.Sprintf("%s, %s: %s.", r.Agent, strings.ReplaceAll(r.Action, "_", " "), r.Status))
	}
	if closing != "" {
		sentences = append(sentences, closing)
	}

	if maxDuration <= 0 {
		return strings.Join(sentences, " ")
	}
	budget := int(maxDuration.Seconds() * wordsPerSecond)
	if budget < 1 {
		budget = 1
	}

	kept := make([]string, 0, len(sentences))
	used := 0
	for i, s := range sentences {
		n := len(strings.Fields(s))
		if used+n > budget {
			if i == 0 {
				kept = append(kept, truncateWords(s, budget))
			}
			break
		}
		kept = append(kept, s)
		used += n
	}
	return strings.Join(kept, " ")
}

func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "..."
}
