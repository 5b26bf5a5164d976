package delegate

import (
	"fmt"

	"github.com/ashita-ai/conductor/internal/model"
)

// DemoOutput returns a deterministic sandbox payload for spec. Used when
// a request runs in demo mode so no agent is called.
func DemoOutput(spec model.SubtaskSpec) map[string]any {
	goal, _ := spec.Input["goal"].(string)
	out := map[string]any{"demo": true, "action": spec.Action}

	switch spec.Agent {
	case model.AgentBusiness:
		out["title"] = "Business plan: " + goal
		out["sections"] = []any{"Executive summary", "Market", "Operations", "Financials"}
		out["pdf_url"] = "/demo/business-plan.pdf"
	case model.AgentSocial:
		n := 5
		switch v := spec.Input["post_count"].(type) {
		case int:
			n = v
		case float64:
			n = int(v)
		}
		n = max(1, min(n, 30))
		posts := make([]any, n)
		for i := range posts {
			posts[i] = fmt.Sprintf("Post %d about %s", i+1, goal)
		}
		out["posts"] = posts
	case model.AgentVoice:
		out["audio_url"] = "/demo/voiceover.mp3"
		out["language"] = spec.Input["language"]
	case model.AgentAvatar:
		out["image_url"] = "/demo/avatar.png"
		out["style"] = spec.Input["style"]
	case model.AgentMarketplace:
		out["listing_url"] = "/demo/listing"
		out["title"] = goal
	}
	return out
}
