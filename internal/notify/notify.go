// Package notify composes the user-facing text sent when a task finishes:
// dashboard links, downloadable artifact links, chat messages, and the
// link sentence read out at the end of a callback call.
package notify

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/conductor/internal/model"
)

// Artifact is a downloadable result produced by a sub-task.
type Artifact struct {
	Agent model.AgentName `json:"agent"`
	Label string          `json:"label"`
	URL   string          `json:"url"`
}

// labels names well-known output keys. Other "*_url" keys are labelled from
// the key itself.
var labels = map[string]string{
	"pdf_url":     "Business plan (PDF)",
	"audio_url":   "Voiceover audio",
	"image_url":   "Avatar image",
	"listing_url": "Marketplace listing",
	"video_url":   "Video",
}

// Composer builds links relative to the platform's public URLs.
type Composer struct {
	dashboardBase string
	origin        string
}

// NewComposer creates a Composer. Relative artifact URLs are resolved
// against origin.
func NewComposer(dashboardBase, origin string) *Composer {
	return &Composer{
		dashboardBase: strings.TrimRight(dashboardBase, "/"),
		origin:        strings.TrimRight(origin, "/"),
	}
}

// DashboardURL returns the page where the user can review a task.
func (c *Composer) DashboardURL(taskID uuid.UUID) string {
	u, err := url.JoinPath(c.dashboardBase, "tasks", taskID.String())
	if err != nil {
		return c.dashboardBase + "/tasks/" + taskID.String()
	}
	return u
}

// Artifacts collects artifact links from completed results, in plan order
// and by key name within one result. Failed results contribute nothing.
func (c *Composer) Artifacts(results []model.SubtaskResult) []Artifact {
	var out []Artifact
	for _, r := range results {
		if r.Status != model.SubtaskStatusCompleted {
			continue
		}
		keys := make([]string, 0, len(r.Output))
		for k := range r.Output {
			if strings.HasSuffix(k, "_url") {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		for _, k := range keys {
			raw, ok := r.Output[k].(string)
			if !ok || raw == "" {
				continue
			}
			link, ok := c.resolve(raw)
			if !ok {
				continue
			}
			out = append(out, Artifact{Agent: r.Agent, Label: label(k), URL: link})
		}
	}
	return out
}

// resolve makes raw absolute. Only http and https links are kept.
func (c *Composer) resolve(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		base, err := url.Parse(c.origin + "/")
		if err != nil {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

func label(key string) string {
	if l, ok := labels[key]; ok {
		return l
	}
	name := strings.ReplaceAll(strings.TrimSuffix(key, "_url"), "_", " ")
	if name == "" {
		return "Download"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// Summary is the one-line outcome stored on a task and read in the callback.
func Summary(status model.TaskStatus, results []model.SubtaskResult) string {
	var done int
	for _, r := range results {
		if r.Status == model.SubtaskStatusCompleted {
			done++
		}
	}
	switch status {
	case model.TaskStatusCompleted:
		return fmt.Sprintf("All %d steps completed.", len(results))
	case model.TaskStatusPartial:
		return fmt.Sprintf("%d of %d steps completed; %d failed.", done, len(results), len(results)-done)
	default:
		if len(results) == 0 {
			return "Nothing was run."
		}
		return fmt.Sprintf("All %d steps failed.", len(results))
	}
}

// ChatMessage renders the completion message for a chat channel.
func (c *Composer) ChatMessage(taskID uuid.UUID, goal string, status model.TaskStatus, results []model.SubtaskResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your task %q finished: %s\n", goal, Summary(status, results))
	for _, r := range results {
		mark := "✅"
		if r.Status != model.SubtaskStatusCompleted {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", mark, r.Agent, r.Action)
	}
	if arts := c.Artifacts(results); len(arts) > 0 {
		b.WriteString("\nDownloads:\n")
		for _, a := range arts {
			fmt.Fprintf(&b, "• %s: %s\n", a.Label, a.URL)
		}
	}
	fmt.Fprintf(&b, "\nDetails: %s", c.DashboardURL(taskID))
	return b.String()
}

// SpokenLinks is the closing sentence of a callback script. URLs are never
// read aloud; the listener is pointed at the dashboard instead.
func (c *Composer) SpokenLinks(results []model.SubtaskResult) string {
	switch n := len(c.Artifacts(results)); n {
	case 0:
		return "You can review the details on your dashboard."
	case 1:
		return "One file is ready to download from your dashboard."
	default:
		return fmt.Sprintf("%d files are ready to download from your dashboard.", n)
	}
}
