// Package planner turns a free-text goal into an ordered execution plan.
//
// Planning is rule based: each category has a keyword set matched against
// the lower-cased goal. One sub-task is emitted per matched category, in a
// fixed order so that foundational work (a business plan) runs before work
// that may reference it (social content, listings). Plan is pure.
package planner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ashita-ai/conductor/internal/model"
)

// category binds a task type to the agent that handles it and the rules
// used to detect it and build its sub-task.
type category struct {
	taskType model.TaskType
	agent    model.AgentName
	action   string
	output   string
	keywords []string
	input    func(goal, lower string) map[string]any
}

// categories is in execution order: business, social, voice, marketplace, avatar.
var categories = []category{
	{
		taskType: model.TaskTypeBusiness,
		agent:    model.AgentBusiness,
		action:   "create_business_plan",
		output:   "business_plan",
		keywords: []string{
			"business", "startup", " company", "strategy", "revenue", "pitch", "investor", "budget", "market research",
			"negocio", "empresa", "emprendimiento", "estrategia", "ingresos", "inversor", "presupuesto",
		},
		input: func(goal, _ string) map[string]any {
			return map[string]any{"goal": goal, "depth": "full"}
		},
	},
	{
		taskType: model.TaskTypeSocial,
		agent:    model.AgentSocial,
		action:   "generate_posts",
		output:   "social_posts",
		keywords: []string{
			"social", " posts", " post ", "instagram", "tiktok", "twitter", "facebook", "linkedin", "content calendar", "caption", "hashtag",
			"redes sociales", "publicación", "publicaciones", "contenido",
		},
		input: func(goal, lower string) map[string]any {
			return map[string]any{"goal": goal, "post_count": postCount(lower), "platforms": platforms(lower)}
		},
	},
	{
		taskType: model.TaskTypeVoice,
		agent:    model.AgentVoice,
		action:   "generate_voiceover",
		output:   "audio",
		keywords: []string{
			" voice", "voiceover", "audio", "podcast", "narration", "narrate", "speech", "jingle",
			"voz", "locución", "narración", "grabación",
		},
		input: func(goal, lower string) map[string]any {
			return map[string]any{"goal": goal, "language": language(lower)}
		},
	},
	{
		taskType: model.TaskTypeMarketplace,
		agent:    model.AgentMarketplace,
		action:   "create_listing",
		output:   "listing",
		keywords: []string{
			"marketplace", "listing", " sell", "product page", "etsy", " shop", " store",
			"vender", "tienda", "anuncio", "producto",
		},
		input: func(goal, _ string) map[string]any {
			return map[string]any{"goal": goal}
		},
	},
	{
		taskType: model.TaskTypeAvatar,
		agent:    model.AgentAvatar,
		action:   "generate_avatar",
		output:   "avatar_image",
		keywords: []string{
			"avatar", "profile picture", "headshot", "character", "mascot", "logo",
			"foto de perfil", "personaje", "mascota",
		},
		input: func(goal, lower string) map[string]any {
			return map[string]any{"goal": goal, "style": avatarStyle(lower)}
		},
	},
}

// Plan classifies goal and builds its plan. The result always has at least
// one sub-task, and TaskType is hybrid exactly when several categories match.
func Plan(goal string) model.TaskPlan {
	lower := padded(goal)
	matched := match(lower)

	plan := model.TaskPlan{MainGoal: goal}
	switch len(matched) {
	case 0:
		plan.TaskType = model.TaskTypeBusiness
		plan.SubTasks = []model.SubtaskSpec{{
			Agent:  model.AgentBusiness,
			Action: "create_business_plan",
			Input:  map[string]any{"goal": goal, "depth": "light"},
		}}
		plan.ExpectedOutputs = []string{"business_plan"}
		return plan
	case 1:
		plan.TaskType = matched[0].taskType
	default:
		plan.TaskType = model.TaskTypeHybrid
	}

	for _, c := range matched {
		plan.SubTasks = append(plan.SubTasks, model.SubtaskSpec{
			Agent:  c.agent,
			Action: c.action,
			Input:  c.input(goal, lower),
		})
		plan.ExpectedOutputs = append(plan.ExpectedOutputs, c.output)
	}
	return plan
}

// padded lower-cases s and surrounds it with spaces, so a keyword with a
// leading space only matches at the start of a word ("shop" but not
// "workshop").
func padded(s string) string {
	return " " + strings.ToLower(s) + " "
}

// match returns the categories whose keywords occur in lower, in plan order.
func match(lower string) []category {
	var out []category
	for _, c := range categories {
		if containsAny(lower, c.keywords) {
			out = append(out, c)
		}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

const (
	defaultPostCount = 5
	maxPostCount     = 30
)

var postCountRe = regexp.MustCompile(`(\d{1,3})\s*(?:[a-z]+\s+)?(?:posts?|publicaciones)`)

func postCount(lower string) int {
	m := postCountRe.FindStringSubmatch(lower)
	if m == nil {
		return defaultPostCount
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return defaultPostCount
	}
	return min(n, maxPostCount)
}

func platforms(lower string) []string {
	var out []string
	for _, p := range []string{"instagram", "tiktok", "twitter", "facebook", "linkedin"} {
		if strings.Contains(lower, p) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"instagram"}
	}
	return out
}

var spanishHints = []string{" el ", " la ", " de ", " para ", " mi ", "español", "spanish", "voz", "negocio"}

func language(lower string) string {
	for _, h := range spanishHints {
		if strings.Contains(lower, h) {
			return "es"
		}
	}
	return "en"
}

func avatarStyle(lower string) string {
	for _, s := range []string{"cartoon", "anime", "pixel", "realistic", "3d"} {
		if strings.Contains(lower, s) {
			return s
		}
	}
	return "realistic"
}
