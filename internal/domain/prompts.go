package domain

// PersonaSuffix is appended to the last user text part when the alternate
// persona prompt is active, to reinforce persona adherence.
const PersonaSuffix = " STAY IN CHARACTER"

// Prompts holds the static prompt texts loaded at startup. A missing prompt
// file yields an empty string and the corresponding feature degrades quietly.
type Prompts struct {
	Default   string
	DAN       string
	ChatAlias string
}

// BuildInstructions assembles the system/instructions string for a request:
// the base default prompt, the caller's system message when its control flag
// permits, and the alternate-persona prompt when the DAN flag is set.
func BuildInstructions(prompts Prompts, req *ChatRequest) string {
	instructions := prompts.Default
	if req.Control.SystemMessage && req.SystemMessage != "" {
		instructions += "\n\n" + req.SystemMessage
	}
	if req.DAN && prompts.DAN != "" {
		instructions += "\n\n" + prompts.DAN
	}
	return instructions
}

// AppendPersonaSuffix appends PersonaSuffix to the trailing text part of the
// last user message. Call only when the persona prompt is active.
func AppendPersonaSuffix(history []Message) {
	if len(history) == 0 {
		return
	}

	last := &history[len(history)-1]
	if last.Role != RoleUser {
		return
	}

	for i := len(last.Parts) - 1; i >= 0; i-- {
		if last.Parts[i].Type == PartText {
			last.Parts[i].Text += PersonaSuffix
			return
		}
	}
}
