package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire payloads embedded inside tool markers. Field order is part of the
// client contract.
type toolUsePayload struct {
	ToolID     string `json:"tool_id"`
	ServerName string `json:"server_name"`
	ToolName   string `json:"tool_name"`
}

type toolResultPayload struct {
	ToolID     string `json:"tool_id"`
	ServerName string `json:"server_name"`
	ToolName   string `json:"tool_name"`
	IsError    bool   `json:"is_error"`
	Result     string `json:"result"`
}

// Render serializes one text-bearing canonical event into the in-band markup
// convention shared with existing clients. The markers are layered inside the
// SSE content field, not separate frame types. Usage, Error, and End render
// to the empty string; the relay loop handles those out of band.
func Render(ev Event) string {
	switch ev.Kind {
	case KindTextDelta, KindThinkingDelta:
		return ev.Text

	case KindThinkingOpen:
		return "<think>\n"

	case KindThinkingClose:
		return "\n</think>\n\n"

	case KindToolUse:
		payload, err := json.Marshal(toolUsePayload{
			ToolID:     ev.Tool.ToolID,
			ServerName: ev.Tool.ServerName,
			ToolName:   ev.Tool.ToolName,
		})
		if err != nil {
			return ""
		}
		return fmt.Sprintf("\n\n<tool_use>\n%s\n</tool_use>\n", payload)

	case KindToolResult:
		payload, err := json.Marshal(toolResultPayload{
			ToolID:     ev.Tool.ToolID,
			ServerName: ev.Tool.ServerName,
			ToolName:   ev.Tool.ToolName,
			IsError:    ev.Tool.IsError,
			Result:     ev.Tool.Result,
		})
		if err != nil {
			return ""
		}
		return fmt.Sprintf("\n<tool_result>\n%s\n</tool_result>\n\n", payload)

	case KindCitations:
		var b strings.Builder
		b.WriteString("\n<citations>")
		for i, url := range ev.Citations {
			fmt.Fprintf(&b, "\n\n[%d] %s", i+1, url)
		}
		b.WriteString("</citations>\n")
		return b.String()

	default:
		return ""
	}
}
