package engine

import (
	"fmt"
	"strings"

	"github.com/ent0n29/iris/internal/desktop"
	"github.com/ent0n29/iris/internal/memory"
)

// DefaultInstruction is the persona used when no override is configured.
const DefaultInstruction = `You are IRIS, a friendly and witty voice companion running on the user's computer.
Speak naturally and keep answers short; this is a spoken conversation.
Always reply in the language the user speaks, including mixed-language speech.
You can see through the camera or screen when frames are shared; mention what you see only when relevant.
You control this machine through tools: search, read, write, copy, move, delete and open files,
list directories, see running apps, launch apps and read system stats.
Prefer a tool over guessing. When a tool returns an error, explain it briefly and suggest a next step.
Messages starting with [system context] describe changes on the machine; use them silently and do not reply to them.`

const maxHistoryLine = 400

// buildInstruction appends recent conversation and host stats to the base persona.
func buildInstruction(base string, history []memory.Message, stats *desktop.SystemStats) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultInstruction
	}
	var b strings.Builder
	b.WriteString(base)

	if len(history) > 0 {
		b.WriteString("\n\n## Recent conversation\n")
		for _, msg := range history {
			text := strings.Join(strings.Fields(msg.Content), " ")
			if r := []rune(text); len(r) > maxHistoryLine {
				text = string(r[:maxHistoryLine]) + "..."
			}
			speaker := "User"
			if msg.Role == memory.RoleAssistant {
				speaker = "IRIS"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, text)
		}
	}

	if stats != nil {
		b.WriteString("\n## Machine status\n")
		b.WriteString(stats.Summary())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
