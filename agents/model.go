package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vibego/vibego/backends"
	"github.com/vibego/vibego/logs"
	"github.com/vibego/vibego/vibeconfigs"
)

const systemPrompt = `You are an automated debugger operating inside a live, suspended execution.
A statement in the running program failed; you see the debugger transcript and decide the next command.

Available commands:
  list [first[,last]]  show source around the current line
  locals               show local variables
  p EXPR               evaluate an expression and print its value
  pp EXPR              same, pretty printed
  ! STMT               execute a statement against the live frame (e.g. ! x = 42)
  step                 pause again at the next statement
  continue [EXPR]      resume execution, optionally substituting a value for the failed statement
  debug_frame          dump raw frame state

Reply with a single JSON object: {"command": "...", "explanation": "..."}.
Fix the failure by repairing variables with !, then continue.`

// Model drives the session from a reasoning backend. The transcript
// keeps the priming entry plus at most limit recent messages.
type Model struct {
	completer      backends.Completer
	limit          int
	transcriptPath string
	out            io.Writer
	logger         logs.Logger

	messages []backends.Message
}

var _ Agent = new(Model)

func (m *Model) ReceiveOutput(text string) {
	// the human observer has no other way to see the transcript
	fmt.Fprint(m.out, text)

	if len(m.messages) == 0 {
		m.messages = append(m.messages,
			backends.Message{
				Role:    backends.RoleSystem,
				Content: systemPrompt + "\n\n" + text,
			},
		)
		return
	}
	m.messages = append(m.messages, backends.Message{
		Role:    backends.RoleUser,
		Content: text,
	})
	m.trim()
}

func (m *Model) NextCommand(ctx context.Context) (string, error) {
	if len(m.messages) == 0 {
		return "", fmt.Errorf("no session output received yet")
	}

	reply, err := m.completer.Complete(ctx, m.messages)
	if err != nil {
		return "", err
	}

	m.messages = append(m.messages, backends.Message{
		Role:    backends.RoleAssistant,
		Content: reply,
	})
	m.trim()
	m.persist()

	command, explanation := parseReply(reply)
	if explanation != "" {
		fmt.Fprintf(m.out, "[agent] %s\n", explanation)
	}
	fmt.Fprintf(m.out, "(vdb) %s\n", command)

	return command, nil
}

// trim bounds the transcript to the priming entry plus limit recent
// messages. Entry 0 is never evicted.
func (m *Model) trim() {
	if len(m.messages) <= 1+m.limit {
		return
	}
	keep := m.messages[len(m.messages)-m.limit:]
	trimmed := make([]backends.Message, 0, 1+m.limit)
	trimmed = append(trimmed, m.messages[0])
	trimmed = append(trimmed, keep...)
	m.messages = trimmed
}

func (m *Model) persist() {
	if m.transcriptPath == "" {
		return
	}
	content, err := json.MarshalIndent(m.messages, "", "  ")
	if err == nil {
		err = os.WriteFile(m.transcriptPath, content, 0644)
	}
	if err != nil {
		m.logger.Warn("could not persist transcript",
			"path", m.transcriptPath,
			"error", err,
		)
	}
}

type replyPayload struct {
	Command     string `json:"command"`
	Explanation string `json:"explanation"`
}

// parseReply extracts the first balanced {...} span and decodes it.
// On any failure the raw reply verbatim is the command.
func parseReply(reply string) (command string, explanation string) {
	span, ok := firstBalancedObject(reply)
	if ok {
		var payload replyPayload
		if err := json.Unmarshal([]byte(span), &payload); err == nil && payload.Command != "" {
			return payload.Command, payload.Explanation
		}
	}
	return strings.TrimSpace(reply), ""
}

func firstBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

type NewModelAgent func(completer backends.Completer) *Model

func (Module) NewModelAgent(
	limit vibeconfigs.MemoryLimit,
	transcriptPath vibeconfigs.TranscriptPath,
	logger logs.Logger,
) NewModelAgent {
	return func(completer backends.Completer) *Model {
		return &Model{
			completer:      completer,
			limit:          int(limit),
			transcriptPath: string(transcriptPath),
			out:            os.Stderr,
			logger:         logger,
		}
	}
}
