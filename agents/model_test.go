package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vibego/vibego/backends"
)

type fakeCompleter struct {
	replies  []string
	requests [][]backends.Message
	idx      int
}

var _ backends.Completer = new(fakeCompleter)

func (f *fakeCompleter) Complete(ctx context.Context, messages []backends.Message) (string, error) {
	f.requests = append(f.requests, append([]backends.Message(nil), messages...))
	if f.idx >= len(f.replies) {
		return "", fmt.Errorf("no reply scripted")
	}
	reply := f.replies[f.idx]
	f.idx++
	return reply, nil
}

func newTestModel(completer backends.Completer, limit int, transcriptPath string, out io.Writer) *Model {
	return &Model{
		completer:      completer,
		limit:          limit,
		transcriptPath: transcriptPath,
		out:            out,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestModelPriming(t *testing.T) {
	completer := &fakeCompleter{
		replies: []string{`{"command": "locals", "explanation": "inspect first"}`},
	}
	var out strings.Builder
	model := newTestModel(completer, 10, "", &out)

	model.ReceiveOutput("--- debug session ---\nerror: division by zero\n")
	model.ReceiveOutput("locals:\n  x = 1\n")

	command, err := model.NextCommand(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if command != "locals" {
		t.Errorf("command = %q", command)
	}

	sent := completer.requests[0]
	if sent[0].Role != backends.RoleSystem {
		t.Errorf("first message role = %q", sent[0].Role)
	}
	if !strings.HasPrefix(sent[0].Content, "You are an automated debugger") {
		t.Errorf("priming content = %q", sent[0].Content)
	}
	if !strings.Contains(sent[0].Content, "division by zero") {
		t.Errorf("first session output not folded into priming: %q", sent[0].Content)
	}
	if sent[1].Role != backends.RoleUser {
		t.Errorf("second message role = %q", sent[1].Role)
	}

	if !strings.Contains(out.String(), "[agent] inspect first") {
		t.Errorf("explanation not echoed:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "(vdb) locals") {
		t.Errorf("command not echoed:\n%s", out.String())
	}
}

func TestModelNoOutputYet(t *testing.T) {
	model := newTestModel(&fakeCompleter{}, 10, "", io.Discard)
	if _, err := model.NextCommand(context.Background()); err == nil {
		t.Fatal("expected error before any output")
	}
}

func TestModelTrim(t *testing.T) {
	completer := &fakeCompleter{}
	for range 20 {
		completer.replies = append(completer.replies, `{"command": "locals"}`)
	}
	model := newTestModel(completer, 4, "", io.Discard)

	model.ReceiveOutput("priming output\n")
	for i := range 10 {
		if _, err := model.NextCommand(context.Background()); err != nil {
			t.Fatal(err)
		}
		model.ReceiveOutput(fmt.Sprintf("output %d\n", i))
	}

	if len(model.messages) > 1+4 {
		t.Errorf("transcript not bounded: %d messages", len(model.messages))
	}
	if model.messages[0].Role != backends.RoleSystem {
		t.Errorf("priming entry evicted, first role = %q", model.messages[0].Role)
	}
	if !strings.Contains(model.messages[0].Content, "priming output") {
		t.Errorf("priming content lost")
	}
	last := model.messages[len(model.messages)-1]
	if !strings.Contains(last.Content, "output 9") {
		t.Errorf("recent message lost, last = %q", last.Content)
	}
}

func TestModelPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.json")
	completer := &fakeCompleter{
		replies: []string{`{"command": "continue"}`},
	}
	model := newTestModel(completer, 10, path, io.Discard)

	model.ReceiveOutput("session output\n")
	if _, err := model.NextCommand(context.Background()); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var messages []backends.Message
	if err := json.Unmarshal(content, &messages); err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("persisted %d messages", len(messages))
	}
	if messages[1].Role != backends.RoleAssistant {
		t.Errorf("last persisted role = %q", messages[1].Role)
	}
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		reply       string
		command     string
		explanation string
	}{
		{
			reply:       `{"command": "p x", "explanation": "check x"}`,
			command:     "p x",
			explanation: "check x",
		},
		{
			reply:   "Let me look at the locals first.\n{\"command\": \"locals\"}\nThat should help.",
			command: "locals",
		},
		{
			reply:   `{"command": "! s = \"{not a brace}\"", "explanation": ""}`,
			command: `! s = "{not a brace}"`,
		},
		{
			// no JSON at all, the raw text becomes the command
			reply:   "well, try list",
			command: "well, try list",
		},
		{
			// malformed JSON falls back to the raw reply
			reply:   `{"command": locals}`,
			command: `{"command": locals}`,
		},
		{
			// empty command field falls back too
			reply:   `{"explanation": "thinking"}`,
			command: `{"explanation": "thinking"}`,
		},
	}
	for _, c := range cases {
		command, explanation := parseReply(c.reply)
		if command != c.command {
			t.Errorf("parseReply(%q) command = %q, want %q", c.reply, command, c.command)
		}
		if explanation != c.explanation {
			t.Errorf("parseReply(%q) explanation = %q, want %q", c.reply, explanation, c.explanation)
		}
	}
}
