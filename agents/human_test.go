package agents

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestHumanCommands(t *testing.T) {
	var out strings.Builder
	human := NewHuman(strings.NewReader("locals\ncontinue 42\n"), &out)

	human.ReceiveOutput("error: division by zero\n")

	command, err := human.NextCommand(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if command != "locals" {
		t.Errorf("command = %q", command)
	}

	command, err = human.NextCommand(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if command != "continue 42" {
		t.Errorf("command = %q", command)
	}

	if !strings.Contains(out.String(), "error: division by zero") {
		t.Errorf("output not echoed:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "(vdb) ") {
		t.Errorf("prompt missing:\n%s", out.String())
	}
}

func TestHumanEOF(t *testing.T) {
	human := NewHuman(strings.NewReader(""), io.Discard)
	_, err := human.NextCommand(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want io.EOF", err)
	}
}

func TestHumanCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// a reader that never produces a line
	r, _ := io.Pipe()
	human := NewHuman(r, io.Discard)

	_, err := human.NextCommand(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
