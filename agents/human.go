package agents

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// Human blocks on a terminal prompt and returns exactly what is typed.
type Human struct {
	in  io.Reader
	out io.Writer

	once    sync.Once
	lines   chan string
	readErr error
}

var _ Agent = new(Human)

func NewHuman(in io.Reader, out io.Writer) *Human {
	return &Human{
		in:    in,
		out:   out,
		lines: make(chan string),
	}
}

func (h *Human) ReceiveOutput(text string) {
	fmt.Fprint(h.out, text)
}

func (h *Human) NextCommand(ctx context.Context) (string, error) {
	h.once.Do(func() {
		go func() {
			defer close(h.lines)
			scanner := bufio.NewScanner(h.in)
			for scanner.Scan() {
				h.lines <- scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				h.readErr = err
			} else {
				h.readErr = io.EOF
			}
		}()
	})

	fmt.Fprint(h.out, "(vdb) ")
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-h.lines:
		if !ok {
			return "", h.readErr
		}
		return line, nil
	}
}
