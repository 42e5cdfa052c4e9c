package agents

import "context"

// Agent decides the next debugger command from buffered session
// output. ReceiveOutput for one cycle always completes before
// NextCommand for that cycle is issued.
type Agent interface {
	ReceiveOutput(text string)
	NextCommand(ctx context.Context) (string, error)
}
