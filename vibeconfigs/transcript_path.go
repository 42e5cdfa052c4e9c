package vibeconfigs

import (
	"github.com/vibego/vibego/cmds"
	"github.com/vibego/vibego/configs"
	"github.com/vibego/vibego/vars"
)

// TranscriptPath is the side-log file the model agent overwrites with
// its full message history every cycle. Empty disables persistence.
type TranscriptPath string

var _ configs.Configurable = TranscriptPath("")

func (t TranscriptPath) ConfigExpr() string {
	return "TranscriptPath"
}

var transcriptFlag = cmds.Var[string]("-transcript")

func (Module) TranscriptPath(
	loader configs.Loader,
) TranscriptPath {
	return TranscriptPath(vars.FirstNonZero(
		*transcriptFlag,
		configs.First[string](loader, "transcript_path"),
		"vibego_transcript.json",
	))
}
