package vibevm

type Function struct {
	Name        string
	NumParams   int
	ParamNames  []string
	Variadic    bool
	NumDefaults int
	Code        []OpCode
	Constants   []any

	// source metadata, set by the compiler when known
	Filename    string
	FirstLine   int
	SourceLines []string

	// non-nil when the function body carries statement guards
	Guards []StmtInfo
}
