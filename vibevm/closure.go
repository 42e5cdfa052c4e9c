package vibevm

type Closure struct {
	Fun      *Function
	Env      *Env
	Defaults []any
}
