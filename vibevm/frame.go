package vibevm

type Frame struct {
	Fun      *Function
	ReturnIP int
	Env      *Env
	BaseEnv  *Env
	BaseSP   int
	BP       int

	GuardStmt int
	GuardSP   int
	GuardEnv  *Env
}
