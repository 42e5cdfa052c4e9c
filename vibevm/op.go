package vibevm

type OpCode uint32

const (
	OpLoadConst OpCode = iota + 8
	OpLoadVar
	OpDefVar
	OpPop
	OpDup
	OpDup2
	OpJump
	OpJumpFalse
	OpCall
	OpCallKw
	OpReturn
	OpSuspend
	OpEnterScope
	OpLeaveScope
	OpMakeClosure
	OpMakeList
	OpMakeTuple
	OpMakeMap
	OpGetIndex
	OpSetIndex
	OpGetSlice
	OpSetSlice
	OpGetAttr
	OpSetAttr
	OpGetIter
	OpNextIter
	OpUnpack
	OpListAppend
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpBitLsh
	OpBitRsh
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpContains
	OpNot
	OpNeg
	OpGuard
)

func (o OpCode) With(arg int) OpCode {
	return o | (OpCode(arg) << 8)
}
