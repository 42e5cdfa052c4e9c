package vibepy

import (
	"io"

	"github.com/vibego/vibego/vibevm"
)

func NewVM(name string, source io.Reader) (*vibevm.VM, error) {
	fn, err := Compile(name, source)
	if err != nil {
		return nil, err
	}

	vm := vibevm.NewVM(fn)
	DefBuiltins(vm)

	return vm, nil
}

func DefBuiltins(vm *vibevm.VM) {
	vm.Def("len", Len)
	vm.Def("range", Range)
	vm.Def("print", Print)
	vm.Def("str", StrFunc)
	vm.Def("repr", ReprFunc)
	vm.Def("int", Int)
	vm.Def("float", Float)
	vm.Def("bool", Bool)
	vm.Def("type", Type)
	vm.Def("pow", Pow)
	vm.Def("abs", Abs)
	vm.Def("sqrt", Sqrt)
	vm.Def("round", Round)
	vm.Def("min", Min)
	vm.Def("max", Max)
	vm.Def("sum", Sum)
	vm.Def("sorted", Sorted)
	vm.Def("json_loads", JSONLoads)
	vm.Def("json_dumps", JSONDumps)
}
