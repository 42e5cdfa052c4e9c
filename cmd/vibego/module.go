package main

import (
	"github.com/reusee/dscope"
	"github.com/vibego/vibego/drivers"
)

type Module struct {
	dscope.Module
	Drivers drivers.Module
}
