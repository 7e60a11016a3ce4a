package model

import (
	"reflect"

	"github.com/grailbio/base/log"
)

func panicf(format string, args ...interface{}) {
	log.Panicf(format, args...)
}

// funcEqual compares callbacks by code pointer; Go funcs are otherwise not
// comparable.
func funcEqual(a, b CalcFunc) bool {
	return funcPtr(a) == funcPtr(b)
}

func prepEqual(a, b PrepFunc) bool {
	return funcPtr(a) == funcPtr(b)
}

func funcPtr(f interface{}) uintptr {
	v := reflect.ValueOf(f)
	if v.IsNil() {
		return 0
	}
	return v.Pointer()
}
