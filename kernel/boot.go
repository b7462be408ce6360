package kernel

import (
	db "ukern/debug"
)

// Boot a kernel with the parameters in pn (or defaults if pn is empty).
func BootUp(pn string) (*Kernel, error) {
	db.DPrintf(db.KERNEL, "Boot %q\n", pn)
	param, err := ReadParam(pn)
	if err != nil {
		return nil, err
	}
	db.DPrintf(db.KERNEL, "Boot %q param %v\n", pn, param)
	return NewKernel(param)
}
