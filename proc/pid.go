package proc

import (
	"strconv"
)

type Tpid int32

const (
	NO_PID  Tpid = 0
	PID_MIN Tpid = 2
)

func (pid Tpid) String() string {
	return strconv.Itoa(int(pid))
}
