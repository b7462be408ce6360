package proc

import (
	"fmt"
)

// Exit state of a process: Running, or Exited with a code. A process
// moves from Running to Exited exactly once.
type ExitState struct {
	exited bool
	code   int
}

func Running() ExitState {
	return ExitState{}
}

func Exited(code int) ExitState {
	return ExitState{exited: true, code: code}
}

func (es ExitState) IsRunning() bool {
	return !es.exited
}

func (es ExitState) IsExited() bool {
	return es.exited
}

func (es ExitState) Code() (int, bool) {
	return es.code, es.exited
}

func (es ExitState) String() string {
	if es.exited {
		return fmt.Sprintf("Exited(%d)", es.code)
	}
	return "Running"
}

// Encoded status as reported by waitpid. The low two bits say how the
// process ended; the rest is the value.
type WaitStatus int32

const (
	WEXITED WaitStatus = 0
)

func MkWaitExit(code int) WaitStatus {
	return WaitStatus((code&0xff)<<2) | WEXITED
}

func (ws WaitStatus) how() WaitStatus {
	return ws & 3
}

func (ws WaitStatus) val() int {
	return int(ws >> 2)
}

func (ws WaitStatus) Exited() bool {
	return ws.how() == WEXITED
}

func (ws WaitStatus) ExitStatus() int {
	return ws.val()
}

func (ws WaitStatus) String() string {
	if ws.Exited() {
		return fmt.Sprintf("exit %d", ws.ExitStatus())
	}
	return fmt.Sprintf("unknown status %#x", int32(ws))
}
