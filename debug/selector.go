package debug

type Tselector string

// ALWAYS
const (
	ALWAYS Tselector = "ALWAYS"
)

// ERR
const (
	ERR Tselector = "_ERR"
)

// Tests
const (
	TEST  Tselector = "TEST"
	BENCH Tselector = "BENCH"
)

// Kernel
const (
	KERNEL     Tselector = "KERNEL"
	KERNEL_ERR Tselector = KERNEL + ERR
)

// Process records and the process table
const (
	PROC        Tselector = "PROC"
	PROC_ERR    Tselector = PROC + ERR
	PROCTAB     Tselector = "PROCTAB"
	PROCTAB_ERR Tselector = PROCTAB + ERR
)

// Execution units
const (
	THREAD     Tselector = "THREAD"
	THREAD_ERR Tselector = THREAD + ERR
)

// Memory and program images
const (
	VM         Tselector = "VM"
	VM_ERR     Tselector = VM + ERR
	LOADER     Tselector = "LOADER"
	LOADER_ERR Tselector = LOADER + ERR
)

// Process syscalls
const (
	SYSCALL     Tselector = "SYSCALL"
	SYSCALL_ERR Tselector = SYSCALL + ERR
	FORK        Tselector = "FORK"
	FORK_ERR    Tselector = FORK + ERR
	EXEC        Tselector = "EXEC"
	EXEC_ERR    Tselector = EXEC + ERR
	EXIT        Tselector = "EXIT"
	EXIT_ERR    Tselector = EXIT + ERR
	WAIT        Tselector = "WAIT"
	WAIT_ERR    Tselector = WAIT + ERR
)

// User programs
const (
	USER     Tselector = "USER"
	USER_ERR Tselector = USER + ERR
)
