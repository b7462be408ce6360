package debug

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
)

const DEBUG_ENV = "UKERNDEBUG"

var (
	mu     sync.Mutex
	tag    string
	labels map[Tselector]bool
)

func init() {
	// XXX may want to set log.Ldate when not debugging
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	labels = debugLabels(os.Getenv(DEBUG_ENV))
}

//
// Debug output is controlled by the UKERNDEBUG environment variable,
// which can be a list of labels (e.g., "FORK;WAIT_ERR").
//

func debugLabels(s string) map[Tselector]bool {
	m := make(map[Tselector]bool)
	if s == "" {
		return m
	}
	for _, l := range strings.Split(s, ";") {
		m[Tselector(l)] = true
	}
	return m
}

// Tag every line with an identifier (e.g., the kernel's boot id).
func SetTag(t string) {
	mu.Lock()
	defer mu.Unlock()
	tag = t
}

// Replace the enabled labels; used by tests and binaries that take a
// -debug flag.
func SetLabels(s string) {
	mu.Lock()
	defer mu.Unlock()
	labels = debugLabels(s)
}

func IsLabelSet(label Tselector) bool {
	mu.Lock()
	defer mu.Unlock()
	return labels[label]
}

func DPrintf(label Tselector, format string, v ...interface{}) {
	mu.Lock()
	ok := labels[label]
	t := tag
	mu.Unlock()
	if ok || label == ALWAYS {
		log.Printf("%v %v %v", t, label, fmt.Sprintf(format, v...))
	}
}

func DFatalf(format string, v ...interface{}) {
	mu.Lock()
	t := tag
	mu.Unlock()
	// Get info for the caller.
	pc, file, line, ok := runtime.Caller(1)
	fnDetails := runtime.FuncForPC(pc)
	if ok && fnDetails != nil {
		log.Fatalf("FATAL %v %v %v:%v %v", t, fnDetails.Name(), file, line, fmt.Sprintf(format, v...))
	} else {
		log.Fatalf("FATAL %v (missing details) %v", t, fmt.Sprintf(format, v...))
	}
}
