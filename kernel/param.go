package kernel

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"ukern/serr"
	"ukern/vm"
)

const (
	PARAM_ENV_PREFIX = "UKERN_"
	ARG_SLACK        = 16
)

type Param struct {
	MaxProcs        int           `yaml:"max_procs" mapstructure:"max_procs"`
	MaxThreads      int           `yaml:"max_threads" mapstructure:"max_threads"`
	PhysPages       int           `yaml:"phys_pages" mapstructure:"phys_pages"`
	StackPages      int           `yaml:"stack_pages" mapstructure:"stack_pages"`
	ArgMax          int           `yaml:"arg_max" mapstructure:"arg_max"`
	PathMax         int           `yaml:"path_max" mapstructure:"path_max"`
	History         int           `yaml:"history" mapstructure:"history"`
	DeadlockTimeout time.Duration `yaml:"deadlock_timeout" mapstructure:"deadlock_timeout"`
	Programs        string        `yaml:"programs" mapstructure:"programs"`
}

func DefaultParam() *Param {
	return &Param{
		MaxProcs:        1024,
		MaxThreads:      1024,
		PhysPages:       16384,
		StackPages:      12,
		ArgMax:          16384,
		PathMax:         1024,
		History:         64,
		DeadlockTimeout: 0,
	}
}

func (p *Param) String() string {
	return fmt.Sprintf("{procs %d threads %d pages %d stack %d argmax %d pathmax %d hist %d deadlock %v programs %q}",
		p.MaxProcs, p.MaxThreads, p.PhysPages, p.StackPages, p.ArgMax, p.PathMax, p.History, p.DeadlockTimeout, p.Programs)
}

func (p *Param) validate() error {
	for k, v := range map[string]int{
		"max_procs":   p.MaxProcs,
		"max_threads": p.MaxThreads,
		"phys_pages":  p.PhysPages,
		"stack_pages": p.StackPages,
		"arg_max":     p.ArgMax,
		"path_max":    p.PathMax,
	} {
		if v <= 0 {
			return serr.NewErr(serr.TErrInval, fmt.Sprintf("%s %d", k, v))
		}
	}
	if p.History < 0 || p.DeadlockTimeout < 0 {
		return serr.NewErr(serr.TErrInval, p.String())
	}
	// Laid out on the stack, each argument can take up to twice what it
	// counts against arg_max (an empty string pads to a word next to
	// its pointer), plus the NULL pointer and alignment.
	if 2*p.ArgMax+ARG_SLACK > p.StackPages*vm.PAGE_SIZE {
		return serr.NewErr(serr.TErrInval, fmt.Sprintf("arg_max %d doesn't fit %d stack pages", p.ArgMax, p.StackPages))
	}
	return nil
}

// The keys a parameter file may set
func paramKeys() []string {
	keys := make([]string, 0)
	t := reflect.TypeOf(Param{})
	for i := 0; i < t.NumField(); i++ {
		keys = append(keys, t.Field(i).Tag.Get("mapstructure"))
	}
	return keys
}

// Read parameters from the YAML file pn, if pn isn't empty, and then
// from UKERN_<KEY> environment variables. Unset parameters keep their
// defaults.
func ReadParam(pn string) (*Param, error) {
	m := make(map[string]interface{})
	if pn != "" {
		b, err := os.ReadFile(pn)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &m); err != nil {
			return nil, serr.NewErrError(err)
		}
	}
	for _, k := range paramKeys() {
		if v, ok := os.LookupEnv(PARAM_ENV_PREFIX + strings.ToUpper(k)); ok {
			m[k] = v
		}
	}
	return decodeParam(m)
}

func decodeParam(m map[string]interface{}) (*Param, error) {
	param := DefaultParam()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           param,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, serr.NewErr(serr.TErrInval, err.Error())
	}
	if err := param.validate(); err != nil {
		return nil, err
	}
	return param, nil
}
