package trapframe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ukern/trapframe"
)

func TestCopy(t *testing.T) {
	tf := &trapframe.Trapframe{V0: trapframe.SYS_fork, SP: 0x7ffffff0, EPC: 0x400100}
	c := tf.Copy()
	assert.Equal(t, tf.SP, c.SP)
	c.V0 = 0
	c.EPC += trapframe.INSN_SIZE
	assert.Equal(t, uint32(trapframe.SYS_fork), tf.V0, "original untouched")
	assert.Equal(t, uint32(0x400100), tf.EPC)
}
