package sc

import (
	"testing"

	"llbp-sim/internal/bp/tage"
	"llbp-sim/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadGeometry(t *testing.T) {
	_, err := New(tage.New64K(), Config{LogSize: 0})
	assert.Error(t, err)

	_, err = New(tage.New64K(), Config{LogSize: 10, HistLengths: []int{0, 80}})
	assert.Error(t, err)
}

func TestPredictor_LearnsBiasedBranch(t *testing.T) {
	for name, p := range map[string]*Predictor{"64K": New64K(), "512K": New512K()} {
		t.Run(name, func(t *testing.T) {
			br := common.CondBranch(0x3000, 0x3100)
			for i := 0; i < 100; i++ {
				p.Update(br.PC, false, br)
			}
			assert.False(t, p.Predict(br.PC))
		})
	}
}

func TestPredictor_AccuracyOnCorrelatedStream(t *testing.T) {
	p := New64K()
	a := common.CondBranch(0x1000, 0)
	b := common.CondBranch(0x1010, 0)

	correct, total := 0, 0
	for i := 0; i < 8000; i++ {
		first := i%4 < 2
		// b repeats a's outcome.
		for _, step := range []struct {
			br    common.Branch
			taken bool
		}{{a, first}, {b, first}} {
			if i >= 6000 {
				total++
				if p.Predict(step.br.PC) == step.taken {
					correct++
				}
			}
			p.Update(step.br.PC, step.taken, step.br)
		}
	}
	require.NotZero(t, total)
	assert.Greater(t, float64(correct)/float64(total), 0.9)
}

func TestLookup_DoesNotMutate(t *testing.T) {
	p := New64K()
	for i := 0; i < 500; i++ {
		br := common.CondBranch(0x2000+uint64(i%11)*8, 0)
		p.Update(br.PC, i%4 != 0, br)
	}
	threshold := p.threshold
	r1 := p.Lookup(0x2008)
	r2 := p.Lookup(0x2008)
	assert.Equal(t, r1, r2)
	assert.Equal(t, threshold, p.threshold)
}

func TestSat(t *testing.T) {
	var c int8
	for i := 0; i < 100; i++ {
		c = sat(c, true)
	}
	assert.Equal(t, int8(31), c)
	for i := 0; i < 100; i++ {
		c = sat(c, false)
	}
	assert.Equal(t, int8(-32), c)
}
