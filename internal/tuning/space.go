// Package tuning searches the LLBP parameter space against an external
// evaluator, either by random sampling of a discrete grid or with a genetic
// algorithm.
package tuning

import (
	"fmt"
	"math/rand"
	"sort"

	"llbp-sim/internal/bp"
	"llbp-sim/internal/bp/llbp"
	"llbp-sim/internal/common"
)

// Candidate maps configuration document keys to values.
type Candidate map[string]int

// Clone returns an independent copy of c.
func (c Candidate) Clone() Candidate {
	out := make(Candidate, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Config binds c through the predictor factory, so only candidates the timing
// LLBP variant accepts yield a configuration. Keys c leaves out keep their
// defaults only when they are optional.
func (c Candidate) Config() (llbp.Config, error) {
	values := make(map[string]any, len(c))
	for k, v := range c {
		values[k] = v
	}
	doc, err := bp.NewDocument(values)
	if err != nil {
		return llbp.Config{}, err
	}
	p, err := bp.CreateBPWithConfig(common.PredictorLLBPTiming, doc)
	if err != nil {
		return llbp.Config{}, err
	}
	conf, ok := bp.ConfigOf(p)
	if !ok {
		return llbp.Config{}, fmt.Errorf("predictor %s exposes no configuration", common.PredictorLLBPTiming)
	}
	return conf, nil
}

// Param is one dimension of a continuous search space.
type Param struct {
	Key        string
	Low, High  int
	PowerOfTwo bool // draw only powers of two within [Low, High]
}

func (p Param) draw(rng *rand.Rand) int {
	if !p.PowerOfTwo {
		return p.Low + rng.Intn(p.High-p.Low+1)
	}
	powers := powersOfTwo(p.Low, p.High)
	return powers[rng.Intn(len(powers))]
}

func powersOfTwo(low, high int) []int {
	var out []int
	for v := 1; v <= high; v <<= 1 {
		if v >= low {
			out = append(out, v)
		}
	}
	return out
}

// Space is the genetic search space.
type Space struct {
	Params []Param
}

// DefaultSpace covers every LLBP parameter, accessDelay included.
func DefaultSpace() Space {
	return Space{Params: []Param{
		{Key: "numPatterns", Low: 4, High: 64, PowerOfTwo: true},
		{Key: "numContexts", Low: 1024, High: 8192, PowerOfTwo: true},
		{Key: "ctxAssoc", Low: 1, High: 16, PowerOfTwo: true},
		{Key: "ptrnAssoc", Low: 1, High: 16, PowerOfTwo: true},
		{Key: "TTWidth", Low: 1, High: 32},
		{Key: "CTWidth", Low: 1, High: 32},
		{Key: "pbSize", Low: 16, High: 256, PowerOfTwo: true},
		{Key: "pbAssoc", Low: 1, High: 16, PowerOfTwo: true},
		{Key: "CtrWidth", Low: 1, High: 32},
		{Key: "ReplCtrWidth", Low: 1, High: 32},
		{Key: "CtxReplCtrWidth", Low: 1, High: 32},
		{Key: "accessDelay", Low: 1, High: 32},
	}}
}

// Validate rejects empty or inverted ranges.
func (s Space) Validate() error {
	if len(s.Params) == 0 {
		return fmt.Errorf("search space has no parameters")
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if seen[p.Key] {
			return fmt.Errorf("parameter %s listed twice", p.Key)
		}
		seen[p.Key] = true
		if p.Low > p.High {
			return fmt.Errorf("parameter %s: low %d above high %d", p.Key, p.Low, p.High)
		}
		if p.PowerOfTwo && len(powersOfTwo(p.Low, p.High)) == 0 {
			return fmt.Errorf("parameter %s: no power of two in [%d, %d]", p.Key, p.Low, p.High)
		}
	}
	return nil
}

// Random draws a candidate uniformly from every range.
func (s Space) Random(rng *rand.Rand) Candidate {
	c := make(Candidate, len(s.Params))
	for _, p := range s.Params {
		c[p.Key] = p.draw(rng)
	}
	return c
}

// Mutate redraws each parameter of c with probability rate. c is not modified.
func (s Space) Mutate(rng *rand.Rand, c Candidate, rate float64) Candidate {
	out := c.Clone()
	for _, p := range s.Params {
		if rng.Float64() < rate {
			out[p.Key] = p.draw(rng)
		}
	}
	return out
}

// Crossover takes every key of a from either parent with equal probability.
func Crossover(rng *rand.Rand, a, b Candidate) Candidate {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	child := make(Candidate, len(a))
	for _, k := range keys {
		child[k] = a[k]
		if v, ok := b[k]; ok && rng.Intn(2) == 1 {
			child[k] = v
		}
	}
	return child
}

// GridParam is one dimension of a discrete grid.
type GridParam struct {
	Key    string
	Values []int
}

// Grid is the cartesian product of its parameters. It is never materialised.
type Grid struct {
	Params []GridParam
}

func rangeValues(low, high int) []int {
	out := make([]int, 0, high-low+1)
	for v := low; v <= high; v++ {
		out = append(out, v)
	}
	return out
}

// DefaultGrid is the grid-search space over the required LLBP keys.
func DefaultGrid() Grid {
	return Grid{Params: []GridParam{
		{Key: "numPatterns", Values: powersOfTwo(4, 256)},
		{Key: "numContexts", Values: powersOfTwo(1024, 8192)},
		{Key: "ctxAssoc", Values: powersOfTwo(2, 16)},
		{Key: "ptrnAssoc", Values: powersOfTwo(2, 16)},
		{Key: "TTWidth", Values: rangeValues(10, 14)},
		{Key: "CTWidth", Values: rangeValues(10, 14)},
		{Key: "pbSize", Values: powersOfTwo(16, 128)},
		{Key: "pbAssoc", Values: powersOfTwo(1, 16)},
		{Key: "CtrWidth", Values: rangeValues(1, 5)},
		{Key: "ReplCtrWidth", Values: powersOfTwo(1, 32)},
		{Key: "CtxReplCtrWidth", Values: powersOfTwo(1, 32)},
	}}
}

// Size is the number of grid points.
func (g Grid) Size() int {
	if len(g.Params) == 0 {
		return 0
	}
	n := 1
	for _, p := range g.Params {
		n *= len(p.Values)
	}
	return n
}

// At returns grid point i in mixed radix order, the last parameter varying
// fastest. i must be in [0, Size()).
func (g Grid) At(i int) Candidate {
	c := make(Candidate, len(g.Params))
	for j := len(g.Params) - 1; j >= 0; j-- {
		p := g.Params[j]
		c[p.Key] = p.Values[i%len(p.Values)]
		i /= len(p.Values)
	}
	return c
}

// sampler draws indices in [0, n) without replacement. Only swapped positions
// are stored.
type sampler struct {
	n       int
	swapped map[int]int
}

func newSampler(n int) *sampler {
	return &sampler{n: n, swapped: make(map[int]int)}
}

func (s *sampler) remaining() int {
	return s.n
}

func (s *sampler) next(rng *rand.Rand) int {
	j := rng.Intn(s.n)
	s.n--
	v := s.at(j)
	s.swapped[j] = s.at(s.n)
	delete(s.swapped, s.n)
	return v
}

func (s *sampler) at(i int) int {
	if v, ok := s.swapped[i]; ok {
		return v
	}
	return i
}
