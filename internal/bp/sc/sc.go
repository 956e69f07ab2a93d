// Package sc layers a statistical corrector over a TAGE predictor.
//
// The corrector sums signed counters from a bias table and a set of global
// history tables. When the sum disagrees with TAGE and is large enough for the
// TAGE confidence level, the corrector's direction wins.
package sc

import (
	"fmt"

	"llbp-sim/internal/bp/tage"
	"llbp-sim/internal/common"
)

const (
	ctrBits      = 6
	thresholdMax = 255
	thresholdMin = 6
	tcBits       = 7
)

// Config sets the corrector geometry.
type Config struct {
	LogSize     int   // log2 entries per GEHL table and the bias table
	HistLengths []int // one GEHL table per entry; at most 64
	Threshold   int   // initial override threshold
}

// Default64K pairs with tage.Default64K.
func Default64K() Config {
	return Config{LogSize: 10, HistLengths: []int{0, 4, 10, 16, 27, 44}, Threshold: 35}
}

// Default512K pairs with tage.Geometry512K.
func Default512K() Config {
	return Config{LogSize: 13, HistLengths: []int{0, 3, 6, 11, 19, 32, 48, 64}, Threshold: 35}
}

// Result extends a TAGE lookup with the corrector's view.
type Result struct {
	Pred       bool
	Tage       tage.Result
	Sum        int
	Overridden bool

	bias  uint32
	gehl  []uint32
	scDir bool
}

// Predictor is a TAGE predictor with a statistical corrector on top.
type Predictor struct {
	tage      *tage.Predictor
	cfg       Config
	bias      []int8
	gehl      [][]int8
	ghist     uint64
	threshold int
	tc        int8
}

// New composes a corrector with an already built TAGE predictor.
func New(t *tage.Predictor, cfg Config) (*Predictor, error) {
	if cfg.LogSize <= 0 || cfg.LogSize > 20 {
		return nil, fmt.Errorf("corrector log size must be between 1 and 20, got %d", cfg.LogSize)
	}
	for _, l := range cfg.HistLengths {
		if l < 0 || l > 64 {
			return nil, fmt.Errorf("corrector history length must be between 0 and 64, got %d", l)
		}
	}
	p := &Predictor{
		tage:      t,
		cfg:       cfg,
		bias:      make([]int8, 1<<cfg.LogSize),
		gehl:      make([][]int8, len(cfg.HistLengths)),
		threshold: cfg.Threshold,
	}
	for i := range p.gehl {
		p.gehl[i] = make([]int8, 1<<cfg.LogSize)
	}
	return p, nil
}

// New64K builds TAGE-SC with the 64KB geometry.
func New64K() *Predictor {
	p, err := New(tage.New64K(), Default64K())
	if err != nil {
		panic(err)
	}
	return p
}

// New512K builds TAGE-SC with the 512KB geometry.
func New512K() *Predictor {
	t, err := tage.New(tage.Geometry512K())
	if err != nil {
		panic(err)
	}
	p, err := New(t, Default512K())
	if err != nil {
		panic(err)
	}
	return p
}

// Tage exposes the underlying TAGE predictor.
func (p *Predictor) Tage() *tage.Predictor {
	return p.tage
}

func centered(ctr int8) int {
	return 2*int(ctr) + 1
}

func (p *Predictor) gehlIndex(pc uint64, i int) uint32 {
	l := p.cfg.HistLengths[i]
	var h uint64
	if l > 0 {
		h = p.ghist
		if l < 64 {
			h &= (1 << l) - 1
		}
	}
	h ^= h >> p.cfg.LogSize
	h ^= h >> (2 * p.cfg.LogSize)
	idx := uint32(pc>>2) ^ uint32(pc>>(2+i)) ^ uint32(h)
	return idx & ((1 << p.cfg.LogSize) - 1)
}

// Lookup computes the combined prediction without touching state.
func (p *Predictor) Lookup(pc uint64) Result {
	tr := p.tage.Lookup(pc)
	r := Result{Tage: tr, gehl: make([]uint32, len(p.gehl))}

	r.bias = (uint32(pc>>2)<<3 | uint32(tr.Conf)<<1 | uint32(b2u(tr.Pred))) & ((1 << p.cfg.LogSize) - 1)
	sum := centered(p.bias[r.bias])
	for i := range p.gehl {
		r.gehl[i] = p.gehlIndex(pc, i)
		sum += centered(p.gehl[i][r.gehl[i]])
	}
	r.Sum = sum
	r.scDir = sum >= 0

	r.Pred = tr.Pred
	if r.scDir != tr.Pred {
		mag := abs(sum)
		switch tr.Conf {
		case tage.HighConf:
			r.Overridden = mag >= p.threshold
		case tage.MediumConf:
			r.Overridden = mag >= p.threshold/2
		default:
			r.Overridden = mag >= p.threshold/4
		}
		if r.Overridden {
			r.Pred = r.scDir
		}
	}
	return r
}

// Predict returns the predicted direction for the branch at pc.
func (p *Predictor) Predict(pc uint64) bool {
	return p.Lookup(pc).Pred
}

// Update trains corrector and TAGE, then advances histories.
func (p *Predictor) Update(pc uint64, taken bool, br common.Branch) {
	if br.IsConditional() {
		p.Train(pc, taken, p.Lookup(pc))
	}
	p.UpdateHistory(pc, taken, br)
}

// Train updates corrector and TAGE tables from a lookup on the current history.
func (p *Predictor) Train(pc uint64, taken bool, r Result) {
	if r.scDir != taken || abs(r.Sum) < p.threshold {
		p.bias[r.bias] = sat(p.bias[r.bias], taken)
		for i := range p.gehl {
			p.gehl[i][r.gehl[i]] = sat(p.gehl[i][r.gehl[i]], taken)
		}
	}

	if r.scDir != r.Tage.Pred {
		if r.scDir != taken {
			p.tc++
		} else {
			p.tc--
		}
		hi := int8(1<<(tcBits-1)) - 1
		if p.tc >= hi && p.threshold < thresholdMax {
			p.threshold++
			p.tc = 0
		} else if p.tc <= -hi && p.threshold > thresholdMin {
			p.threshold--
			p.tc = 0
		}
	}

	p.tage.Train(pc, taken, r.Tage)
}

// UpdateHistory advances both the corrector and TAGE histories.
func (p *Predictor) UpdateHistory(pc uint64, taken bool, br common.Branch) {
	if br.IsConditional() {
		p.ghist = p.ghist<<1 | uint64(b2u(taken))
	}
	p.tage.UpdateHistory(pc, taken, br)
}

func sat(ctr int8, taken bool) int8 {
	hi := int8(1<<(ctrBits-1)) - 1
	if taken {
		if ctr < hi {
			ctr++
		}
	} else if ctr > -hi-1 {
		ctr--
	}
	return ctr
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
