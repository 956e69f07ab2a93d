// Package tage implements a TAgged GEometric history length branch predictor.
//
// A bimodal base table always provides a prediction; tagged tables indexed by
// progressively longer slices of global history override it when their tag
// matches. The longest matching table is the provider, the next one the
// alternate.
package tage

import (
	"fmt"
	"math"

	"llbp-sim/internal/common"
)

const (
	bimodalBits = 2
	usefulMax   = 3
	pathBits    = 16
)

// Config sets the predictor geometry.
type Config struct {
	LogBimodal   int   // log2 of bimodal entries
	LogEntries   int   // log2 of entries per tagged table
	HistLengths  []int // per tagged table, ascending
	TagWidths    []int // per tagged table
	CtrBits      int   // width of tagged prediction counters
	UsefulPeriod int   // log2 of conditional branches between useful-bit decays
}

// Default64K returns the 64KB-class geometry.
func Default64K() Config {
	return Config{
		LogBimodal:   13,
		LogEntries:   10,
		HistLengths:  geometricLengths(12, 4, 640),
		TagWidths:    []int{8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13, 14},
		CtrBits:      3,
		UsefulPeriod: 18,
	}
}

// Geometry512K returns the 512KB-class geometry.
func Geometry512K() Config {
	return Config{
		LogBimodal:   15,
		LogEntries:   13,
		HistLengths:  geometricLengths(15, 4, 1400),
		TagWidths:    []int{8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13, 14, 14, 15, 15},
		CtrBits:      3,
		UsefulPeriod: 19,
	}
}

func geometricLengths(n, minLen, maxLen int) []int {
	lengths := make([]int, n)
	for i := range lengths {
		ratio := float64(i) / float64(n-1)
		lengths[i] = int(float64(minLen)*math.Pow(float64(maxLen)/float64(minLen), ratio) + 0.5)
	}
	return lengths
}

// Validate checks the geometry is buildable.
func (c Config) Validate() error {
	if c.LogBimodal <= 0 || c.LogBimodal > 24 {
		return fmt.Errorf("log bimodal size must be between 1 and 24, got %d", c.LogBimodal)
	}
	if c.LogEntries <= 0 || c.LogEntries > 24 {
		return fmt.Errorf("log table size must be between 1 and 24, got %d", c.LogEntries)
	}
	if len(c.HistLengths) == 0 {
		return fmt.Errorf("at least one tagged table is required")
	}
	if len(c.TagWidths) != len(c.HistLengths) {
		return fmt.Errorf("got %d tag widths for %d tables", len(c.TagWidths), len(c.HistLengths))
	}
	for i, l := range c.HistLengths {
		if l <= 0 || (i > 0 && l <= c.HistLengths[i-1]) {
			return fmt.Errorf("history lengths must be positive and ascending, got %v", c.HistLengths)
		}
		if c.TagWidths[i] < 2 || c.TagWidths[i] > 16 {
			return fmt.Errorf("table %d: tag width must be between 2 and 16, got %d", i, c.TagWidths[i])
		}
	}
	if c.CtrBits < 2 || c.CtrBits > 7 {
		return fmt.Errorf("counter width must be between 2 and 7, got %d", c.CtrBits)
	}
	if c.UsefulPeriod <= 0 || c.UsefulPeriod > 30 {
		return fmt.Errorf("useful period must be between 1 and 30, got %d", c.UsefulPeriod)
	}
	return nil
}

type entry struct {
	tag    uint16
	ctr    int8
	useful uint8
}

// Confidence grades how strongly the provider counter is saturated.
type Confidence uint8

const (
	LowConf Confidence = iota
	MediumConf
	HighConf
)

// Result is the full outcome of a table lookup.
type Result struct {
	Pred     bool
	Provider int // tagged table index, -1 when the bimodal table provides
	Alt      int // -1 when the bimodal table is the alternate
	ProvPred bool
	AltPred  bool
	UsedAlt  bool
	Conf     Confidence
	HistLen  int // history length of the provider, 0 for bimodal

	indices []uint32
	tags    []uint16
}

// Predictor is a TAGE branch predictor.
type Predictor struct {
	cfg      Config
	bimodal  []int8
	tables   [][]entry
	ghist    *globalHistory
	phist    uint32
	idxFold  []foldedHistory
	tagFold0 []foldedHistory
	tagFold1 []foldedHistory
	useAlt   int8
	ticks    uint64
}

// New builds a predictor with the given geometry.
func New(cfg Config) (*Predictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid TAGE geometry: %w", err)
	}

	n := len(cfg.HistLengths)
	p := &Predictor{
		cfg:      cfg,
		bimodal:  make([]int8, 1<<cfg.LogBimodal),
		tables:   make([][]entry, n),
		ghist:    newGlobalHistory(cfg.HistLengths[n-1]),
		idxFold:  make([]foldedHistory, n),
		tagFold0: make([]foldedHistory, n),
		tagFold1: make([]foldedHistory, n),
	}
	for i := range p.tables {
		p.tables[i] = make([]entry, 1<<cfg.LogEntries)
		p.idxFold[i] = newFoldedHistory(cfg.HistLengths[i], cfg.LogEntries)
		p.tagFold0[i] = newFoldedHistory(cfg.HistLengths[i], cfg.TagWidths[i])
		p.tagFold1[i] = newFoldedHistory(cfg.HistLengths[i], cfg.TagWidths[i]-1)
	}
	return p, nil
}

// New64K builds the default 64KB predictor.
func New64K() *Predictor {
	p, err := New(Default64K())
	if err != nil {
		panic(err)
	}
	return p
}

// Config returns the geometry the predictor was built with.
func (p *Predictor) Config() Config {
	return p.cfg
}

// NumTables returns the number of tagged tables.
func (p *Predictor) NumTables() int {
	return len(p.tables)
}

// HistLength returns the history length of tagged table t.
func (p *Predictor) HistLength(t int) int {
	return p.cfg.HistLengths[t]
}

// HistoryHash mixes pc with the folded history of table t. Layered predictors
// use it to key their own structures on the same history slices.
func (p *Predictor) HistoryHash(pc uint64, t int) uint32 {
	h := uint32(pc>>2) ^ uint32(pc>>14)
	h ^= p.idxFold[t].comp<<7 ^ p.tagFold0[t].comp ^ p.tagFold1[t].comp<<3
	return h*0x9E3779B1 ^ uint32(t)
}

func (p *Predictor) index(pc uint64, t int) uint32 {
	shift := p.cfg.LogEntries - t%p.cfg.LogEntries
	path := p.phist & ((1 << min(p.cfg.HistLengths[t], pathBits)) - 1)
	h := uint32(pc>>2) ^ uint32(pc>>2)>>shift ^ p.idxFold[t].comp ^ path ^ path>>p.cfg.LogEntries
	return h & ((1 << p.cfg.LogEntries) - 1)
}

func (p *Predictor) tag(pc uint64, t int) uint16 {
	w := p.cfg.TagWidths[t]
	h := uint32(pc>>2) ^ p.tagFold0[t].comp ^ p.tagFold1[t].comp<<1
	return uint16(h & ((1 << w) - 1))
}

func (p *Predictor) bimodalIndex(pc uint64) uint32 {
	return uint32(pc>>2) & ((1 << p.cfg.LogBimodal) - 1)
}

// Lookup computes the prediction without touching predictor state.
func (p *Predictor) Lookup(pc uint64) Result {
	n := len(p.tables)
	r := Result{
		Provider: -1,
		Alt:      -1,
		indices:  make([]uint32, n),
		tags:     make([]uint16, n),
	}

	for t := 0; t < n; t++ {
		r.indices[t] = p.index(pc, t)
		r.tags[t] = p.tag(pc, t)
	}
	for t := n - 1; t >= 0; t-- {
		if p.tables[t][r.indices[t]].tag != r.tags[t] {
			continue
		}
		if r.Provider < 0 {
			r.Provider = t
		} else {
			r.Alt = t
			break
		}
	}

	bim := p.bimodal[p.bimodalIndex(pc)]
	if r.Alt >= 0 {
		r.AltPred = p.tables[r.Alt][r.indices[r.Alt]].ctr >= 0
	} else {
		r.AltPred = bim >= 0
	}

	if r.Provider < 0 {
		r.ProvPred = bim >= 0
		r.Pred = r.ProvPred
		r.Conf = bimodalConf(bim)
		return r
	}

	e := p.tables[r.Provider][r.indices[r.Provider]]
	r.ProvPred = e.ctr >= 0
	r.HistLen = p.cfg.HistLengths[r.Provider]
	r.Conf = taggedConf(e.ctr, p.cfg.CtrBits)
	weak := e.ctr == 0 || e.ctr == -1
	if weak && e.useful == 0 && p.useAlt >= 0 {
		r.UsedAlt = true
		r.Pred = r.AltPred
	} else {
		r.Pred = r.ProvPred
	}
	return r
}

func bimodalConf(ctr int8) Confidence {
	if ctr == 1 || ctr == -2 {
		return HighConf
	}
	return MediumConf
}

func taggedConf(ctr int8, bits int) Confidence {
	mag := int(ctr)*2 + 1
	if mag < 0 {
		mag = -mag
	}
	switch {
	case mag >= (1<<bits)-1:
		return HighConf
	case mag > 1:
		return MediumConf
	default:
		return LowConf
	}
}

// Predict returns the predicted direction for the branch at pc.
func (p *Predictor) Predict(pc uint64) bool {
	return p.Lookup(pc).Pred
}

// Update trains on the resolved outcome and advances the histories.
func (p *Predictor) Update(pc uint64, taken bool, br common.Branch) {
	if br.IsConditional() {
		p.Train(pc, taken, p.Lookup(pc))
	}
	p.UpdateHistory(pc, taken, br)
}

// Train updates the tables from a lookup made on the current history. Callers
// that layer on top of TAGE use it with the lookup they already hold and then
// call UpdateHistory.
func (p *Predictor) Train(pc uint64, taken bool, r Result) {
	n := len(p.tables)

	if r.Provider >= 0 {
		e := &p.tables[r.Provider][r.indices[r.Provider]]
		weak := e.ctr == 0 || e.ctr == -1
		if weak && e.useful == 0 && r.ProvPred != r.AltPred {
			if r.AltPred == taken {
				p.useAlt = satUpdate(p.useAlt, true, 4)
			} else {
				p.useAlt = satUpdate(p.useAlt, false, 4)
			}
		}
	}

	if r.Pred != taken && r.Provider < n-1 {
		p.allocate(taken, r)
	}

	if r.Provider < 0 {
		bi := p.bimodalIndex(pc)
		p.bimodal[bi] = satUpdate(p.bimodal[bi], taken, bimodalBits)
	} else {
		e := &p.tables[r.Provider][r.indices[r.Provider]]
		if e.useful == 0 && (e.ctr == 0 || e.ctr == -1) {
			if r.Alt >= 0 {
				a := &p.tables[r.Alt][r.indices[r.Alt]]
				a.ctr = satUpdate(a.ctr, taken, p.cfg.CtrBits)
			} else {
				bi := p.bimodalIndex(pc)
				p.bimodal[bi] = satUpdate(p.bimodal[bi], taken, bimodalBits)
			}
		}
		e.ctr = satUpdate(e.ctr, taken, p.cfg.CtrBits)
		if r.ProvPred != r.AltPred {
			if r.ProvPred == taken {
				if e.useful < usefulMax {
					e.useful++
				}
			} else if e.useful > 0 {
				e.useful--
			}
		}
	}

	p.ticks++
	if p.ticks&((1<<p.cfg.UsefulPeriod)-1) == 0 {
		for _, table := range p.tables {
			for i := range table {
				table[i].useful >>= 1
			}
		}
	}
}

// allocate claims at most two free entries in tables longer than the provider,
// leaving a table between them.
func (p *Predictor) allocate(taken bool, r Result) {
	allocated := 0
	start := r.Provider + 1
	for t := start; t < len(p.tables) && allocated < 2; t++ {
		e := &p.tables[t][r.indices[t]]
		if e.useful != 0 {
			continue
		}
		e.tag = r.tags[t]
		e.useful = 0
		if taken {
			e.ctr = 0
		} else {
			e.ctr = -1
		}
		allocated++
		t++
	}
	if allocated > 0 {
		return
	}
	for t := start; t < len(p.tables); t++ {
		e := &p.tables[t][r.indices[t]]
		if e.useful > 0 {
			e.useful--
		}
	}
}

// UpdateHistory shifts the outcome of any branch into the global and path
// histories.
func (p *Predictor) UpdateHistory(pc uint64, taken bool, br common.Branch) {
	if !br.IsConditional() {
		taken = true
	}
	p.ghist.push(taken)
	p.phist = (p.phist<<1 ^ uint32(pc>>2)&1) & ((1 << pathBits) - 1)
	for i := range p.idxFold {
		p.idxFold[i].update(p.ghist)
		p.tagFold0[i].update(p.ghist)
		p.tagFold1[i].update(p.ghist)
	}
}
