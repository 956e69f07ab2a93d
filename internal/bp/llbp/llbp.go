// Package llbp implements the Last-Level Branch Predictor on top of TAGE-SC.
//
// LLBP keeps a large store of history patterns grouped by program context. The
// context is a hash of recent unconditional branch addresses. Pattern sets of
// upcoming contexts are prefetched into a small pattern buffer, and a buffered
// pattern that matches a longer history than the TAGE provider overrides the
// TAGE-SC prediction.
package llbp

import (
	"fmt"

	"llbp-sim/internal/bp/sc"
	"llbp-sim/internal/common"
)

const (
	ctxWindow = 8 // unconditional branches hashed into a context
	ctxSkip   = 4 // newest branches left out of the current context
)

type pattern struct {
	valid bool
	table int
	tag   uint32
	ctr   int32
	conf  uint64
}

type patternSet struct {
	patterns []pattern
}

type contextEntry struct {
	valid bool
	tag   uint64
	repl  uint64
	set   *patternSet
}

type bufferEntry struct {
	valid   bool
	key     uint64
	readyAt uint64
	lastUse uint64
	set     *patternSet
}

// Result is the full outcome of an LLBP lookup.
type Result struct {
	Pred       bool
	SC         sc.Result
	Hit        bool
	Table      int // TAGE table whose history keyed the hit, -1 without a hit
	Overridden bool
	Pending    bool // pattern set is buffered but its access has not completed

	key  uint64
	slot int
}

// Predictor is LLBP layered over a 64KB TAGE-SC predictor.
type Predictor struct {
	cfg     Config
	base    *sc.Predictor
	timing  bool
	delay   uint64
	ctxSets int
	ptnSets int
	pbSets  int

	directory []contextEntry // ctxSets x CtxAssoc
	buffer    []bufferEntry  // pbSets x PBAssoc

	uncond []uint64
	uptr   int
	ticks  uint64

	stats TimingStats
}

// TimingStats reports pattern buffer activity of the timing-aware variant.
type TimingStats struct {
	AccessDelay int
	Prefetches  uint64
	LateHits    uint64
	PatternHits uint64
	Overrides   uint64
}

// TimingPredictor is LLBP with pattern set accesses that complete AccessDelay
// branches after they are issued.
type TimingPredictor struct {
	*Predictor
}

// New builds LLBP with the given configuration and instantaneous pattern set
// accesses.
func New(cfg Config) (*Predictor, error) {
	return build(cfg, false)
}

// NewTiming builds LLBP whose prefetches honour cfg.AccessDelay.
func NewTiming(cfg Config) (*TimingPredictor, error) {
	p, err := build(cfg, true)
	if err != nil {
		return nil, err
	}
	return &TimingPredictor{Predictor: p}, nil
}

func build(cfg Config, timing bool) (*Predictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid LLBP config: %w", err)
	}
	p := &Predictor{
		cfg:       cfg,
		base:      sc.New64K(),
		timing:    timing,
		ctxSets:   cfg.NumContexts / cfg.CtxAssoc,
		ptnSets:   cfg.NumPatterns / cfg.PtrnAssoc,
		pbSets:    cfg.PBSize / cfg.PBAssoc,
		directory: make([]contextEntry, cfg.NumContexts),
		buffer:    make([]bufferEntry, cfg.PBSize),
		uncond:    make([]uint64, ctxWindow+ctxSkip),
	}
	if timing {
		p.delay = uint64(cfg.AccessDelay)
		p.stats.AccessDelay = cfg.AccessDelay
	}
	return p, nil
}

// Config returns the configuration the predictor was built with.
func (p *Predictor) Config() Config {
	return p.cfg
}

// TimingStats returns the pattern buffer counters.
func (t *TimingPredictor) TimingStats() TimingStats {
	return t.stats
}

func mask(width int) uint64 {
	return (uint64(1) << width) - 1
}

func (p *Predictor) contextHash(skip int) uint64 {
	n := len(p.uncond)
	var h uint64
	for i := 0; i < ctxWindow; i++ {
		pc := p.uncond[(p.uptr+skip+i)%n]
		h = (h<<5 | h>>59) ^ (pc >> 2)
	}
	return h * 0x9E3779B97F4A7C15
}

// contextKey folds a context hash into directory set and CTWidth-bit tag.
func (p *Predictor) contextKey(h uint64) uint64 {
	set := (h >> 20) % uint64(p.ctxSets)
	tag := (h >> 32) & mask(p.cfg.CTWidth)
	return tag<<32 | set
}

func (p *Predictor) patternKey(pc uint64, t int) (int, uint32) {
	h := p.base.Tage().HistoryHash(pc, t)
	set := int(h % uint32(p.ptnSets))
	tag := uint32((uint64(h>>3) ^ uint64(h)<<11) & mask(p.cfg.TTWidth))
	return set, tag
}

func (p *Predictor) findBuffered(key uint64) int {
	set := int(key % uint64(p.pbSets))
	for w := 0; w < p.cfg.PBAssoc; w++ {
		i := set*p.cfg.PBAssoc + w
		if p.buffer[i].valid && p.buffer[i].key == key {
			return i
		}
	}
	return -1
}

func (p *Predictor) findContext(key uint64) int {
	set := int(key & 0xffffffff)
	tag := key >> 32
	for w := 0; w < p.cfg.CtxAssoc; w++ {
		i := set*p.cfg.CtxAssoc + w
		if p.directory[i].valid && p.directory[i].tag == tag {
			return i
		}
	}
	return -1
}

func (p *Predictor) confident(ctr int32) bool {
	if p.cfg.CtrWidth == 1 {
		return true
	}
	return ctr != 0 && ctr != -1
}

// Lookup computes the prediction without touching predictor state.
func (p *Predictor) Lookup(pc uint64) Result {
	r := Result{SC: p.base.Lookup(pc), Table: -1, slot: -1}
	r.Pred = r.SC.Pred
	r.key = p.contextKey(p.contextHash(ctxSkip))

	bi := p.findBuffered(r.key)
	if bi < 0 {
		return r
	}
	b := &p.buffer[bi]
	if b.readyAt > p.ticks {
		r.Pending = true
		return r
	}

	tg := p.base.Tage()
	for t := tg.NumTables() - 1; t >= 0 && !r.Hit; t-- {
		set, tag := p.patternKey(pc, t)
		for w := 0; w < p.cfg.PtrnAssoc; w++ {
			slot := set*p.cfg.PtrnAssoc + w
			pt := b.set.patterns[slot]
			if pt.valid && pt.table == t && pt.tag == tag {
				r.Hit = true
				r.Table = t
				r.slot = slot
				break
			}
		}
	}
	if !r.Hit {
		return r
	}

	pt := b.set.patterns[r.slot]
	if tg.HistLength(r.Table) >= r.SC.Tage.HistLen && p.confident(pt.ctr) {
		r.Pred = pt.ctr >= 0
		r.Overridden = true
	}
	return r
}

// Predict returns the predicted direction for the branch at pc.
func (p *Predictor) Predict(pc uint64) bool {
	return p.Lookup(pc).Pred
}

// Update trains LLBP and the underlying TAGE-SC on a retired branch.
func (p *Predictor) Update(pc uint64, taken bool, br common.Branch) {
	if br.IsConditional() {
		p.train(pc, taken, p.Lookup(pc))
	}
	p.base.UpdateHistory(pc, taken, br)
	p.ticks++

	if !br.IsConditional() {
		p.uptr = (p.uptr - 1 + len(p.uncond)) % len(p.uncond)
		p.uncond[p.uptr] = pc
		p.prefetch(p.contextKey(p.contextHash(0)))
	}
}

func (p *Predictor) train(pc uint64, taken bool, r Result) {
	if r.Pending {
		p.stats.LateHits++
	}

	if r.Hit {
		b := &p.buffer[p.findBuffered(r.key)]
		b.lastUse = p.ticks
		pt := &b.set.patterns[r.slot]
		correct := (pt.ctr >= 0) == taken
		pt.ctr = satSigned(pt.ctr, taken, p.cfg.CtrWidth)
		if correct {
			if pt.conf < mask(p.cfg.ReplCtrWidth) {
				pt.conf++
			}
		} else if pt.conf > 0 {
			pt.conf--
		}
		p.stats.PatternHits++
		if r.Overridden {
			p.stats.Overrides++
		}
		if ci := p.findContext(r.key); ci >= 0 && correct {
			c := &p.directory[ci]
			if c.repl < mask(p.cfg.CtxReplCtrWidth) {
				c.repl++
			}
		}
	}

	if r.Pred != taken {
		p.allocate(pc, taken, r)
	}

	p.base.Train(pc, taken, r.SC)
}

// allocate stores a pattern for the next history length above the longest
// current provider in the current context.
func (p *Predictor) allocate(pc uint64, taken bool, r Result) {
	start := max(r.SC.Tage.Provider, r.Table) + 1
	if start >= p.base.Tage().NumTables() {
		return
	}

	ci := p.findContext(r.key)
	if ci < 0 {
		ci = p.allocateContext(r.key)
	}
	set := p.directory[ci].set

	ps, tag := p.patternKey(pc, start)
	victim := ps * p.cfg.PtrnAssoc
	for w := 0; w < p.cfg.PtrnAssoc; w++ {
		slot := ps*p.cfg.PtrnAssoc + w
		if !set.patterns[slot].valid {
			victim = slot
			break
		}
		if set.patterns[slot].conf < set.patterns[victim].conf {
			victim = slot
		}
	}
	ctr := int32(-1)
	if taken {
		ctr = 0
	}
	set.patterns[victim] = pattern{valid: true, table: start, tag: tag, ctr: ctr}

	if p.findBuffered(r.key) < 0 {
		p.insertBuffer(r.key, set, p.ticks)
	}
}

func (p *Predictor) allocateContext(key uint64) int {
	setIdx := int(key & 0xffffffff)
	victim := setIdx * p.cfg.CtxAssoc
	for w := 0; w < p.cfg.CtxAssoc; w++ {
		i := setIdx*p.cfg.CtxAssoc + w
		if !p.directory[i].valid {
			victim = i
			break
		}
		if p.directory[i].repl < p.directory[victim].repl {
			victim = i
		}
	}

	old := &p.directory[victim]
	if old.valid {
		oldKey := old.tag<<32 | uint64(setIdx)
		if bi := p.findBuffered(oldKey); bi >= 0 {
			p.buffer[bi].valid = false
		}
		for w := 0; w < p.cfg.CtxAssoc; w++ {
			c := &p.directory[setIdx*p.cfg.CtxAssoc+w]
			if c.repl > 0 {
				c.repl--
			}
		}
	}

	*old = contextEntry{
		valid: true,
		tag:   key >> 32,
		set:   &patternSet{patterns: make([]pattern, p.cfg.NumPatterns)},
	}
	return victim
}

// prefetch brings the pattern set of an upcoming context into the buffer.
func (p *Predictor) prefetch(key uint64) {
	if p.findBuffered(key) >= 0 {
		return
	}
	ci := p.findContext(key)
	if ci < 0 {
		return
	}
	p.insertBuffer(key, p.directory[ci].set, p.ticks+p.delay)
	p.stats.Prefetches++
}

func (p *Predictor) insertBuffer(key uint64, set *patternSet, readyAt uint64) {
	s := int(key % uint64(p.pbSets))
	victim := s * p.cfg.PBAssoc
	for w := 0; w < p.cfg.PBAssoc; w++ {
		i := s*p.cfg.PBAssoc + w
		if !p.buffer[i].valid {
			victim = i
			break
		}
		if p.buffer[i].lastUse < p.buffer[victim].lastUse {
			victim = i
		}
	}
	p.buffer[victim] = bufferEntry{valid: true, key: key, readyAt: readyAt, lastUse: p.ticks, set: set}
}

func satSigned(ctr int32, taken bool, width int) int32 {
	hi := int64(1)<<(width-1) - 1
	lo := -(int64(1) << (width - 1))
	v := int64(ctr)
	if taken {
		if v < hi {
			v++
		}
	} else if v > lo {
		v--
	}
	return int32(v)
}
