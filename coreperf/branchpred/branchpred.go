// Package branchpred implements the per-core branch predictor variants.
package branchpred

// Predictor predicts a branch's direction from its address and is then
// told the real outcome so it can update its state.
type Predictor interface {
	// Predict returns the predicted taken/not-taken outcome for a branch at
	// addr, using only state gathered from prior Update calls.
	Predict(addr uint64) bool
	// Update records the real outcome of the branch at addr.
	Update(addr uint64, taken bool)
}

// OneBit is a direct-mapped table of `size` single-bit predictors indexed
// by addr modulo size.
type OneBit struct {
	table []bool
}

// NewOneBit constructs a OneBit predictor with the given table size.
// Entries start predicting not-taken.
func NewOneBit(size int) *OneBit {
	if size <= 0 {
		size = 1
	}
	return &OneBit{table: make([]bool, size)}
}

func (p *OneBit) index(addr uint64) int {
	return int(addr % uint64(len(p.table)))
}

// Predict returns the table entry's last-recorded outcome for addr.
func (p *OneBit) Predict(addr uint64) bool {
	return p.table[p.index(addr)]
}

// Update overwrites the table entry for addr with the real outcome.
func (p *OneBit) Update(addr uint64, taken bool) {
	p.table[p.index(addr)] = taken
}

// PentiumM is a global-history-indexed pattern table combined with a BTB,
// a simplified rendition of the Pentium M's two-level adaptive predictor.
type PentiumM struct {
	historyBits int
	history     uint32            // shift register of the last historyBits outcomes
	patternTab  []uint8           // 2-bit saturating counters, indexed by history
	btb         map[uint64]uint64 // predicted target per branch address
}

// NewPentiumM constructs a PentiumM-like predictor with a global history
// register of historyBits bits (pattern table sized 2^historyBits).
func NewPentiumM(historyBits int) *PentiumM {
	if historyBits <= 0 {
		historyBits = 1
	}
	if historyBits > 24 {
		historyBits = 24 // keeps the pattern table a sane size
	}
	size := 1 << uint(historyBits)
	tab := make([]uint8, size)
	for i := range tab {
		tab[i] = 1 // weakly-not-taken
	}
	return &PentiumM{historyBits: historyBits, patternTab: tab, btb: map[uint64]uint64{}}
}

func (p *PentiumM) historyMask() uint32 {
	return uint32(1)<<uint(p.historyBits) - 1
}

// Predict consults the 2-bit saturating counter selected by the current
// global history.
func (p *PentiumM) Predict(_ uint64) bool {
	idx := p.history & p.historyMask()
	return p.patternTab[idx] >= 2
}

// Update advances the saturating counter toward taken/not-taken and
// shifts the real outcome into the global history register.
func (p *PentiumM) Update(_ uint64, taken bool) {
	idx := p.history & p.historyMask()
	if taken {
		if p.patternTab[idx] < 3 {
			p.patternTab[idx]++
		}
	} else if p.patternTab[idx] > 0 {
		p.patternTab[idx]--
	}

	p.history <<= 1
	if taken {
		p.history |= 1
	}
}

// PredictTarget returns the BTB's recorded target for addr, and whether
// one has ever been recorded.
func (p *PentiumM) PredictTarget(addr uint64) (uint64, bool) {
	t, ok := p.btb[addr]
	return t, ok
}

// RecordTarget updates the BTB's recorded target for a taken branch.
func (p *PentiumM) RecordTarget(addr, target uint64) {
	p.btb[addr] = target
}
