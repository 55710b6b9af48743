package amd64

import (
	"sort"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/asmcmp"
)

// position is a vreg interval's linear program point: the instruction's
// sequence number in asmcmp list order, not its raw asmcmp.InstrIndex
// (which is assigned in allocation order and stops tracking list order
// once InsertBefore/InsertAfter have spliced instructions in).
type position int

const posInf position = 1 << 30

// vrange is one contiguous live span [from,to] of a virtual register, in
// the teacher's lsra_interval.go Range shape, rebased onto asmcmp's
// position space.
type vrange struct {
	from, to position
	next     *vrange
}

type useKind int

const (
	useRead useKind = iota
	useWrite
)

type usePoint struct {
	at   position
	kind useKind
	next *usePoint
}

// interval is one virtual register's liveness interval plus its
// allocation decision. Grounded on the teacher's lsra_interval.go
// Interval/Range/UsePoint triple, but simplified to a hole-free
// [start,end] span per Poletto & Sarkar's original linear-scan
// formulation: the teacher's lifetime-hole-aware splitAt/children/sibling
// machinery is commented-out pseudocode in the retrieved snapshot (see
// DESIGN.md) and is not reproduced here. A value is conservatively
// considered to occupy its register across its whole start-to-end span,
// including any holes where it isn't actually live.
type interval struct {
	vreg  asmcmp.VRegID
	class asmcmp.VRegClass
	hint  asmcmp.PreallocHint

	ranges *vrange
	uses   *usePoint

	reg       string // physical register once assigned; empty until then
	spillSlot int    // spill slot index once assigned; -1 until then
	spansCall bool
}

func newInterval(id asmcmp.VRegID, class asmcmp.VRegClass, hint asmcmp.PreallocHint) *interval {
	return &interval{vreg: id, class: class, hint: hint, spillSlot: -1}
}

func (iv *interval) start() position {
	if iv.ranges == nil {
		return posInf
	}
	return iv.ranges.from
}

func (iv *interval) end() position {
	r := iv.ranges
	if r == nil {
		return 0
	}
	for r.next != nil {
		r = r.next
	}
	return r.to
}

// addRange records that iv is live over [from,to], merging with the most
// recently added range when they touch or overlap. Intervals are always
// built back-to-front (blocks visited in reverse, instructions within a
// block visited in reverse), so the most recently added range is always
// the current head and the one a new range is most likely to merge with.
func (iv *interval) addRange(from, to position) {
	if iv.ranges != nil && from <= iv.ranges.to+1 && to >= iv.ranges.from-1 {
		if iv.ranges.from < from {
			from = iv.ranges.from
		}
		if iv.ranges.to > to {
			to = iv.ranges.to
		}
		iv.ranges.from = from
		iv.ranges.to = to
		return
	}
	iv.ranges = &vrange{from: from, to: to, next: iv.ranges}
}

func (iv *interval) addUse(at position, kind useKind) {
	iv.uses = &usePoint{at: at, kind: kind, next: iv.uses}
}

// nextUseAfter returns the position of the first use at or after pos, or
// posInf if none remains -- the Poletto & Sarkar "furthest next use"
// spill heuristic's building block.
func (iv *interval) nextUseAfter(pos position) position {
	best := posInf
	for u := iv.uses; u != nil; u = u.next {
		if u.at >= pos && u.at < best {
			best = u.at
		}
	}
	return best
}

// buildIntervals runs the classic backward per-block liveness-to-interval
// construction: the teacher's lsra.go buildIntervals, generalized from
// its LIR block/instruction int ids to asmcmp's position space. Each
// block is seeded from its live-out set (a range spanning the whole
// block for every vreg live on exit), then narrowed while walking the
// block's instructions in reverse, shortening at each def and extending
// at each first-seen use.
func buildIntervals(ctx *asmcmp.Context, live *LivenessResult, pos map[asmcmp.InstrIndex]position) map[asmcmp.VRegID]*interval {
	intervals := make(map[asmcmp.VRegID]*interval)
	get := func(id asmcmp.VRegID) *interval {
		iv, ok := intervals[id]
		if !ok {
			info := ctx.VRegs.Get(id)
			iv = newInterval(id, info.Class, info.Hint)
			intervals[id] = iv
		}
		return iv
	}

	for i := len(live.spans) - 1; i >= 0; i-- {
		s := live.spans[i]
		if len(s.instrs) == 0 {
			continue
		}
		blockFrom := pos[s.instrs[0]]
		blockTo := pos[s.instrs[len(s.instrs)-1]]

		out := live.liveOut[s.label]
		for v := 0; v < out.Size(); v++ {
			if out.IsSet(v) {
				get(asmcmp.VRegID(v)).addRange(blockFrom, blockTo)
			}
		}

		liveNow := out.Copy()
		for k := len(s.instrs) - 1; k >= 0; k-- {
			idx := s.instrs[k]
			p := pos[idx]
			defs, uses := InstrDefUse(ctx, idx)
			if in, ok := ctx.Get(idx); ok && in.Op == asmcmp.OpCall {
				for v := 0; v < liveNow.Size(); v++ {
					if liveNow.IsSet(v) {
						get(asmcmp.VRegID(v)).spansCall = true
					}
				}
			}
			for _, d := range defs {
				iv := get(d)
				if r := iv.ranges; r != nil && r.from <= p && p <= r.to {
					r.from = p
				} else {
					iv.addRange(p, p)
				}
				iv.addUse(p, useWrite)
				liveNow.Reset(int(d))
			}
			for _, u := range uses {
				iv := get(u)
				if !liveNow.IsSet(int(u)) {
					iv.addRange(blockFrom, p)
					liveNow.Set(int(u))
				}
				iv.addUse(p, useRead)
			}
		}
	}
	return intervals
}

func sequencePositions(ctx *asmcmp.Context) map[asmcmp.InstrIndex]position {
	pos := make(map[asmcmp.InstrIndex]position)
	seq := position(0)
	ctx.Walk(func(idx asmcmp.InstrIndex, in *asmcmp.Instr) bool {
		pos[idx] = seq
		seq++
		return true
	})
	return pos
}

// gpPool and ssePool are the System-V allocatable register pools, minus
// rsp/rbp (reserved for the frame) and one scratch register per class
// (r11, xmm15) devirt.go reserves for two-memory-operand legalisation.
// x87Pool likewise reserves st7; the x87 stack's actual push/pop depth
// discipline is not modeled here (see DESIGN.md) -- each of st0..st6 is
// allocated as if it were a flat register, which is adequate for the
// long-double arithmetic this backend currently lowers but would need
// real stack-depth tracking for a fuller x87 story.
var gpPool = []string{"rax", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10", "rbx", "r12", "r13", "r14", "r15"}
var ssePool = []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7", "xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13", "xmm14"}
var x87Pool = []string{"st0", "st1", "st2", "st3", "st4", "st5", "st6"}

const gpScratch = "r11"
const sseScratch = "xmm15"

func poolFor(class asmcmp.VRegClass) []string {
	switch class {
	case asmcmp.VRegSSE:
		return ssePool
	case asmcmp.VRegX87:
		return x87Pool
	default:
		return gpPool
	}
}

func isCalleeSavedGP(name string) bool {
	for _, r := range calleeSavedGPRs {
		if r == name {
			return true
		}
	}
	return false
}

// pickFreeReg returns a free register from pool not held by active,
// preferring a caller-saved one unless the interval spans a call (in
// which case only a callee-saved register survives the call without a
// save/restore of its own). Returns "" if none is free.
func pickFreeReg(pool []string, active []*interval, spansCall bool) string {
	used := make(map[string]bool, len(active))
	for _, a := range active {
		used[a.reg] = true
	}
	var calleeCandidate string
	for _, r := range pool {
		if used[r] {
			continue
		}
		if isCalleeSavedGP(r) {
			if calleeCandidate == "" {
				calleeCandidate = r
			}
			continue
		}
		if spansCall {
			continue
		}
		return r
	}
	return calleeCandidate
}

// AllocateRegisters runs linear-scan register allocation over ctx (spec
// §4.7 stage 4), recording each virtual register's final Assignment in
// ctx.VRegs and growing frame's spill area as needed. Grounded on the
// teacher's lsra.go allocateRegisters's active/inactive/handled loop
// structure, but with a real tryAllocatePhyReg (the teacher's own always
// returns true without assigning anything) and the furthest-next-use
// spill heuristic its lsra_interval.go never got past commented-out
// pseudocode for.
func AllocateRegisters(ctx *asmcmp.Context, frame *Frame) error {
	pos := sequencePositions(ctx)
	live := ComputeLiveness(ctx)
	intervals := buildIntervals(ctx, live, pos)

	var slotCounter int64
	spill := func(iv *interval) {
		iv.spillSlot = int(slotCounter)
		slotCounter++
		frame.EnsureSpillArea(slotCounter)
	}

	var worklist []*interval
	for _, iv := range intervals {
		if iv.hint == asmcmp.HintMemoryOnly || iv.hint == asmcmp.HintPreferSpillArea || iv.class == asmcmp.VRegIndirectSpillSlot {
			spill(iv)
			continue
		}
		worklist = append(worklist, iv)
	}
	sort.Slice(worklist, func(i, j int) bool {
		if worklist[i].start() != worklist[j].start() {
			return worklist[i].start() < worklist[j].start()
		}
		return worklist[i].vreg < worklist[j].vreg
	})

	var activeGP, activeSSE, activeX87 []*interval
	activeFor := func(class asmcmp.VRegClass) *[]*interval {
		switch class {
		case asmcmp.VRegSSE:
			return &activeSSE
		case asmcmp.VRegX87:
			return &activeX87
		default:
			return &activeGP
		}
	}

	expire := func(active *[]*interval, at position) {
		kept := (*active)[:0]
		for _, a := range *active {
			if a.end() >= at {
				kept = append(kept, a)
			}
		}
		*active = kept
	}

	for _, iv := range worklist {
		active := activeFor(iv.class)
		expire(active, iv.start())

		pool := poolFor(iv.class)
		if reg := pickFreeReg(pool, *active, iv.spansCall); reg != "" {
			iv.reg = reg
			*active = append(*active, iv)
			if isCalleeSavedGP(reg) {
				frame.UseRegister(reg)
			}
			continue
		}

		// No free register: spill whichever of iv and the current active
		// set has its next use furthest from iv's start (Poletto &
		// Sarkar's classic heuristic), giving the others first shot at
		// staying in a register.
		victim := iv
		victimIdx := -1
		victimNextUse := iv.nextUseAfter(iv.start())
		for i, a := range *active {
			nu := a.nextUseAfter(iv.start())
			if nu > victimNextUse {
				victim, victimIdx, victimNextUse = a, i, nu
			}
		}
		if victim == iv {
			spill(iv)
			continue
		}
		spill(victim)
		iv.reg = victim.reg
		victim.reg = ""
		(*active)[victimIdx] = iv
	}

	for _, iv := range intervals {
		if iv.reg != "" {
			ctx.VRegs.SetAssignment(iv.vreg, asmcmp.Assignment{Kind: asmcmp.AssignmentPhysicalReg, PhysicalReg: iv.reg})
		} else {
			ctx.VRegs.SetAssignment(iv.vreg, asmcmp.Assignment{Kind: asmcmp.AssignmentSpillSlot, SpillSlot: iv.spillSlot})
		}
	}
	return nil
}
