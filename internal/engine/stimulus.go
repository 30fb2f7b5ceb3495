package engine

import (
	"slices"

	"github.com/roach88/txsched/internal/ir"
)

// Source drives a design-driven simulation: it decides, per cycle, which
// transactions and methods are ready and what arguments transactions pass
// to the methods they call.
type Source interface {
	TransactionReady(cycle int64, tx string) bool
	MethodReady(cycle int64, method string) bool
	Args(cycle int64, tx, method string) (ir.Record, bool)
}

// Wildcard in a stimulus ready list marks every transaction ready.
const Wildcard = "*"

// Stimulus is a scripted Source, loaded from YAML. Cycle c (1-based) reads
// Cycles[c-1]; cycles past the end have nothing ready.
//
//	cycles:
//	  - ready: [fetch, flush]
//	  - ready: ["*"]
//	    methods_not_ready: [icache_read]
//	    args:
//	      flush: {redirect: {pc: 64}}
type Stimulus struct {
	Cycles []StimulusCycle `yaml:"cycles" json:"cycles"`
}

// StimulusCycle is the input for one cycle.
type StimulusCycle struct {
	Ready           []string                        `yaml:"ready" json:"ready"`
	MethodsNotReady []string                        `yaml:"methods_not_ready,omitempty" json:"methods_not_ready,omitempty"`
	Args            map[string]map[string]ir.Record `yaml:"args,omitempty" json:"args,omitempty"`
}

// Len returns the number of scripted cycles.
func (s *Stimulus) Len() int { return len(s.Cycles) }

func (s *Stimulus) at(cycle int64) (StimulusCycle, bool) {
	if cycle < 1 || cycle > int64(len(s.Cycles)) {
		return StimulusCycle{}, false
	}
	return s.Cycles[cycle-1], true
}

// TransactionReady implements Source.
func (s *Stimulus) TransactionReady(cycle int64, tx string) bool {
	c, ok := s.at(cycle)
	if !ok {
		return false
	}
	return slices.Contains(c.Ready, Wildcard) || slices.Contains(c.Ready, tx)
}

// MethodReady implements Source.
func (s *Stimulus) MethodReady(cycle int64, method string) bool {
	c, ok := s.at(cycle)
	if !ok {
		return true
	}
	return !slices.Contains(c.MethodsNotReady, method)
}

// Args implements Source.
func (s *Stimulus) Args(cycle int64, tx, method string) (ir.Record, bool) {
	c, ok := s.at(cycle)
	if !ok {
		return nil, false
	}
	args, ok := c.Args[tx][method]
	return args, ok
}

// Names lists every transaction and method name the stimulus mentions,
// sorted and de-duplicated. Used to reject stimuli for a different design.
func (s *Stimulus) Names() []string {
	var out []string
	for _, c := range s.Cycles {
		for _, name := range c.Ready {
			if name != Wildcard {
				out = append(out, name)
			}
		}
		out = append(out, c.MethodsNotReady...)
		for tx, calls := range c.Args {
			out = append(out, tx)
			for m := range calls {
				out = append(out, m)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// alwaysReady is the Source used when none is given.
type alwaysReady struct{}

func (alwaysReady) TransactionReady(int64, string) bool { return true }

func (alwaysReady) MethodReady(int64, string) bool { return true }

func (alwaysReady) Args(int64, string, string) (ir.Record, bool) { return nil, false }
