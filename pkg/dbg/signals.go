package dbg

import (
	"sync"
	"syscall"

	"github.com/nullpointer-dev/dbgcore/internal/config"
	"github.com/nullpointer-dev/dbgcore/internal/logflags"
)

// alwaysPassSignals are delivered to the target even when their
// disposition says catch=false: SIGPWR (power failure) and SIGXCPU
// (CPU-time limit exceeded), per spec §4.4 item 6.
var alwaysPassSignals = map[int]bool{
	int(syscall.SIGPWR):  true,
	int(syscall.SIGXCPU): true,
}

// globalSignals is authoritative across debugger recreations within this
// process (spec §3 "Signal disposition"), seeded from the on-disk config
// the teacher's pkg/config persists in a similar way.
var (
	globalSignalMu sync.Mutex
	globalSignals  = map[int]SignalDisposition{}
)

func init() {
	cfg, err := config.LoadSignalConfig()
	if err != nil {
		logflags.DebuggerLogger().Warnf("loading persisted signal config: %v", err)
		return
	}
	globalSignalMu.Lock()
	for sig, d := range cfg.Dispositions {
		globalSignals[sig] = SignalDisposition{Catch: d.Catch, Pass: d.Pass}
	}
	globalSignalMu.Unlock()
}

func persistGlobalSignalsLocked() {
	cfg := &config.SignalConfig{Dispositions: make(map[int]config.SignalDisposition, len(globalSignals))}
	for sig, d := range globalSignals {
		cfg.Dispositions[sig] = config.SignalDisposition{Catch: d.Catch, Pass: d.Pass}
	}
	if err := config.SaveSignalConfig(cfg); err != nil {
		logflags.DebuggerLogger().Warnf("persisting signal config: %v", err)
	}
}

// signalTable is the per-debugger copy of the signal-disposition map,
// synchronized with globalSignals on attach and on every mutation (spec §3,
// §5 "Shared resources").
type signalTable struct {
	mu           sync.Mutex
	dispositions map[int]SignalDisposition
}

func newSignalTable() *signalTable {
	return &signalTable{dispositions: make(map[int]SignalDisposition)}
}

// syncFromGlobal copies the authoritative global table into this debugger
// instance, called on Attach (spec §3, last sentence).
func (t *signalTable) syncFromGlobal() {
	globalSignalMu.Lock()
	defer globalSignalMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	for sig, d := range globalSignals {
		t.dispositions[sig] = d
	}
}

func (t *signalTable) Set(sig int, catch, pass bool) {
	d := SignalDisposition{Catch: catch, Pass: pass}
	t.mu.Lock()
	t.dispositions[sig] = d
	t.mu.Unlock()

	globalSignalMu.Lock()
	globalSignals[sig] = d
	persistGlobalSignalsLocked()
	globalSignalMu.Unlock()
}

func (t *signalTable) Get(sig int) (SignalDisposition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.dispositions[sig]
	return d, ok
}

func (t *signalTable) Remove(sig int) {
	t.mu.Lock()
	delete(t.dispositions, sig)
	t.mu.Unlock()

	globalSignalMu.Lock()
	delete(globalSignals, sig)
	persistGlobalSignalsLocked()
	globalSignalMu.Unlock()
}

func (t *signalTable) List() map[int]SignalDisposition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]SignalDisposition, len(t.dispositions))
	for sig, d := range t.dispositions {
		out[sig] = d
	}
	return out
}

// SetSignal configures how sig is handled (spec §6, "Signal config").
func (d *Debugger) SetSignal(sig int, catch, pass bool) error {
	return d.enqueue(func() error {
		d.signals.Set(sig, catch, pass)
		return nil
	})
}

// GetSignal returns sig's current disposition.
func (d *Debugger) GetSignal(sig int) (SignalDisposition, bool) {
	return d.signals.Get(sig)
}

// ListSignals returns every configured signal disposition.
func (d *Debugger) ListSignals() map[int]SignalDisposition {
	return d.signals.List()
}

// RemoveSignal deletes sig's configured disposition.
func (d *Debugger) RemoveSignal(sig int) error {
	return d.enqueue(func() error {
		d.signals.Remove(sig)
		return nil
	})
}
