package kedr

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/euspectre/kedr-go/internal/block"
	"github.com/euspectre/kedr-go/internal/deploy"
	"github.com/euspectre/kedr-go/internal/discover"
	"github.com/euspectre/kedr-go/internal/emit"
	"github.com/euspectre/kedr-go/internal/fallback"
	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
	"github.com/euspectre/kedr-go/internal/runtime"
	"github.com/euspectre/kedr-go/internal/transform"
)

var logger = log.WithField("pkg", "kedr")

// Session owns the instrumentation state for one target: its detour
// buffer pool, per-function records, provider reference count and the
// opaque per-target plugin data list (§5, §9 — "a session instruments
// exactly one target at a time"). target_mutex from spec.md §5 is
// Session.mu, held across the whole instrument-one-target call.
type Session struct {
	mu sync.Mutex

	Config Config
	Mode   insn.Mode

	handler   EventHandler
	allocator LocalStorageAllocator
	functions *FunctionHandlerTable
	bridge    *bridge

	pool *deploy.DetourPool
	refs int32

	// funcInfos keys on the original address so a deployed function's
	// LocalStorage.FuncInfo can be resolved back by the wrapper ABI.
	funcInfos map[uint64]*runtime.FuncInfo

	// SkippedFuncs records every function a pipeline error forced this
	// session to leave untouched, per §7's "skip the function, log a
	// warning" policy.
	SkippedFuncs map[string]error

	// pluginData is the per-target FH-plugin data list (original's
	// fh_impl.c), opaque any payload never inspected by the core,
	// guarded by its own mutex per §5 (separate from target_mutex since
	// it's only touched from the slow-path init/exit handlers).
	pluginMu   sync.Mutex
	pluginData map[string]any
}

// NewSession creates a Session for one target, ready to instrument
// functions once a handler is installed via WithHandler. hintAddr should
// be an address inside the target's own code, so the detour pool lands
// within rel32 reach of it.
func NewSession(cfg Config, mode insn.Mode, hintAddr uint64) *Session {
	alloc := NewDefaultAllocator()
	return &Session{
		Config:       cfg,
		Mode:         mode,
		allocator:    alloc,
		bridge:       newBridge(BaseEventHandler{}, alloc, cfg.ProcessStackAccesses, uint32(cfg.SamplingRate)),
		pool:         deploy.NewDetourPool(hintAddr),
		funcInfos:    make(map[uint64]*runtime.FuncInfo),
		SkippedFuncs: make(map[string]error),
		pluginData:   make(map[string]any),
	}
}

// WithHandler installs the event handler every instrumented function
// reports through.
func (s *Session) WithHandler(h EventHandler) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
	s.bridge = newBridge(h, s.allocator, s.Config.ProcessStackAccesses, uint32(s.Config.SamplingRate))
	return s
}

// WithAllocator overrides the default slab allocator.
func (s *Session) WithAllocator(a LocalStorageAllocator) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocator = a
	s.bridge = newBridge(s.handler, a, s.Config.ProcessStackAccesses, uint32(s.Config.SamplingRate))
	return s
}

// WithFunctionHandlers installs the merged call-site handler table.
func (s *Session) WithFunctionHandlers(t *FunctionHandlerTable) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions = t
	return s
}

// PinProvider/UnpinProvider implement the reference-counted provider
// model of §5: a target stays instrumentable only while at least one
// handler-plugin provider is pinned.
func (s *Session) PinProvider() int32 { return atomic.AddInt32(&s.refs, 1) }

// UnpinProvider releases a pin. Returns the remaining count.
func (s *Session) UnpinProvider() int32 { return atomic.AddInt32(&s.refs, -1) }

// SetPluginData installs an opaque per-plugin payload under key, guarded
// by its own mutex so concurrent init/exit handlers never race each
// other (§5's "separate mutex, accessed only from the init/exit
// handlers' slow path"); the core never inspects the value.
func (s *Session) SetPluginData(key string, v any) {
	s.pluginMu.Lock()
	defer s.pluginMu.Unlock()
	s.pluginData[key] = v
}

// PluginData retrieves a previously stored payload.
func (s *Session) PluginData(key string) (any, bool) {
	s.pluginMu.Lock()
	defer s.pluginMu.Unlock()
	v, ok := s.pluginData[key]
	return v, ok
}

// MemReader reads the target's original memory image, structurally
// compatible with both internal/discover.MemReader and internal/ir.MemReader.
type MemReader interface {
	ReadMem(addr uint64, out []byte) error
}

// InstrumentTarget runs the full pipeline (discover -> decode/IR ->
// block analysis -> fallback -> transform -> emit -> deploy) over every
// candidate function src/mem expose, serialized under target_mutex for
// the whole call per §5. A function the pipeline can't handle is skipped
// and recorded in SkippedFuncs rather than aborting the whole target.
func (s *Session) InstrumentTarget(src discover.SymbolSource, mem MemReader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := discover.Discover(src, mem, s.Mode, logger)
	for _, c := range candidates {
		if err := s.instrumentOne(c, mem); err != nil {
			logger.WithField("func", c.Name).WithError(err).Warn("skipping function")
			s.SkippedFuncs[c.Name] = err
			continue
		}
		delete(s.SkippedFuncs, c.Name)
	}
	return nil
}

func (s *Session) instrumentOne(c discover.Candidate, mem MemReader) error {
	code := make([]byte, c.Size)
	if err := mem.ReadMem(c.Addr, code); err != nil {
		return newError(ErrIncompleteFunction, c.Name, err)
	}

	f, err := ir.Build(c.Name, c.Addr, code, s.Mode, mem)
	if err != nil {
		return newError(ErrDecode, c.Name, err)
	}

	if err := block.Analyze(f, s.Mode); err != nil {
		return newError(ErrSpuriousJumpTable, c.Name, err)
	}
	base, err := block.SelectBaseReg(f, s.Mode)
	if err != nil {
		return newError(ErrRegisterPressure, c.Name, err)
	}

	fb, err := fallback.Build(code, c.Addr, s.Mode)
	if err != nil {
		return newError(ErrIncompleteFunction, c.Name, err)
	}
	f.FallbackAddr = fb.Addr
	f.FallbackSize = fb.Size

	fi := &runtime.FuncInfo{OrigAddr: c.Addr, BaseReg: uint8(base)}
	s.funcInfos[c.Addr] = fi

	cfg := transform.Config{
		BaseReg:      base,
		Mode:         s.Mode,
		FallbackAddr: fb.Addr,
		W:            s.bridge.wrappers(),
	}
	if err := transform.Phase1(f, cfg); err != nil {
		return newError(ErrRegisterPressure, c.Name, err)
	}
	if err := transform.Phase2(f, cfg); err != nil {
		return newError(ErrRegisterPressure, c.Name, err)
	}

	emitted, err := emit.Emit(f)
	if err != nil {
		return newError(ErrUnsupportedInstruction, c.Name, err)
	}

	if err := s.pool.Deploy(f, emitted); err != nil {
		return newError(ErrOutOfMemory, c.Name, err)
	}
	return nil
}
