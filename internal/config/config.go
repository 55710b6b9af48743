// Package config defines the configuration record passed by value to the
// codegen driver, per the external-interfaces contract. No environment
// variables are consumed by the core; every option arrives through this
// struct, bound to CLI flags by internal/cli.
package config

// Syntax selects the textual assembly dialect emitted by the assembler.
type Syntax int

const (
	SyntaxIntel Syntax = iota
	SyntaxATT
)

func (s Syntax) String() string {
	if s == SyntaxATT {
		return "att"
	}
	return "intel"
}

// Config mirrors spec §6's configuration record field-for-field.
type Config struct {
	EmulatedTLS             bool
	PositionIndependentCode bool
	OmitFramePointer        bool
	Syntax                  Syntax
	OptimizerPipelineSpec   string
	CodegenPipelineSpec     string
	DebugInfo               bool
	RuntimeFunctionGenMode  bool
	MaxInlineDepth          int

	// HostCapabilities is diagnostic-only metadata describing the build
	// host's vector ISA extensions (AVX/AVX2/...); per spec §1's
	// non-goals (no auto-vectorization), nothing downstream of it
	// branches codegen decisions on this field.
	HostCapabilities HostCapabilities
}

// HostCapabilities records SIMD extension availability on the compiling
// host, surfaced for diagnostics only (e.g. `kefirrt selftest`).
type HostCapabilities struct {
	SSE2 bool
	AVX  bool
	AVX2 bool
}

// Default returns the configuration the driver uses when no flags are
// supplied.
func Default() Config {
	return Config{
		Syntax:                SyntaxATT,
		MaxInlineDepth:        8,
		OptimizerPipelineSpec: "dead-alloc:dead-code:gvn:const-fold:strength-reduce:bool-simplify:tail-call:dead-code",
		CodegenPipelineSpec:   "virtual-canon:virtual-dce:devirt-memfold:devirt-two-operand",
	}
}
