package abiamd64

// IntArgPool and SSEArgPool are the architectural names of the System-V
// integer and vector argument-passing pools, grounded on the teacher's
// arch_x86.go register table (RDI/RSI/RDX/RCX/R8/R9, XMM0-XMM7) but
// re-expressed as plain name strings since this package's Register model
// is consumed by the ABI layer, not the virtual-assembly layer (internal/
// asmcmp.Register carries the richer class/affinity shape the teacher's
// Register struct did).
var IntArgPool = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
var SSEArgPool = []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"}

// IntReturnPool and SSEReturnPool are the System-V return-value register
// pools (spec §4.3: "returns use (rax,rdx)/(xmm0,xmm1)").
var IntReturnPool = []string{"rax", "rdx"}
var SSEReturnPool = []string{"xmm0", "xmm1"}

// ImplicitReturnPointerReg is the register an aggregate return value
// needing more than two eightbytes is passed in as a hidden first
// parameter (spec §4.3), and the register the callee must also return
// that same pointer in per the ABI's "hidden pointer is also returned in
// rax" rule.
const ImplicitReturnPointerReg = "rdi"
