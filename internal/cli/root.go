// Package cli binds the compiler core's configuration record (spec §6) to
// cobra flags (persistent flags bound into one package-level Config), and
// exposes subcommands that exercise the core library surface without
// implementing the out-of-scope frontend.
package cli

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sys/cpu"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/codegen/amd64"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/config"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa/passes"
)

var cfg config.Config

// NewRootCommand builds the kefirrt CLI: persistent flags mirror spec
// §6's configuration record field-for-field and are bound into the
// package-level cfg, which each subcommand reads once flags are parsed.
func NewRootCommand() *cobra.Command {
	cfg = config.Default()

	root := &cobra.Command{
		Use:           "kefirrt",
		Short:         "Kefir compiler core driver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var syntax string
	root.PersistentFlags().BoolVar(&cfg.EmulatedTLS, "emulated-tls", cfg.EmulatedTLS, "lower thread-local variables through emutls accessors")
	root.PersistentFlags().BoolVar(&cfg.PositionIndependentCode, "pic", cfg.PositionIndependentCode, "emit position-independent code")
	root.PersistentFlags().BoolVar(&cfg.OmitFramePointer, "omit-frame-pointer", cfg.OmitFramePointer, "omit the rbp frame pointer where the frame model allows it")
	root.PersistentFlags().StringVar(&syntax, "syntax", cfg.Syntax.String(), "output assembly syntax: intel or att")
	root.PersistentFlags().StringVar(&cfg.OptimizerPipelineSpec, "optimizer-pipeline", cfg.OptimizerPipelineSpec, "colon-separated optimizer pass pipeline")
	root.PersistentFlags().StringVar(&cfg.CodegenPipelineSpec, "codegen-pipeline", cfg.CodegenPipelineSpec, "colon-separated codegen virtual/devirtualization pipeline")
	root.PersistentFlags().BoolVar(&cfg.DebugInfo, "debug-info", cfg.DebugInfo, "emit DWARF debug-info hooks")
	root.PersistentFlags().BoolVar(&cfg.RuntimeFunctionGenMode, "runtime-function-generator-mode", cfg.RuntimeFunctionGenMode, "compile as a __kefirrt_* runtime helper source instead of user translation unit")
	root.PersistentFlags().IntVar(&cfg.MaxInlineDepth, "max-inline-depth", cfg.MaxInlineDepth, "maximum inliner recursion depth")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		switch syntax {
		case "intel":
			cfg.Syntax = config.SyntaxIntel
		case "att":
			cfg.Syntax = config.SyntaxATT
		default:
			return fmt.Errorf("--syntax must be %q or %q, got %q", "intel", "att", syntax)
		}
		cfg.HostCapabilities = config.HostCapabilities{
			SSE2: cpu.X86.HasSSE2,
			AVX:  cpu.X86.HasAVX,
			AVX2: cpu.X86.HasAVX2,
		}
		return nil
	}

	root.AddCommand(newSelftestCommand(), newVersionCommand())
	return root
}

// newSelftestCommand resolves both pipeline specs against the registered
// pass tables and reports the host's vector-ISA capabilities, so a
// deployment can validate its configuration record before wiring a
// frontend against this core.
func newSelftestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Validate the configuration record and report host capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := passes.ParsePipeline(cfg.OptimizerPipelineSpec)
			if err != nil {
				return fmt.Errorf("optimizer-pipeline-spec: %w", err)
			}
			fmt.Printf("optimizer pipeline: %d pass(es) resolved\n", len(pipeline.Passes))
			for _, p := range pipeline.Passes {
				fmt.Printf("  - %s\n", p.Name())
			}
			codegenPipeline, err := amd64.ParseVirtualPipeline(cfg.CodegenPipelineSpec)
			if err != nil {
				return fmt.Errorf("codegen-pipeline-spec: %w", err)
			}
			fmt.Printf("codegen pipeline: %d pass(es) resolved\n", len(codegenPipeline.PassNames()))
			for _, name := range codegenPipeline.PassNames() {
				fmt.Printf("  - %s\n", name)
			}
			fmt.Printf("syntax: %s\n", cfg.Syntax)
			fmt.Printf("max inline depth: %d\n", cfg.MaxInlineDepth)
			fmt.Printf("host capabilities: sse2=%v avx=%v avx2=%v (diagnostic only, never branches codegen)\n",
				cfg.HostCapabilities.SSE2, cfg.HostCapabilities.AVX, cfg.HostCapabilities.AVX2)
			log.Info().Str("goarch", runtime.GOARCH).Msg("selftest complete")
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the driver version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("kefirrt (core driver)")
		},
	}
}
