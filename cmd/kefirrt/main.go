// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Command kefirrt binds the compiler core's configuration record (spec
// §6) to command-line flags and resolves the optimizer/codegen pipeline
// specs it names, replacing the teacher's raw os.Args entry point with a
// cobra-based CLI in the idiom of ajroetker-goat's main.go. The AST
// parser/translator that produces the ir.Module the core actually
// compiles is an out-of-scope external collaborator (spec §1); this
// binary is the thin host that a frontend links against, not a frontend
// itself, so it exposes validation and introspection subcommands rather
// than a `kefirrt file.c` compile-to-binary front door.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sourcehut-mirrors/kefir-sub015/internal/cli"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if err := cli.NewRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("kefirrt failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
