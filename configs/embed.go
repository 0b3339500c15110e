// Package configs provides embedded configuration templates for cividex.
//
// Templates are embedded at build time using Go's //go:embed directive,
// so they ship with every distribution of the binary.
//
// The templates are used by:
//   - cmd/cividex/cmd/config.go → `cividex config init` creates the user
//     config at ~/.config/cividex/config.yaml
//   - cmd/cividex/cmd/config.go → `cividex config init --corpus` creates
//     .cividex.yaml at the corpus root
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. User config (~/.config/cividex/config.yaml)
//  3. Corpus config (.cividex.yaml)
//  4. Environment variables (CIVIDEX_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Contains settings that apply to every corpus on this machine, like the
// server address and logging level.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// CorpusConfigTemplate is the template for corpus-level configuration.
// Contains settings meant to be version-controlled alongside the records,
// like include/exclude globs and the index backend.
//
//go:embed corpus-config.example.yaml
var CorpusConfigTemplate string
