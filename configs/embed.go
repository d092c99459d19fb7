// Package configs provides the embedded configuration template for
// ragharness.
//
// The template is embedded at build time with //go:embed so it ships in
// every distribution, including plain `go install` builds. It is written
// by `ragharness init` and must stay in sync with the defaults in
// internal/config: the generated file loads, validates, and fingerprints
// identically to NewConfig().
package configs

import _ "embed"

// ConfigTemplate is the starter configuration written by `ragharness init`.
// It contains every required section with the harness defaults plus the
// optional tuning and logging sections.
//
//go:embed rag.example.yaml
var ConfigTemplate string
