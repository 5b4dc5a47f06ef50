package backend

import (
	"strings"

	"github.com/wippyai/wasm-cook/errors"
)

// Option tokens understood by the built-in compiler and injected by sessions.
const (
	OptDebugPrefix      = "-g:"
	OptSearchPath       = "-L"
	OptExtern           = "-extern"
	OptWarningsAsErrors = "-Werror"
	OptNoWarn           = "-nowarn"
	OptAllowUnresolved  = "-Xallow-unresolved"
	OptNoValidate       = "-Xno-validate"
)

// DebugInfo selects which debug information an artifact carries.
type DebugInfo struct {
	Source bool
	Lines  bool
	Vars   bool
}

// None reports whether no debug information is requested.
func (d DebugInfo) None() bool {
	return !d.Source && !d.Lines && !d.Vars
}

// Token renders d as an explicit -g: option, never the bare -g form.
func (d DebugInfo) Token() string {
	if d.None() {
		return OptDebugPrefix + "none"
	}
	var parts []string
	if d.Source {
		parts = append(parts, "source")
	}
	if d.Lines {
		parts = append(parts, "lines")
	}
	if d.Vars {
		parts = append(parts, "vars")
	}
	return OptDebugPrefix + strings.Join(parts, ",")
}

// ParseDebugInfo parses a -g: option token.
func ParseDebugInfo(token string) (DebugInfo, error) {
	list, ok := strings.CutPrefix(token, OptDebugPrefix)
	if !ok || list == "" {
		return DebugInfo{}, errors.New(errors.PhaseConfigure, errors.KindInvalidInput).
			Value(token).
			Detailf("invalid debug option %q", token).
			Build()
	}
	var d DebugInfo
	if list == "none" {
		return d, nil
	}
	for _, part := range strings.Split(list, ",") {
		switch part {
		case "source":
			d.Source = true
		case "lines":
			d.Lines = true
		case "vars":
			d.Vars = true
		default:
			return DebugInfo{}, errors.New(errors.PhaseConfigure, errors.KindInvalidInput).
				Value(token).
				Detailf("unknown debug keyword %q", part).
				Build()
		}
	}
	return d, nil
}
