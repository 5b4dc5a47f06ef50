package wat

import (
	"strings"

	"github.com/wippyai/wasm-cook/backend"
	"github.com/wippyai/wasm-cook/scope"
)

// options is the parsed form of a task's option tokens.
type options struct {
	debug           backend.DebugInfo
	searchPaths     []string
	externs         []string
	werror          bool
	nowarn          bool
	allowUnresolved bool
	noValidate      bool
}

// parseOptions reads args in order; later debug options override earlier
// ones. It returns the offending token for the first invalid option.
func parseOptions(args []string) (options, string, bool) {
	var o options
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-g":
			o.debug = backend.DebugInfo{Source: true, Lines: true, Vars: true}
		case strings.HasPrefix(arg, backend.OptDebugPrefix):
			d, err := backend.ParseDebugInfo(arg)
			if err != nil {
				return o, arg, false
			}
			o.debug = d
		case arg == backend.OptSearchPath, arg == backend.OptExtern:
			if i+1 >= len(args) || args[i+1] == "" {
				return o, arg, false
			}
			i++
			if arg == backend.OptSearchPath {
				o.searchPaths = append(o.searchPaths, args[i])
			} else {
				o.externs = append(o.externs, args[i])
			}
		case arg == backend.OptWarningsAsErrors:
			o.werror = true
		case arg == backend.OptNoWarn:
			o.nowarn = true
		case arg == backend.OptAllowUnresolved:
			o.allowUnresolved = true
		case arg == backend.OptNoValidate:
			o.noValidate = true
		default:
			return o, arg, false
		}
	}
	return o, "", true
}

// hasExtern reports whether module is provided at load time. Versions are
// matched the way the parent context matches them.
func (o *options) hasExtern(module string) bool {
	for _, e := range o.externs {
		if scope.Serves(e, module) {
			return true
		}
	}
	return false
}
