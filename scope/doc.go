// Package scope provides parent resolution contexts for loaded units.
//
// A Context answers one question during linking: which instantiated module
// in the shared wazero runtime satisfies an import module name. Host
// registers Go functions under module names such as "env" or
// "console@1.2.0" and instantiates them on first lookup. Versioned names
// match semver-compatibly: an import of "console@1.1" is satisfied by
// "console@1.2.0" but not by "console@2.0.0".
//
// Contexts chain through their parents, so a lookup that misses locally
// is retried further up.
package scope
