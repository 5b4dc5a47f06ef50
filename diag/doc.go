// Package diag models compiler diagnostics and the bridge that routes them.
//
// A backend reports every Diagnostic to a Listener. The Bridge is the
// Listener a session attaches: errors go to a registered ErrorHandler or
// become the compilation's failure, warnings go to a WarningHandler or are
// dropped, notes are dropped. Whatever happens is accumulated in an Outcome
// that the session reads once the backend returns; the first captured
// failure wins.
package diag
