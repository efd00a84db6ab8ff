package recorder

import "strings"

// Diagnostic is the classification of one FFmpeg diagnostic line.
type Diagnostic int

const (
	// DiagnosticUnrelated is ordinary FFmpeg chatter.
	DiagnosticUnrelated Diagnostic = iota
	// DiagnosticExpired means the upstream playlist is no longer servable
	// and the capture must be restarted with a fresh URL.
	DiagnosticExpired
)

// expirySignatures are the textual markers FFmpeg emits once a signed
// playlist URL has expired. The diagnostic stream is unstructured text, so
// detection is substring matching; keeping the contract here isolates the
// brittle string dependency from the state machine.
var expirySignatures = []string{
	"403 Forbidden",
	"Failed to reload playlist",
}

// ClassifyDiagnosticLine inspects one line of the transcoder's diagnostic
// stream for an expiry signature.
func ClassifyDiagnosticLine(line string) Diagnostic {
	for _, sig := range expirySignatures {
		if strings.Contains(line, sig) {
			return DiagnosticExpired
		}
	}
	return DiagnosticUnrelated
}
