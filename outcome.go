package jsbridge

import (
	"time"

	"github.com/cryguy/jsbridge/internal/engine"
)

// OutcomeKind classifies how an execution ended.
type OutcomeKind int

const (
	// OutcomeValue is a successful completion; Text holds the stringified
	// completion value ("undefined" when there is none).
	OutcomeValue OutcomeKind = iota
	// OutcomeScriptError is a synchronous throw or a parse failure.
	OutcomeScriptError
	// OutcomePromiseRejection is a completion promise that rejected.
	OutcomePromiseRejection
	// OutcomeNotInitialized means the bridge was not in the Ready state.
	OutcomeNotInitialized
	// OutcomeInputRejected means the script was refused before reaching
	// the engine (empty, or over the configured length limit).
	OutcomeInputRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeValue:
		return "value"
	case OutcomeScriptError:
		return "script error"
	case OutcomePromiseRejection:
		return "promise rejection"
	case OutcomeNotInitialized:
		return "not initialized"
	case OutcomeInputRejected:
		return "input rejected"
	default:
		return "unknown"
	}
}

// ExecutionOutcome is the result of one execute-class operation.
// Succeeded is true only for OutcomeValue. Text carries the value or,
// for failures, a human-readable message with a kind-specific prefix.
type ExecutionOutcome struct {
	Succeeded bool
	Kind      OutcomeKind
	Text      string
}

// ExecutionRecord is one history entry. Script holds the source as
// submitted (or a placeholder label for compiled units).
type ExecutionRecord struct {
	Script    string
	Timestamp time.Time
	Outcome   ExecutionOutcome
	Duration  time.Duration
}

// normalizeOutcome maps a raw engine outcome to the public form, adding
// the stable message prefixes callers key on.
func normalizeOutcome(raw engine.RawOutcome) ExecutionOutcome {
	switch raw.Kind {
	case engine.RawError:
		return ExecutionOutcome{
			Kind: OutcomeScriptError,
			Text: "JavaScript Error: " + raw.Text,
		}
	case engine.RawRejection:
		return ExecutionOutcome{
			Kind: OutcomePromiseRejection,
			Text: "Promise Rejection: " + raw.Text,
		}
	default:
		return ExecutionOutcome{
			Succeeded: true,
			Kind:      OutcomeValue,
			Text:      raw.Text,
		}
	}
}

func notInitializedOutcome() ExecutionOutcome {
	return ExecutionOutcome{
		Kind: OutcomeNotInitialized,
		Text: "Bridge is not initialized",
	}
}

func inputRejectedOutcome(reason string) ExecutionOutcome {
	return ExecutionOutcome{
		Kind: OutcomeInputRejected,
		Text: reason,
	}
}
