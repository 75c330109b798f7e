package domain

import "errors"

// ErrMalformedEnvelope is returned when a raw-data message carries neither or
// both of {result, error}. Callers ack and drop on this error (spec §4.3).
var ErrMalformedEnvelope = errors.New("domain: envelope must carry exactly one of result or error")

// ErrorCode is the stable integer error taxonomy carried on the wire (spec
// §7). Alerters branch on this, never on the human-readable message.
type ErrorCode int

const (
	// Data-source reachability.
	ErrCannotAccessSource ErrorCode = 5000 + iota
	ErrDataReading
	ErrJSONDecode
	// NodeIsDown is what the node monitor reports when scraping its metrics
	// endpoint fails. The transformers' error funcs stamp went_down_at for an
	// error of any code, so downtime detection does not single this one out.
	ErrNodeIsDown

	// Schema/contract.
	ErrMetricNotFound
	ErrReceivedUnexpectedData
	ErrParentIDMismatch

	// Chainlink observer specific.
	ErrCouldNotRetrieveContracts
	ErrNoSyncedSource

	// Transient internal.
	ErrMessageNotDelivered
)

// String renders a human-readable name for logging; it is never sent on the
// wire in place of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCannotAccessSource:
		return "CannotAccessSource"
	case ErrDataReading:
		return "DataReading"
	case ErrJSONDecode:
		return "JSONDecode"
	case ErrNodeIsDown:
		return "NodeIsDown"
	case ErrMetricNotFound:
		return "MetricNotFound"
	case ErrReceivedUnexpectedData:
		return "ReceivedUnexpectedData"
	case ErrParentIDMismatch:
		return "ParentIdMismatch"
	case ErrCouldNotRetrieveContracts:
		return "CouldNotRetrieveContracts"
	case ErrNoSyncedSource:
		return "NoSyncedSource"
	case ErrMessageNotDelivered:
		return "MessageWasNotDelivered"
	default:
		return "Unknown"
	}
}
