package ampz

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// CallbackFinishExecution tags the self-callback that settles a dispatched
// execution. The fee intentions live in the persisted in-flight record, not
// in the payload; the payload only names the record.
const CallbackFinishExecution = "ampz.finish_execution"

type finishPayload struct {
	Kind          string
	CorrelationID string
}

// EncodeFinish serialises the finish continuation payload.
func EncodeFinish(correlationID string) ([]byte, error) {
	return rlp.EncodeToBytes(&finishPayload{
		Kind:          CallbackFinishExecution,
		CorrelationID: correlationID,
	})
}

// DecodeFinish parses a finish continuation payload.
func DecodeFinish(raw []byte) (string, error) {
	var payload finishPayload
	if err := rlp.DecodeBytes(raw, &payload); err != nil {
		return "", fmt.Errorf("ampz: decode callback: %w", err)
	}
	if payload.Kind != CallbackFinishExecution {
		return "", fmt.Errorf("ampz: unexpected callback kind %q", payload.Kind)
	}
	return payload.CorrelationID, nil
}
