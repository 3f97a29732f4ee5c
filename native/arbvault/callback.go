package arbvault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/shopspring/decimal"
)

// CallbackAssertResult tags the self-callback that settles an arbitrage
// round. The payload is persisted inside the callback message; no in-memory
// continuation survives between hops.
const CallbackAssertResult = "arbvault.assert_result"

type assertResultPayload struct {
	Kind         string
	ResultToken  string
	WantedProfit string
}

// EncodeAssertResult serialises the settlement continuation payload.
func EncodeAssertResult(resultToken string, wantedProfit decimal.Decimal) ([]byte, error) {
	return rlp.EncodeToBytes(&assertResultPayload{
		Kind:         CallbackAssertResult,
		ResultToken:  resultToken,
		WantedProfit: wantedProfit.String(),
	})
}

// DecodeAssertResult parses a settlement continuation payload.
func DecodeAssertResult(raw []byte) (resultToken string, wantedProfit decimal.Decimal, err error) {
	var payload assertResultPayload
	if err := rlp.DecodeBytes(raw, &payload); err != nil {
		return "", decimal.Zero, fmt.Errorf("arbvault: decode callback: %w", err)
	}
	if payload.Kind != CallbackAssertResult {
		return "", decimal.Zero, fmt.Errorf("arbvault: unexpected callback kind %q", payload.Kind)
	}
	profit, err := decimal.NewFromString(payload.WantedProfit)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("arbvault: corrupt wanted profit: %w", err)
	}
	return payload.ResultToken, profit, nil
}
