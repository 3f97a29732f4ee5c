package lsds

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

// ParseKind resolves a configuration string to a protocol kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eris":
		return KindEris, nil
	case "steak":
		return KindSteak, nil
	case "stader":
		return KindStader, nil
	case "prism":
		return KindPrism, nil
	default:
		return 0, fmt.Errorf("lsds: unknown protocol kind %q", s)
	}
}

// HTTPClient queries a remote LSD protocol through its JSON query endpoint.
// It implements both client models; the adapter kind decides which methods
// get called.
type HTTPClient struct {
	base string
	http *http.Client
}

// NewHTTPClient builds a client against the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("lsds: query %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lsds: query %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("lsds: decode %s: %w", path, err)
	}
	return nil
}

func parseBig(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("lsds: invalid amount %q", s)
	}
	return amount, nil
}

// ExchangeRate queries the protocol's current share-to-utoken rate.
func (c *HTTPClient) ExchangeRate() (decimal.Decimal, error) {
	var body struct {
		ExchangeRate string `json:"exchange_rate"`
	}
	if err := c.get("/exchange_rate", &body); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(body.ExchangeRate)
}

// Withdrawable queries the amount already claimable by the user.
func (c *HTTPClient) Withdrawable(user types.Address) (*big.Int, error) {
	var body struct {
		Amount string `json:"amount"`
	}
	if err := c.get("/withdrawable/"+user.Hex(), &body); err != nil {
		return nil, err
	}
	return parseBig(body.Amount)
}

// PendingBatches queries the user's in-flight unbonding batches.
func (c *HTTPClient) PendingBatches(user types.Address) ([]RemoteBatch, error) {
	var body struct {
		Batches []struct {
			ID            uint64 `json:"id"`
			Shares        string `json:"shares"`
			RateAtRequest string `json:"rate_at_request"`
			Reconciled    bool   `json:"reconciled"`
			TokenAmount   string `json:"token_amount"`
		} `json:"batches"`
	}
	if err := c.get("/pending_batches/"+user.Hex(), &body); err != nil {
		return nil, err
	}
	batches := make([]RemoteBatch, 0, len(body.Batches))
	for _, raw := range body.Batches {
		shares, err := parseBig(raw.Shares)
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(raw.RateAtRequest)
		if err != nil {
			return nil, fmt.Errorf("lsds: invalid rate %q: %w", raw.RateAtRequest, err)
		}
		batch := RemoteBatch{ID: raw.ID, Shares: shares, RateAtRequest: rate, Reconciled: raw.Reconciled}
		if raw.Reconciled {
			if batch.TokenAmount, err = parseBig(raw.TokenAmount); err != nil {
				return nil, err
			}
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// UnbondRequestIDs queries the ids of the user's unbond requests.
func (c *HTTPClient) UnbondRequestIDs(user types.Address) ([]uint64, error) {
	var body struct {
		IDs []uint64 `json:"ids"`
	}
	if err := c.get("/unbond_requests/"+user.Hex(), &body); err != nil {
		return nil, err
	}
	return body.IDs, nil
}

// UnbondRequest queries the status of one unbond request.
func (c *HTTPClient) UnbondRequest(id uint64) (RequestStatus, error) {
	var body struct {
		Released bool   `json:"released"`
		Amount   string `json:"amount"`
	}
	if err := c.get(fmt.Sprintf("/unbond_request/%d", id), &body); err != nil {
		return RequestStatus{}, err
	}
	amount, err := parseBig(body.Amount)
	if err != nil {
		return RequestStatus{}, err
	}
	return RequestStatus{Released: body.Released, Amount: amount}, nil
}
