package types

import "math/big"

// Message describes an outbound effect produced by an engine operation.
// Cross-contract calls are asynchronous: a transition returns the messages it
// wants dispatched and the host delivers them in emission order, depth-first,
// after the state write commits. Replies surface as later callback
// transactions, never as return values.
type Message interface {
	MessageType() string
}

// Transfer moves a coin from the contract to a recipient.
type Transfer struct {
	To   Address
	Coin Coin
}

func (Transfer) MessageType() string { return "bank.transfer" }

// TransferFrom pulls a coin from a granter account into a recipient. Valid
// only when the granter has authorized the emitting contract.
type TransferFrom struct {
	From Address
	To   Address
	Coin Coin
}

func (TransferFrom) MessageType() string { return "bank.transfer_from" }

// MintShares instructs the share-token ledger to mint derivative shares.
type MintShares struct {
	To     Address
	Amount *big.Int
}

func (MintShares) MessageType() string { return "token.mint" }

// BurnShares instructs the share-token ledger to burn derivative shares held
// by the contract.
type BurnShares struct {
	Amount *big.Int
}

func (BurnShares) MessageType() string { return "token.burn" }

// Delegate bonds native stake with a validator through the staking module.
type Delegate struct {
	Validator string
	Amount    *big.Int
}

func (Delegate) MessageType() string { return "staking.delegate" }

// Undelegate releases native stake from a validator through the staking
// module. The released funds arrive after the chain unbonding period.
type Undelegate struct {
	Validator string
	Amount    *big.Int
}

func (Undelegate) MessageType() string { return "staking.undelegate" }

// WithdrawRewards claims accrued staking rewards from a validator; the coins
// land in the contract's liquid balance.
type WithdrawRewards struct {
	Validator string
}

func (WithdrawRewards) MessageType() string { return "staking.withdraw_rewards" }

// ExecuteContract invokes an action on an external contract, optionally
// forwarding funds. The payload semantics belong to the target.
type ExecuteContract struct {
	Contract Address
	Action   string
	Funds    []Coin
}

func (ExecuteContract) MessageType() string { return "wasm.execute" }

// Callback schedules a self-addressed continuation. The host redelivers the
// payload to the emitting contract in a later transaction with the contract
// itself as sender, which is what authorizes the two-phase protocols built on
// top of it.
type Callback struct {
	Contract      Address
	CorrelationID string
	Payload       []byte
}

func (Callback) MessageType() string { return "contract.callback" }
