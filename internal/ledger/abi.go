package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

const publisherABIJSON = `[{
	"type": "function",
	"name": "publishEntry",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "timestamp", "type": "uint64"},
		{"name": "price", "type": "uint64"},
		{"name": "tickerLen", "type": "uint64"},
		{"name": "ticker", "type": "uint64"},
		{"name": "rLow", "type": "uint128"},
		{"name": "rHigh", "type": "uint128"},
		{"name": "sLow", "type": "uint128"},
		{"name": "sHigh", "type": "uint128"},
		{"name": "v", "type": "uint8"},
		{"name": "publisher", "type": "uint256"}
	],
	"outputs": []
}]`

const multicall3ABIJSON = `[{
	"type": "function",
	"name": "aggregate3",
	"stateMutability": "payable",
	"inputs": [{
		"name": "calls",
		"type": "tuple[]",
		"components": [
			{"name": "target", "type": "address"},
			{"name": "allowFailure", "type": "bool"},
			{"name": "callData", "type": "bytes"}
		]
	}],
	"outputs": [{
		"name": "returnData",
		"type": "tuple[]",
		"components": [
			{"name": "success", "type": "bool"},
			{"name": "returnData", "type": "bytes"}
		]
	}]
}]`

// Call is one Multicall3 aggregate3 entry.
type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

func parseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Codec packs publishEntry calls and Multicall3 batches.
type Codec struct {
	publisher *abi.ABI
	multicall *abi.ABI
}

// NewCodec parses the contract ABIs.
func NewCodec() (*Codec, error) {
	pub, err := parseABI(publisherABIJSON)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse publisher ABI: %w", err)
	}
	mc, err := parseABI(multicall3ABIJSON)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse multicall3 ABI: %w", err)
	}
	return &Codec{publisher: pub, multicall: mc}, nil
}

// PackPublishEntry encodes one publishEntry call.
func (c *Codec) PackPublishEntry(a domain.ContractCallArgs) ([]byte, error) {
	data, err := c.publisher.Pack("publishEntry",
		a.Timestamp,
		a.Price,
		a.TickerLen,
		a.TickerValue,
		a.RLow,
		a.RHigh,
		a.SLow,
		a.SHigh,
		a.RecoveryID,
		a.PublisherIdentity,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack publishEntry %s: %w", a.Ticker, err)
	}
	return data, nil
}

// PackAggregate3 wraps publishEntry calls to target into one all-or-none
// Multicall3 batch.
func (c *Codec) PackAggregate3(target common.Address, calls []domain.ContractCallArgs) ([]byte, error) {
	entries := make([]Call, len(calls))
	for i, a := range calls {
		data, err := c.PackPublishEntry(a)
		if err != nil {
			return nil, err
		}
		entries[i] = Call{Target: target, AllowFailure: false, CallData: data}
	}

	data, err := c.multicall.Pack("aggregate3", entries)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack aggregate3 of %d: %w", len(calls), err)
	}
	return data, nil
}
