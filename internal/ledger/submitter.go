// Package ledger submits publishEntry calls to the Open Oracle publisher
// contract on an EVM chain.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// Compile-time check that Submitter implements domain.Submitter.
var _ domain.Submitter = (*Submitter)(nil)

// ChainClient is the subset of *ethclient.Client the submitter uses.
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxSigner signs transactions for one account on one chain.
type TxSigner interface {
	Address() common.Address
	ChainID() *big.Int
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Config describes the target contracts and confirmation behaviour.
type Config struct {
	// Contract is the Open Oracle publisher contract.
	Contract common.Address
	// Multicall is the Multicall3 deployment used for batches.
	Multicall common.Address

	// WaitReceipt makes Submit block until the transaction is mined.
	WaitReceipt    bool
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration

	// GasHeadroomPct is added on top of the node's gas estimate.
	GasHeadroomPct uint64
}

func (c *Config) applyDefaults() {
	if c.ReceiptTimeout == 0 {
		c.ReceiptTimeout = 2 * time.Minute
	}
	if c.ReceiptPoll == 0 {
		c.ReceiptPoll = 2 * time.Second
	}
	if c.GasHeadroomPct == 0 {
		c.GasHeadroomPct = 20
	}
}

// Submitter sends publishEntry transactions from a single account. A single
// call goes straight to the contract; several calls are wrapped in one
// Multicall3 aggregate3 so they land or revert together. Submit calls are
// serialized and the account nonce is tracked locally.
type Submitter struct {
	client ChainClient
	signer TxSigner
	codec  *Codec
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	nonce    uint64
	hasNonce bool
}

// NewSubmitter creates a Submitter.
func NewSubmitter(client ChainClient, signer TxSigner, cfg Config, logger *slog.Logger) (*Submitter, error) {
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}
	if cfg.Contract == (common.Address{}) {
		return nil, errors.New("ledger: contract address is required")
	}
	cfg.applyDefaults()

	return &Submitter{
		client: client,
		signer: signer,
		codec:  codec,
		cfg:    cfg,
		logger: logger.With(
			slog.String("component", "ledger"),
			slog.String("account", signer.Address().Hex()),
		),
	}, nil
}

// Submit sends calls as one transaction and returns its hash.
func (s *Submitter) Submit(ctx context.Context, calls []domain.ContractCallArgs) (string, error) {
	if len(calls) == 0 {
		return "", errors.New("ledger: submit: no calls")
	}

	to, data, err := s.encode(calls)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.send(ctx, to, data)
	if err != nil {
		s.hasNonce = false
		return "", classify(fmt.Errorf("ledger: submit: %w", err))
	}

	hash := tx.Hash()
	s.logger.InfoContext(ctx, "transaction sent",
		slog.String("tx", hash.Hex()),
		slog.Uint64("nonce", tx.Nonce()),
		slog.Int("calls", len(calls)),
		slog.Uint64("gas", tx.Gas()),
	)

	if s.cfg.WaitReceipt {
		if err := s.waitMined(ctx, hash); err != nil {
			return "", err
		}
	}
	return hash.Hex(), nil
}

func (s *Submitter) encode(calls []domain.ContractCallArgs) (common.Address, []byte, error) {
	if len(calls) == 1 {
		data, err := s.codec.PackPublishEntry(calls[0])
		return s.cfg.Contract, data, err
	}
	if s.cfg.Multicall == (common.Address{}) {
		return common.Address{}, nil, errors.New("ledger: batched submit needs a multicall address")
	}
	data, err := s.codec.PackAggregate3(s.cfg.Contract, calls)
	return s.cfg.Multicall, data, err
}

func (s *Submitter) send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	from := s.signer.Address()

	if !s.hasNonce {
		n, err := s.client.PendingNonceAt(ctx, from)
		if err != nil {
			return nil, fmt.Errorf("pending nonce: %w", err)
		}
		s.nonce, s.hasNonce = n, true
	}

	tip, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	} else {
		feeCap.Mul(feeCap, big.NewInt(2))
	}

	gas, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &to,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas += gas * s.cfg.GasHeadroomPct / 100

	tx, err := s.signer.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.signer.ChainID(),
		Nonce:     s.nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	}))
	if err != nil {
		return nil, err
	}

	if err := s.client.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	s.nonce++
	return tx, nil
}

// waitMined polls for the receipt of hash. A reverted transaction is a
// validation rejection; running out of time is a transport failure.
func (s *Submitter) waitMined(ctx context.Context, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("ledger: tx %s: %w: reverted in block %s",
					hash.Hex(), domain.ErrValidationRejected, receipt.BlockNumber)
			}
			s.logger.InfoContext(ctx, "transaction mined",
				slog.String("tx", hash.Hex()),
				slog.Uint64("gas_used", receipt.GasUsed),
			)
			return nil
		case !errors.Is(err, ethereum.NotFound):
			s.logger.WarnContext(ctx, "receipt lookup failed",
				slog.String("tx", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("ledger: tx %s: %w: receipt not available: %w", hash.Hex(), domain.ErrTransport, ctx.Err())
		case <-ticker.C:
		}
	}
}
