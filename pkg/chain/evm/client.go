// Package evm implements the chain interfaces against an EVM title contract
// over JSON-RPC.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// Config configures the EVM ledger client.
type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string // hex, optional; without it the client is read-only
	Timeout         time.Duration
	RPS             float64
	PollInterval    time.Duration
	MaxScan         int
}

// backend is the subset of ethclient.Client the ledger client uses.
type backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client reads and writes title state on an EVM contract.
type Client struct {
	backend  backend
	closer   func()
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	limiter  *rate.Limiter
	timeout  time.Duration
	poll     time.Duration
	maxScan  int
	logger   *slog.Logger
}

// Dial connects to the RPC endpoint described by cfg.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	rpcClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	var chainID *big.Int
	if cfg.PrivateKey != "" {
		chainID, err = rpcClient.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("read chain id: %w", err)
		}
	}

	c, err := newClient(rpcClient, cfg, chainID)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	c.closer = rpcClient.Close
	return c, nil
}

func newClient(b backend, cfg Config, chainID *big.Int) (*Client, error) {
	c := &Client{
		backend:  b,
		closer:   func() {},
		contract: common.HexToAddress(cfg.ContractAddress),
		chainID:  chainID,
		timeout:  cfg.Timeout,
		poll:     cfg.PollInterval,
		maxScan:  cfg.MaxScan,
		logger:   slog.Default().With("component", "chain.evm"),
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.poll <= 0 {
		c.poll = time.Second
	}
	if c.maxScan <= 0 {
		c.maxScan = 1024
	}
	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), int(cfg.RPS)+1)
	}
	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
		if err != nil {
			return nil, errors.New("invalid ledger private key")
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// WithLogger overrides the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.closer()
}

// SignerConfigured implements chain.Registrar.
func (c *Client) SignerConfigured() bool {
	return c.key != nil && c.chainID != nil
}

// SignerAddress returns the lowercase signing address, or "" when read-only.
func (c *Client) SignerAddress() string {
	if c.key == nil {
		return ""
	}
	return strings.ToLower(c.from.Hex())
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// call runs a read-only contract method.
func (c *Client) call(ctx context.Context, contract abi.ABI, method string, args ...any) ([]any, error) {
	if err := c.wait(ctx); err != nil {
		return nil, unavailable(err)
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, &revertError{method: method, err: err}
		}
		return nil, unavailable(err)
	}
	vals, err := contract.Unpack(method, out)
	if err != nil {
		// An empty return from a contract that lacks the method decodes as an error.
		return nil, &revertError{method: method, err: err}
	}
	return vals, nil
}

// revertError marks a call the contract rejected, as opposed to a transport failure.
type revertError struct {
	method string
	err    error
}

func (e *revertError) Error() string { return e.method + ": " + e.err.Error() }
func (e *revertError) Unwrap() error { return e.err }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", property.ErrLedgerUnavailable, err)
}

func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func isAlreadyRegistered(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already registered") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "already requested")
}

func asRevert(err error) bool {
	var r *revertError
	return errors.As(err, &r)
}

func lowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}

var _ interface {
	chain.Reader
	chain.PropertyIndex
	chain.Registrar
	chain.Transferor
} = (*Client)(nil)
