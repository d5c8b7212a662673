package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/wallet"
)

// Entrypoints implements chain.Registrar in the default order. Callers
// narrow the list with chain.SelectEntrypoints.
func (c *Client) Entrypoints() []chain.Entrypoint {
	names := []string{"requestRegistration", "registerProperty", "storeHash"}
	eps := make([]chain.Entrypoint, 0, len(names))
	for _, name := range names {
		eps = append(eps, entrypoint{client: c, name: name, contract: registrationABI[name]})
	}
	return eps
}

type entrypoint struct {
	client   *Client
	name     string
	contract abi.ABI
}

func (e entrypoint) Name() string { return e.name }

// Register simulates the call first so that reverts are classified without
// spending gas, then signs, sends and waits for the receipt.
func (e entrypoint) Register(ctx context.Context, hash string) chain.WriteResult {
	c := e.client
	if !c.SignerConfigured() {
		return chain.WriteResult{Status: chain.WriteUnavailable, Err: property.ErrSignerConfigMissing}
	}
	data, err := e.contract.Pack(e.name, hash)
	if err != nil {
		return chain.WriteResult{Status: chain.WriteReverted, Err: fmt.Errorf("pack %s: %w", e.name, err)}
	}

	receipt, err := c.transact(ctx, data)
	switch {
	case err == nil:
		return chain.WriteResult{Status: chain.WriteRegistered, Receipt: receipt}
	case asRevert(err) && isAlreadyRegistered(err):
		return chain.WriteResult{Status: chain.WriteAlreadyRegistered, Err: err}
	case asRevert(err):
		return chain.WriteResult{Status: chain.WriteReverted, Err: err}
	default:
		return chain.WriteResult{Status: chain.WriteUnavailable, Err: err}
	}
}

// Transfer implements chain.Transferor. Id-indexed registries are addressed
// by property id; otherwise the vault's hash-keyed transfer is used.
func (c *Client) Transfer(ctx context.Context, hash, newOwner string) (chain.Receipt, error) {
	if !c.SignerConfigured() {
		return chain.Receipt{}, property.ErrSignerConfigMissing
	}
	owner, err := wallet.Normalize(newOwner)
	if err != nil {
		return chain.Receipt{}, fmt.Errorf("%w: %v", property.ErrValidation, err)
	}
	to := common.HexToAddress(owner)

	id, err := c.ResolvePropertyID(ctx, hash)
	if err != nil {
		return chain.Receipt{}, err
	}
	var data []byte
	if id > 0 {
		data, err = registry.Pack("transferProperty", new(big.Int).SetUint64(id), to)
	} else {
		data, err = vault.Pack("transferProperty", hash, to)
	}
	if err != nil {
		return chain.Receipt{}, fmt.Errorf("pack transferProperty: %w", err)
	}
	return c.transact(ctx, data)
}

// transact simulates, signs and sends a call to the contract and waits for
// it to be mined. Reverts come back as *revertError.
func (c *Client) transact(ctx context.Context, data []byte) (chain.Receipt, error) {
	if err := c.wait(ctx); err != nil {
		return chain.Receipt{}, unavailable(err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg := ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}
	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		if isRevert(err) {
			return chain.Receipt{}, &revertError{method: "simulate", err: err}
		}
		return chain.Receipt{}, unavailable(err)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return chain.Receipt{}, unavailable(err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return chain.Receipt{}, unavailable(err)
	}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		if isRevert(err) {
			return chain.Receipt{}, &revertError{method: "estimate", err: err}
		}
		return chain.Receipt{}, unavailable(err)
	}
	gas += gas / 5

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return chain.Receipt{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		if isRevert(err) {
			return chain.Receipt{}, &revertError{method: "send", err: err}
		}
		return chain.Receipt{}, unavailable(err)
	}

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return chain.Receipt{}, err
	}
	out := chain.Receipt{TxHash: strings.ToLower(signed.Hash().Hex())}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return out, &revertError{method: "receipt", err: fmt.Errorf("transaction %s reverted", out.TxHash)}
	}
	return out, nil
}

func (c *Client) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, unavailable(err)
		}
		select {
		case <-ctx.Done():
			return nil, unavailable(fmt.Errorf("waiting for %s: %w", txHash.Hex(), ctx.Err()))
		case <-ticker.C:
		}
	}
}
