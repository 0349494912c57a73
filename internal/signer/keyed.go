package signer

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// KeyedTransactor signs legacy transactions locally with the private keys it
// holds. Only accounts with a loaded key can send.
type KeyedTransactor struct {
	backend  Backend
	waiter   *ReceiptWaiter
	keys     map[common.Address]*ecdsa.PrivateKey
	gasLimit uint64
	logger   *logrus.Entry
}

// NewKeyedTransactor parses the hex private keys, with or without 0x prefix
func NewKeyedTransactor(backend Backend, waiter *ReceiptWaiter, hexKeys []string, gasLimit uint64) (*KeyedTransactor, error) {
	keys := make(map[common.Address]*ecdsa.PrivateKey, len(hexKeys))
	for _, hexKey := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid private key", err.Error())
		}
		keys[crypto.PubkeyToAddress(key.PublicKey)] = key
	}

	return &KeyedTransactor{
		backend:  backend,
		waiter:   waiter,
		keys:     keys,
		gasLimit: gasLimit,
		logger:   utils.Component("keyed_transactor"),
	}, nil
}

// Send implements Transactor
func (kt *KeyedTransactor) Send(ctx context.Context, from common.Address, to *common.Address, data []byte) (*types.Receipt, error) {
	key, ok := kt.keys[from]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "No private key for sender", from.Hex())
	}

	chainID, err := kt.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := kt.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := kt.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gas := kt.gasLimit
	if gas == 0 {
		gas, err = kt.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: to, Data: data})
		if err != nil {
			return nil, err
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       to,
		Value:    big.NewInt(0),
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to sign transaction", err.Error())
	}

	if err := kt.backend.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}

	kt.logger.WithFields(logrus.Fields{
		"from":    from.Hex(),
		"to":      addressOrCreate(to),
		"nonce":   nonce,
		"tx_hash": signed.Hash().Hex(),
	}).Debug("Transaction sent")

	return kt.waiter.Wait(ctx, signed.Hash())
}
