package ton

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tg-adescrow/backend/internal/config"
	"github.com/tg-adescrow/backend/internal/crypto"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"
)

// ErrUndeployedWallet is returned when an outbound transfer is requested
// from a wallet that has never been deployed and holds nothing to send.
var ErrUndeployedWallet = errors.New("wallet is not deployed on chain")

// WalletInfo is the result of creating a fresh escrow wallet. The mnemonic
// never leaves this package in plaintext.
type WalletInfo struct {
	Address           string
	EncryptedMnemonic string
	Version           string
}

// Transfer is one incoming value transfer, amounts in whole TON.
type Transfer struct {
	Hash    string
	LT      uint64
	At      time.Time
	Amount  decimal.Decimal
	From    string
	To      string
	Comment string
}

type Client struct {
	api    ton.APIClientWrapped
	cipher *crypto.Cipher
	log    *zap.Logger
}

// Connect establishes the liteserver connection pool. A specific lite server
// wins over the public global config when configured.
func Connect(ctx context.Context, cfg *config.Config, cipher *crypto.Cipher, log *zap.Logger) (*Client, error) {
	pool := liteclient.NewConnectionPool()

	if cfg.LiteServerHost != "" && cfg.LiteServerKey != "" {
		addr := fmt.Sprintf("%s:%d", cfg.LiteServerHost, cfg.LiteServerPort)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := pool.AddConnection(ctx, addr, cfg.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := "https://ton.org/testnet-global.config.json"
		if cfg.IsMainnet() {
			configURL = "https://ton.org/global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", cfg.TONNetwork))
		if err := pool.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := ton.ProofCheckPolicyFast
	if cfg.IsMainnet() {
		proofPolicy = ton.ProofCheckPolicySecure
	}

	api := ton.NewAPIClient(pool, proofPolicy).WithRetry()
	return &Client{api: api, cipher: cipher, log: log}, nil
}

// CreateWallet generates a fresh 24-word seed, derives a v4r2 wallet from it
// and returns the friendly address plus the encrypted mnemonic. Exactly one
// seed is generated and it is the one kept in custody.
func (c *Client) CreateWallet(ctx context.Context) (*WalletInfo, error) {
	seed := wallet.NewSeed()

	w, err := wallet.FromSeed(c.api, seed, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("derive wallet: %w", err)
	}

	encrypted, err := c.cipher.Encrypt(strings.Join(seed, " "))
	if err != nil {
		return nil, fmt.Errorf("encrypt mnemonic: %w", err)
	}

	return &WalletInfo{
		Address:           w.WalletAddress().String(),
		EncryptedMnemonic: encrypted,
		Version:           "v4r2",
	}, nil
}

// GetBalance returns the current balance in whole TON. An account that has
// never received anything reads as zero.
func (c *Client) GetBalance(ctx context.Context, addr string) (decimal.Decimal, error) {
	parsed, err := address.ParseAddr(addr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid address %s: %w", addr, err)
	}

	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get master block: %w", err)
	}

	account, err := c.api.GetAccount(ctx, block, parsed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get account: %w", err)
	}
	if account == nil || account.State == nil {
		// Nothing on chain yet; deposits may still be in flight.
		return decimal.Zero, nil
	}

	return decimal.NewFromBigInt(account.State.Balance.Nano(), -9), nil
}

// ListIncoming returns recent incoming transfers, newest first.
func (c *Client) ListIncoming(ctx context.Context, addr string, limit int) ([]Transfer, error) {
	parsed, err := address.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", addr, err)
	}

	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get master block: %w", err)
	}

	account, err := c.api.GetAccount(ctx, block, parsed)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil || account.LastTxLT == 0 {
		return nil, nil
	}

	if limit <= 0 || limit > 100 {
		limit = 32
	}

	txs, err := c.api.ListTransactions(ctx, parsed, uint32(limit), account.LastTxLT, account.LastTxHash)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	// ListTransactions returns oldest first within the batch.
	var transfers []Transfer
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		if tx.IO.In == nil {
			continue
		}
		inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
		if !ok || inMsg == nil || inMsg.Bounced {
			continue
		}
		if inMsg.Amount.Nano().Sign() <= 0 {
			continue
		}

		transfers = append(transfers, Transfer{
			Hash:    hex.EncodeToString(tx.Hash),
			LT:      tx.LT,
			At:      time.Unix(int64(tx.Now), 0),
			Amount:  decimal.NewFromBigInt(inMsg.Amount.Nano(), -9),
			From:    inMsg.SrcAddr.String(),
			To:      inMsg.DstAddr.String(),
			Comment: extractComment(inMsg),
		})
	}
	return transfers, nil
}

// Send decrypts the custody mnemonic, builds a signed transfer and
// broadcasts it, waiting for the transaction to land.
func (c *Client) Send(ctx context.Context, encryptedMnemonic, to string, amount decimal.Decimal, comment string) (string, error) {
	mnemonic, err := c.cipher.Decrypt(encryptedMnemonic)
	if err != nil {
		return "", err
	}

	w, err := wallet.FromSeed(c.api, strings.Split(mnemonic, " "), wallet.V4R2)
	if err != nil {
		return "", fmt.Errorf("derive wallet: %w", err)
	}

	dest, err := address.ParseAddr(to)
	if err != nil {
		return "", fmt.Errorf("invalid destination %s: %w", to, err)
	}

	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("get master block: %w", err)
	}
	account, err := c.api.GetAccount(ctx, block, w.WalletAddress())
	if err != nil {
		return "", fmt.Errorf("get account: %w", err)
	}
	// A wallet with no chain state and no funds cannot sign its first
	// transfer; one that merely holds funds is deployed on first send.
	if account == nil || (!account.IsActive && (account.State == nil || account.State.Balance.Nano().Sign() == 0)) {
		return "", ErrUndeployedWallet
	}

	nano := amount.Shift(9).BigInt()
	msg, err := w.BuildTransfer(dest, tlb.FromNanoTON(nano), false, comment)
	if err != nil {
		return "", fmt.Errorf("build transfer: %w", err)
	}

	tx, _, err := w.SendWaitTransaction(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("send transfer: %w", err)
	}

	hash := hex.EncodeToString(tx.Hash)
	c.log.Info("transfer sent",
		zap.String("to", dest.String()),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", hash),
	)
	return hash, nil
}

// extractComment parses a text comment from an internal message body.
// Text comments carry opcode 0x00000000 followed by UTF-8 text.
func extractComment(inMsg *tlb.InternalMessage) string {
	body := inMsg.Body
	if body == nil {
		return ""
	}

	slice := body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}

	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}

	remaining := slice.BitsLeft()
	if remaining < 8 {
		return ""
	}

	data, err := slice.LoadSlice(remaining)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
