package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tg-adescrow/backend/internal/events"
	"github.com/tg-adescrow/backend/internal/models"
	"github.com/tg-adescrow/backend/internal/ton"
	"go.uber.org/zap"
)

var (
	// ErrNoDestination means no payout address could be resolved for a
	// release or refund.
	ErrNoDestination = errors.New("no destination wallet on record")
	// ErrInsufficientForFee means the escrow balance cannot cover the
	// network fee reserve.
	ErrInsufficientForFee = errors.New("escrow balance does not cover the network fee reserve")
	// ErrDepositPending means the wallet has not yet received the expected
	// amount.
	ErrDepositPending = errors.New("deposit not yet detected or below expected amount")
)

var (
	// feeReserve is withheld from every outbound transfer to pay gas.
	feeReserve = decimal.RequireFromString("0.05")
	// depositTolerance accepts deposits within 1% of the expected amount to
	// absorb sender-side fees.
	depositTolerance = decimal.RequireFromString("0.99")
)

type EscrowStore interface {
	CreateWallet(ctx context.Context, w *models.EscrowWallet) error
	GetWalletByDealID(ctx context.Context, dealID uuid.UUID) (*models.EscrowWallet, error)
	UpdateBalance(ctx context.Context, dealID uuid.UUID, balance decimal.Decimal, checkedAt time.Time) error
	InsertTransaction(ctx context.Context, tx *models.EscrowTransaction) (bool, error)
	ListTransactionsByDeal(ctx context.Context, dealID uuid.UUID) ([]models.EscrowTransaction, error)
}

type EscrowDealStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	SetAdvertiserWallet(ctx context.Context, id uuid.UUID, wallet string) error
}

// EscrowPostStore keeps the deal's post row in step with out-of-band
// settlements so the worker stops re-verifying a paid-out post.
type EscrowPostStore interface {
	UpdateStatusByDealID(ctx context.Context, dealID uuid.UUID, status string) error
}

// Chain is the blockchain surface the escrow flow needs.
type Chain interface {
	CreateWallet(ctx context.Context) (*ton.WalletInfo, error)
	GetBalance(ctx context.Context, addr string) (decimal.Decimal, error)
	ListIncoming(ctx context.Context, addr string, limit int) ([]ton.Transfer, error)
	Send(ctx context.Context, encryptedMnemonic, to string, amount decimal.Decimal, comment string) (string, error)
}

// DealFSM is the slice of DealService the settlement paths use.
type DealFSM interface {
	TransitionFrom(ctx context.Context, dealID uuid.UUID, fromStates []string, newStatus string, actorID *uuid.UUID) (*models.Deal, error)
}

// EscrowStatus is the live view of a deal's escrow wallet.
type EscrowStatus struct {
	Address        string          `json:"address"`
	Balance        decimal.Decimal `json:"balance"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	IsFunded       bool            `json:"is_funded"`
	CheckedAt      time.Time       `json:"checked_at"`
}

// EscrowService owns the money side of a deal: one custody wallet per deal,
// deposit detection, release to the channel owner and refund to the
// advertiser.
type EscrowService struct {
	escrow    EscrowStore
	deals     EscrowDealStore
	channels  ChannelStore
	posts     EscrowPostStore
	chain     Chain
	fsm       DealFSM
	publisher events.Publisher
	log       *zap.Logger
}

func NewEscrowService(escrow EscrowStore, deals EscrowDealStore, channels ChannelStore, posts EscrowPostStore,
	chain Chain, fsm DealFSM, publisher events.Publisher, log *zap.Logger) *EscrowService {
	return &EscrowService{escrow: escrow, deals: deals, channels: channels, posts: posts,
		chain: chain, fsm: fsm, publisher: publisher, log: log}
}

// CreateWallet provisions the deal's escrow wallet. A second call returns
// the existing wallet.
func (s *EscrowService) CreateWallet(ctx context.Context, dealID uuid.UUID) (*models.EscrowWallet, error) {
	if existing, err := s.escrow.GetWalletByDealID(ctx, dealID); err == nil {
		return existing, nil
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalStatus(deal.Status) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalDeal, deal.Status)
	}

	info, err := s.chain.CreateWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chain wallet: %w", err)
	}

	w := &models.EscrowWallet{
		DealID:            dealID,
		Address:           info.Address,
		EncryptedMnemonic: info.EncryptedMnemonic,
		WalletVersion:     info.Version,
	}
	if err := s.escrow.CreateWallet(ctx, w); err != nil {
		return nil, err
	}

	s.log.Info("escrow wallet created",
		zap.String("deal_id", dealID.String()),
		zap.String("address", info.Address))
	return w, nil
}

// GetStatus reads the live balance, refreshes the cached one and reports
// whether the deposit threshold is met.
func (s *EscrowService) GetStatus(ctx context.Context, dealID uuid.UUID) (*EscrowStatus, error) {
	wallet, err := s.escrow.GetWalletByDealID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	balance, err := s.chain.GetBalance(ctx, wallet.Address)
	if err != nil {
		// Chain is down; serve the cached value.
		s.log.Warn("balance check failed, serving cached balance",
			zap.String("deal_id", dealID.String()), zap.Error(err))
		balance = wallet.Balance
		if wallet.LastCheckedAt != nil {
			now = *wallet.LastCheckedAt
		}
	} else if err := s.escrow.UpdateBalance(ctx, dealID, balance, now); err != nil {
		s.log.Warn("failed to cache balance", zap.String("deal_id", dealID.String()), zap.Error(err))
	}

	return &EscrowStatus{
		Address:        wallet.Address,
		Balance:        balance,
		ExpectedAmount: deal.EscrowAmount,
		IsFunded:       meetsThreshold(balance, deal.EscrowAmount),
		CheckedAt:      now,
	}, nil
}

// VerifyDeposit checks the wallet for the expected deposit, records incoming
// transfers and moves the deal to funded once the threshold is met. Repeated
// calls are idempotent: transfers are keyed by tx hash and an already funded
// deal is a no-op.
func (s *EscrowService) VerifyDeposit(ctx context.Context, dealID uuid.UUID) (*EscrowStatus, error) {
	wallet, err := s.escrow.GetWalletByDealID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	balance, err := s.chain.GetBalance(ctx, wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("check balance: %w", err)
	}
	now := time.Now()
	if err := s.escrow.UpdateBalance(ctx, dealID, balance, now); err != nil {
		s.log.Warn("failed to cache balance", zap.String("deal_id", dealID.String()), zap.Error(err))
	}

	transfers, err := s.chain.ListIncoming(ctx, wallet.Address, 32)
	if err != nil {
		s.log.Warn("failed to list incoming transfers",
			zap.String("deal_id", dealID.String()), zap.Error(err))
	}
	for _, t := range transfers {
		inserted, err := s.escrow.InsertTransaction(ctx, &models.EscrowTransaction{
			WalletID: wallet.ID,
			DealID:   dealID,
			TxHash:   t.Hash,
			Kind:     models.TxKindDeposit,
			Amount:   t.Amount,
			FromAddr: &t.From,
			ToAddr:   &t.To,
			Status:   models.TxStatusConfirmed,
		})
		if err != nil {
			return nil, fmt.Errorf("record deposit: %w", err)
		}
		if inserted && s.publisher != nil {
			_ = s.publisher.Publish(ctx, events.StreamDeals, events.Event{
				Type: events.EventEscrowPayment,
				Payload: map[string]any{
					"deal_id": dealID.String(),
					"tx_hash": t.Hash,
					"amount":  t.Amount.String(),
					"from":    t.From,
				},
			})
		}
		if inserted && deal.AdvertiserWallet == nil && t.From != "" {
			// Remember where the money came from for a later refund.
			if err := s.deals.SetAdvertiserWallet(ctx, dealID, t.From); err != nil {
				s.log.Warn("failed to record advertiser wallet", zap.Error(err))
			} else {
				from := t.From
				deal.AdvertiserWallet = &from
			}
		}
	}

	status := &EscrowStatus{
		Address:        wallet.Address,
		Balance:        balance,
		ExpectedAmount: deal.EscrowAmount,
		IsFunded:       meetsThreshold(balance, deal.EscrowAmount),
		CheckedAt:      now,
	}
	if !status.IsFunded {
		return status, ErrDepositPending
	}

	if deal.Status == models.DealStatusFunded {
		return status, nil
	}
	if _, err := s.fsm.TransitionFrom(ctx, dealID,
		[]string{models.DealStatusPending, models.DealStatusAccepted}, models.DealStatusFunded, nil); err != nil {
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) && invalid.From == models.DealStatusFunded {
			return status, nil
		}
		return nil, err
	}
	return status, nil
}

// settleable lists the deal states money may still move out of.
var settleable = []string{models.DealStatusFunded, models.DealStatusPosted, models.DealStatusVerified}

// Release pays the escrow balance minus the fee reserve to the channel
// owner and completes the deal.
func (s *EscrowService) Release(ctx context.Context, dealID uuid.UUID, destinationHint string) (string, error) {
	return s.settle(ctx, dealID, destinationHint, models.TxKindRelease, models.DealStatusCompleted)
}

// Refund returns the escrow balance minus the fee reserve to the advertiser.
func (s *EscrowService) Refund(ctx context.Context, dealID uuid.UUID, destinationHint string) (string, error) {
	return s.settle(ctx, dealID, destinationHint, models.TxKindRefund, models.DealStatusRefunded)
}

func (s *EscrowService) settle(ctx context.Context, dealID uuid.UUID, destinationHint, kind, finalStatus string) (string, error) {
	wallet, err := s.escrow.GetWalletByDealID(ctx, dealID)
	if err != nil {
		return "", err
	}
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return "", err
	}
	if models.IsTerminalStatus(deal.Status) {
		return "", fmt.Errorf("%w: %s", ErrTerminalDeal, deal.Status)
	}

	dest := s.resolveDestination(ctx, deal, kind, destinationHint)
	if dest == "" {
		return "", ErrNoDestination
	}

	balance, err := s.chain.GetBalance(ctx, wallet.Address)
	if err != nil {
		return "", fmt.Errorf("check balance: %w", err)
	}
	amount := balance.Sub(feeReserve)
	if amount.Sign() <= 0 {
		return "", ErrInsufficientForFee
	}

	// The transition comes first so a concurrent settle attempt loses the
	// compare-and-set before any money moves.
	if _, err := s.fsm.TransitionFrom(ctx, dealID, settleable, finalStatus, nil); err != nil {
		return "", err
	}

	comment := fmt.Sprintf("%s deal %s", kind, dealID.String())
	txHash, err := s.chain.Send(ctx, wallet.EncryptedMnemonic, dest, amount, comment)
	if err != nil {
		s.log.Error("settlement transfer failed after transition",
			zap.String("deal_id", dealID.String()),
			zap.String("kind", kind),
			zap.Error(err))
		return "", fmt.Errorf("send %s: %w", kind, err)
	}

	if _, err := s.escrow.InsertTransaction(ctx, &models.EscrowTransaction{
		WalletID: wallet.ID,
		DealID:   dealID,
		TxHash:   txHash,
		Kind:     kind,
		Amount:   amount,
		FromAddr: &wallet.Address,
		ToAddr:   &dest,
		Status:   models.TxStatusConfirmed,
	}); err != nil {
		s.log.Error("failed to record settlement transaction",
			zap.String("deal_id", dealID.String()),
			zap.String("tx_hash", txHash),
			zap.Error(err))
	}

	if err := s.escrow.UpdateBalance(ctx, dealID, decimal.Zero, time.Now()); err != nil {
		s.log.Warn("failed to reset cached balance", zap.Error(err))
	}

	if s.posts != nil {
		postStatus := models.PostStatusReleased
		if kind == models.TxKindRefund {
			postStatus = models.PostStatusRefunded
		}
		if err := s.posts.UpdateStatusByDealID(ctx, dealID, postStatus); err != nil {
			s.log.Warn("failed to advance post row after settlement",
				zap.String("deal_id", dealID.String()), zap.Error(err))
		}
	}

	s.log.Info("escrow settled",
		zap.String("deal_id", dealID.String()),
		zap.String("kind", kind),
		zap.String("to", dest),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", txHash))
	return txHash, nil
}

// resolveDestination picks the payout address: the caller's hint wins, then
// the address stored on the deal, then the channel's current payout wallet.
func (s *EscrowService) resolveDestination(ctx context.Context, deal *models.Deal, kind, hint string) string {
	if hint != "" {
		return hint
	}
	switch kind {
	case models.TxKindRelease:
		if deal.ChannelOwnerWallet != nil && *deal.ChannelOwnerWallet != "" {
			return *deal.ChannelOwnerWallet
		}
		// The deal carries a copy taken at creation time; the owner may have
		// set the channel wallet since.
		if s.channels != nil {
			if channel, err := s.channels.GetByID(ctx, deal.ChannelID); err == nil &&
				channel.OwnerTONWallet != nil && *channel.OwnerTONWallet != "" {
				return *channel.OwnerTONWallet
			}
		}
	case models.TxKindRefund:
		if deal.AdvertiserWallet != nil && *deal.AdvertiserWallet != "" {
			return *deal.AdvertiserWallet
		}
	}
	return ""
}

func (s *EscrowService) Transactions(ctx context.Context, dealID uuid.UUID) ([]models.EscrowTransaction, error) {
	return s.escrow.ListTransactionsByDeal(ctx, dealID)
}

func meetsThreshold(balance, expected decimal.Decimal) bool {
	if expected.Sign() <= 0 {
		return false
	}
	return balance.GreaterThanOrEqual(expected.Mul(depositTolerance))
}
