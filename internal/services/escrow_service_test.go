package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tg-adescrow/backend/internal/models"
	"github.com/tg-adescrow/backend/internal/ton"
	"go.uber.org/zap"
)

type fakeEscrowStore struct {
	wallets map[uuid.UUID]*models.EscrowWallet
	txs     map[string]*models.EscrowTransaction
}

func newFakeEscrowStore(wallets ...*models.EscrowWallet) *fakeEscrowStore {
	m := map[uuid.UUID]*models.EscrowWallet{}
	for _, w := range wallets {
		m[w.DealID] = w
	}
	return &fakeEscrowStore{wallets: m, txs: map[string]*models.EscrowTransaction{}}
}

func (f *fakeEscrowStore) CreateWallet(_ context.Context, w *models.EscrowWallet) error {
	if _, exists := f.wallets[w.DealID]; exists {
		return errors.New("duplicate wallet for deal")
	}
	w.ID = uuid.New()
	f.wallets[w.DealID] = w
	return nil
}

func (f *fakeEscrowStore) GetWalletByDealID(_ context.Context, dealID uuid.UUID) (*models.EscrowWallet, error) {
	w, ok := f.wallets[dealID]
	if !ok {
		return nil, errors.New("wallet not found")
	}
	return w, nil
}

func (f *fakeEscrowStore) UpdateBalance(_ context.Context, dealID uuid.UUID, balance decimal.Decimal, checkedAt time.Time) error {
	if w, ok := f.wallets[dealID]; ok {
		w.Balance = balance
		w.LastCheckedAt = &checkedAt
	}
	return nil
}

func (f *fakeEscrowStore) InsertTransaction(_ context.Context, tx *models.EscrowTransaction) (bool, error) {
	if _, exists := f.txs[tx.TxHash]; exists {
		return false, nil
	}
	f.txs[tx.TxHash] = tx
	return true, nil
}

func (f *fakeEscrowStore) ListTransactionsByDeal(_ context.Context, dealID uuid.UUID) ([]models.EscrowTransaction, error) {
	var out []models.EscrowTransaction
	for _, tx := range f.txs {
		if tx.DealID == dealID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

type fakeEscrowDeals struct {
	store *fakeDealStore
}

func (f *fakeEscrowDeals) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return f.store.GetByID(ctx, id)
}

func (f *fakeEscrowDeals) SetAdvertiserWallet(_ context.Context, id uuid.UUID, wallet string) error {
	if d, ok := f.store.deals[id]; ok {
		d.AdvertiserWallet = &wallet
	}
	return nil
}

type fakeChain struct {
	balance   decimal.Decimal
	incoming  []ton.Transfer
	sent      []string
	sendErr   error
	createErr error
}

func (f *fakeChain) CreateWallet(_ context.Context) (*ton.WalletInfo, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &ton.WalletInfo{Address: "EQfresh", EncryptedMnemonic: "enc", Version: "v4r2"}, nil
}

func (f *fakeChain) GetBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeChain) ListIncoming(_ context.Context, _ string, _ int) ([]ton.Transfer, error) {
	return f.incoming, nil
}

func (f *fakeChain) Send(_ context.Context, _, to string, amount decimal.Decimal, _ string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, to+":"+amount.String())
	return "txhash" + to, nil
}

type fsmRecorder struct {
	store *fakeDealStore
	calls []string
}

func (f *fsmRecorder) TransitionFrom(_ context.Context, dealID uuid.UUID, fromStates []string, newStatus string, _ *uuid.UUID) (*models.Deal, error) {
	f.calls = append(f.calls, newStatus)
	d, ok := f.store.deals[dealID]
	if !ok {
		return nil, errors.New("deal not found")
	}
	for _, from := range fromStates {
		if d.Status == from {
			d.Status = newStatus
			return d, nil
		}
	}
	return nil, &InvalidTransitionError{From: d.Status, To: newStatus, Allowed: fromStates}
}

func newTestEscrowService(deal *models.Deal, wallet *models.EscrowWallet, chain *fakeChain) (*EscrowService, *fakeEscrowStore, *fakeDealStore) {
	dealStore := newFakeDealStore(deal)
	var escrowStore *fakeEscrowStore
	if wallet != nil {
		escrowStore = newFakeEscrowStore(wallet)
	} else {
		escrowStore = newFakeEscrowStore()
	}
	svc := NewEscrowService(escrowStore, &fakeEscrowDeals{store: dealStore}, nil, nil, chain,
		&fsmRecorder{store: dealStore}, nil, zap.NewNop())
	return svc, escrowStore, dealStore
}

type fakePostSink struct {
	statuses map[uuid.UUID]string
}

func (f *fakePostSink) UpdateStatusByDealID(_ context.Context, dealID uuid.UUID, status string) error {
	if f.statuses == nil {
		f.statuses = map[uuid.UUID]string{}
	}
	f.statuses[dealID] = status
	return nil
}

func TestCreateWalletIdempotent(t *testing.T) {
	deal := &models.Deal{ID: uuid.New(), Status: models.DealStatusAccepted}
	svc, _, _ := newTestEscrowService(deal, nil, &fakeChain{})

	first, err := svc.CreateWallet(context.Background(), deal.ID)
	if err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	second, err := svc.CreateWallet(context.Background(), deal.ID)
	if err != nil {
		t.Fatalf("second CreateWallet: %v", err)
	}
	if first.Address != second.Address {
		t.Errorf("second call returned a different wallet: %s vs %s", first.Address, second.Address)
	}
}

func TestCreateWalletTerminalDeal(t *testing.T) {
	deal := &models.Deal{ID: uuid.New(), Status: models.DealStatusCancelled}
	svc, _, _ := newTestEscrowService(deal, nil, &fakeChain{})

	if _, err := svc.CreateWallet(context.Background(), deal.ID); !errors.Is(err, ErrTerminalDeal) {
		t.Fatalf("err = %v, want ErrTerminalDeal", err)
	}
}

func TestVerifyDepositBelowThreshold(t *testing.T) {
	deal := &models.Deal{ID: uuid.New(), Status: models.DealStatusAccepted, EscrowAmount: decimal.RequireFromString("10")}
	wallet := &models.EscrowWallet{ID: uuid.New(), DealID: deal.ID, Address: "EQesc"}
	svc, _, dealStore := newTestEscrowService(deal, wallet, &fakeChain{balance: decimal.RequireFromString("9.5")})

	status, err := svc.VerifyDeposit(context.Background(), deal.ID)
	if !errors.Is(err, ErrDepositPending) {
		t.Fatalf("err = %v, want ErrDepositPending", err)
	}
	if status.IsFunded {
		t.Error("IsFunded = true below threshold")
	}
	if dealStore.deals[deal.ID].Status != models.DealStatusAccepted {
		t.Errorf("deal status changed to %s", dealStore.deals[deal.ID].Status)
	}
}

func TestVerifyDepositWithinTolerance(t *testing.T) {
	// 9.9 of expected 10 is exactly the 1% tolerance boundary.
	deal := &models.Deal{ID: uuid.New(), Status: models.DealStatusAccepted, EscrowAmount: decimal.RequireFromString("10")}
	wallet := &models.EscrowWallet{ID: uuid.New(), DealID: deal.ID, Address: "EQesc"}
	chain := &fakeChain{
		balance: decimal.RequireFromString("9.9"),
		incoming: []ton.Transfer{
			{Hash: "dep1", Amount: decimal.RequireFromString("9.9"), From: "EQsender", To: "EQesc"},
		},
	}
	svc, escrowStore, dealStore := newTestEscrowService(deal, wallet, chain)

	status, err := svc.VerifyDeposit(context.Background(), deal.ID)
	if err != nil {
		t.Fatalf("VerifyDeposit: %v", err)
	}
	if !status.IsFunded {
		t.Error("IsFunded = false at tolerance boundary")
	}
	if dealStore.deals[deal.ID].Status != models.DealStatusFunded {
		t.Errorf("deal status = %s, want funded", dealStore.deals[deal.ID].Status)
	}
	if dealStore.deals[deal.ID].AdvertiserWallet == nil || *dealStore.deals[deal.ID].AdvertiserWallet != "EQsender" {
		t.Error("sender address was not recorded for refunds")
	}
	if _, ok := escrowStore.txs["dep1"]; !ok {
		t.Error("deposit transaction not recorded")
	}

	// A repeat call records nothing new and keeps the deal funded.
	if _, err := svc.VerifyDeposit(context.Background(), deal.ID); err != nil {
		t.Fatalf("repeat VerifyDeposit: %v", err)
	}
	if len(escrowStore.txs) != 1 {
		t.Errorf("transactions = %d after repeat, want 1", len(escrowStore.txs))
	}
}

func TestReleaseToChannelOwner(t *testing.T) {
	ownerWallet := "EQowner"
	deal := &models.Deal{
		ID:                 uuid.New(),
		Status:             models.DealStatusVerified,
		EscrowAmount:       decimal.RequireFromString("10"),
		ChannelOwnerWallet: &ownerWallet,
	}
	wallet := &models.EscrowWallet{ID: uuid.New(), DealID: deal.ID, Address: "EQesc", EncryptedMnemonic: "enc"}
	chain := &fakeChain{balance: decimal.RequireFromString("10")}
	svc, escrowStore, dealStore := newTestEscrowService(deal, wallet, chain)

	txHash, err := svc.Release(context.Background(), deal.ID, "")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if txHash == "" {
		t.Error("empty tx hash")
	}
	if dealStore.deals[deal.ID].Status != models.DealStatusCompleted {
		t.Errorf("deal status = %s, want completed", dealStore.deals[deal.ID].Status)
	}
	// 10 minus the 0.05 fee reserve.
	if len(chain.sent) != 1 || chain.sent[0] != "EQowner:9.95" {
		t.Errorf("sent = %v, want [EQowner:9.95]", chain.sent)
	}
	if len(escrowStore.txs) != 1 {
		t.Errorf("transactions = %d, want 1 release record", len(escrowStore.txs))
	}
}

func TestReleaseFallsBackToChannelWallet(t *testing.T) {
	// The deal was created before the owner set the channel's payout wallet,
	// so its own copy is empty and the channel row is the source of truth.
	channelWallet := "EQchannel"
	deal := &models.Deal{
		ID:           uuid.New(),
		ChannelID:    uuid.New(),
		Status:       models.DealStatusPosted,
		EscrowAmount: decimal.RequireFromString("10"),
	}
	channels := &fakeChannelStore{channels: map[uuid.UUID]*models.Channel{
		deal.ChannelID: {ID: deal.ChannelID, OwnerTONWallet: &channelWallet},
	}}
	wallet := &models.EscrowWallet{ID: uuid.New(), DealID: deal.ID, Address: "EQesc", EncryptedMnemonic: "enc"}
	chain := &fakeChain{balance: decimal.RequireFromString("10")}
	dealStore := newFakeDealStore(deal)
	svc := NewEscrowService(newFakeEscrowStore(wallet), &fakeEscrowDeals{store: dealStore}, channels, nil,
		chain, &fsmRecorder{store: dealStore}, nil, zap.NewNop())

	if _, err := svc.Release(context.Background(), deal.ID, ""); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if len(chain.sent) != 1 || chain.sent[0] != "EQchannel:9.95" {
		t.Errorf("sent = %v, want [EQchannel:9.95]", chain.sent)
	}
	if dealStore.deals[deal.ID].Status != models.DealStatusCompleted {
		t.Errorf("deal status = %s, want completed", dealStore.deals[deal.ID].Status)
	}
}

func TestSettleAdvancesPostRow(t *testing.T) {
	ownerWallet := "EQowner"
	deal := &models.Deal{
		ID:                 uuid.New(),
		Status:             models.DealStatusPosted,
		EscrowAmount:       decimal.RequireFromString("10"),
		ChannelOwnerWallet: &ownerWallet,
	}
	wallet := &models.EscrowWallet{ID: uuid.New(), DealID: deal.ID, Address: "EQesc", EncryptedMnemonic: "enc"}
	chain := &fakeChain{balance: decimal.RequireFromString("10")}
	dealStore := newFakeDealStore(deal)
	posts := &fakePostSink{}
	svc := NewEscrowService(newFakeEscrowStore(wallet), &fakeEscrowDeals{store: dealStore}, nil, posts,
		chain, &fsmRecorder{store: dealStore}, nil, zap.NewNop())

	if _, err := svc.Release(context.Background(), deal.ID, ""); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if posts.statuses[deal.ID] != models.PostStatusReleased {
		t.Errorf("post status = %q, want released", posts.statuses[deal.ID])
	}
}

func TestSettleTerminalDeal(t *testing.T) {
	ownerWallet := "EQowner"
	deal := &models.Deal{
		ID:                 uuid.New(),
		Status:             models.DealStatusCompleted,
		ChannelOwnerWallet: &ownerWallet,
	}
	wallet := &models.EscrowWallet{ID: uuid.New(), DealID: deal.ID, Address: "EQesc"}
	chain := &fakeChain{balance: decimal.RequireFromString("10")}
	svc, _, _ := newTestEscrowService(deal, wallet, chain)

	if _, err := svc.Release(context.Background(), deal.ID, ""); !errors.Is(err, ErrTerminalDeal) {
		t.Fatalf("err = %v, want ErrTerminalDeal", err)
	}
	if len(chain.sent) != 0 {
		t.Errorf("sent = %v, want no transfer out of a settled deal", chain.sent)
	}
}

func TestRefundNoDestination(t *testing.T) {
	deal := &models.Deal{ID: uuid.New(), Status: models.DealStatusFunded, EscrowAmount: decimal.RequireFromString("10")}
	wallet := &models.EscrowWallet{ID: uuid.New(), DealID: deal.ID, Address: "EQesc"}
	svc, _, dealStore := newTestEscrowService(deal, wallet, &fakeChain{balance: decimal.RequireFromString("10")})

	if _, err := svc.Refund(context.Background(), deal.ID, ""); !errors.Is(err, ErrNoDestination) {
		t.Fatalf("err = %v, want ErrNoDestination", err)
	}
	if dealStore.deals[deal.ID].Status != models.DealStatusFunded {
		t.Errorf("deal status changed to %s without a destination", dealStore.deals[deal.ID].Status)
	}
}

func TestRefundHintOverridesStoredWallet(t *testing.T) {
	stored := "EQstored"
	deal := &models.Deal{
		ID:               uuid.New(),
		Status:           models.DealStatusPosted,
		EscrowAmount:     decimal.RequireFromString("5"),
		AdvertiserWallet: &stored,
	}
	wallet := &models.EscrowWallet{ID: uuid.New(), DealID: deal.ID, Address: "EQesc"}
	chain := &fakeChain{balance: decimal.RequireFromString("5")}
	svc, _, dealStore := newTestEscrowService(deal, wallet, chain)

	if _, err := svc.Refund(context.Background(), deal.ID, "EQhint"); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if len(chain.sent) != 1 || chain.sent[0] != "EQhint:4.95" {
		t.Errorf("sent = %v, want [EQhint:4.95]", chain.sent)
	}
	if dealStore.deals[deal.ID].Status != models.DealStatusRefunded {
		t.Errorf("deal status = %s, want refunded", dealStore.deals[deal.ID].Status)
	}
}

func TestSettleInsufficientForFee(t *testing.T) {
	ownerWallet := "EQowner"
	deal := &models.Deal{
		ID:                 uuid.New(),
		Status:             models.DealStatusVerified,
		ChannelOwnerWallet: &ownerWallet,
	}
	wallet := &models.EscrowWallet{ID: uuid.New(), DealID: deal.ID, Address: "EQesc"}
	svc, _, dealStore := newTestEscrowService(deal, wallet, &fakeChain{balance: decimal.RequireFromString("0.03")})

	if _, err := svc.Release(context.Background(), deal.ID, ""); !errors.Is(err, ErrInsufficientForFee) {
		t.Fatalf("err = %v, want ErrInsufficientForFee", err)
	}
	if dealStore.deals[deal.ID].Status != models.DealStatusVerified {
		t.Errorf("deal status changed to %s despite dust balance", dealStore.deals[deal.ID].Status)
	}
}
