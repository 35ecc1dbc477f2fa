package permissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tg-adescrow/backend/internal/models"
	"github.com/tg-adescrow/backend/internal/telegram"
	"go.uber.org/zap"
)

type fakeAdminStore struct {
	admins  map[uuid.UUID]*models.ChannelAdmin
	deleted []uuid.UUID
	upserts []string
}

func (f *fakeAdminStore) GetAdmin(_ context.Context, _, userID uuid.UUID) (*models.ChannelAdmin, error) {
	return f.admins[userID], nil
}

func (f *fakeAdminStore) UpsertAdmin(_ context.Context, channelID, userID uuid.UUID, role string, verifiedAt time.Time) (*models.ChannelAdmin, error) {
	f.upserts = append(f.upserts, role)
	admin := &models.ChannelAdmin{ChannelID: channelID, UserID: userID, Role: role, LastVerifiedAt: &verifiedAt}
	if f.admins == nil {
		f.admins = map[uuid.UUID]*models.ChannelAdmin{}
	}
	f.admins[userID] = admin
	return admin, nil
}

func (f *fakeAdminStore) DeleteAdmin(_ context.Context, _, userID uuid.UUID) error {
	f.deleted = append(f.deleted, userID)
	delete(f.admins, userID)
	return nil
}

type fakeVerifier struct {
	standing *telegram.UserOnChannel
	err      error
}

func (f *fakeVerifier) VerifyUserOnChannel(_ context.Context, _ int64, _ string) (*telegram.UserOnChannel, error) {
	return f.standing, f.err
}

func TestCheck(t *testing.T) {
	channelID := uuid.New()

	tests := []struct {
		name    string
		role    string
		action  string
		allowed bool
	}{
		{"owner accepts deal", models.RoleOwner, ActionAcceptDeal, true},
		{"manager accepts deal", models.RoleManager, ActionAcceptDeal, true},
		{"poster cannot accept deal", models.RolePoster, ActionAcceptDeal, false},
		{"poster posts ad", models.RolePoster, ActionPostAd, true},
		{"manager posts ad", models.RoleManager, ActionPostAd, true},
		{"owner releases escrow", models.RoleOwner, ActionReleaseEscrow, true},
		{"poster cannot release escrow", models.RolePoster, ActionReleaseEscrow, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := uuid.New()
			store := &fakeAdminStore{admins: map[uuid.UUID]*models.ChannelAdmin{
				userID: {ChannelID: channelID, UserID: userID, Role: tt.role},
			}}
			svc := NewService(store, &fakeVerifier{}, zap.NewNop())

			decision, err := svc.Check(context.Background(), userID, channelID, tt.action)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if decision.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", decision.Allowed, tt.allowed)
			}
			if decision.Role != tt.role {
				t.Errorf("Role = %q, want %q", decision.Role, tt.role)
			}
		})
	}
}

func TestCheckNotAnAdmin(t *testing.T) {
	svc := NewService(&fakeAdminStore{}, &fakeVerifier{}, zap.NewNop())

	decision, err := svc.Check(context.Background(), uuid.New(), uuid.New(), ActionPostAd)
	if !errors.Is(err, ErrNotAnAdmin) {
		t.Fatalf("err = %v, want ErrNotAnAdmin", err)
	}
	if decision.Allowed {
		t.Error("Allowed = true for non-admin")
	}
}

func TestReVerifyRevoked(t *testing.T) {
	user := &models.User{ID: uuid.New(), TelegramUserID: 777}
	channel := &models.Channel{ID: uuid.New(), Username: "testchannel"}
	store := &fakeAdminStore{admins: map[uuid.UUID]*models.ChannelAdmin{
		user.ID: {ChannelID: channel.ID, UserID: user.ID, Role: models.RoleManager},
	}}
	svc := NewService(store, &fakeVerifier{standing: &telegram.UserOnChannel{IsAdmin: false}}, zap.NewNop())

	_, err := svc.ReVerify(context.Background(), user, channel)
	if !errors.Is(err, ErrNotAnAdmin) {
		t.Fatalf("err = %v, want ErrNotAnAdmin", err)
	}
	if len(store.deleted) != 1 {
		t.Errorf("deleted %d records, want 1", len(store.deleted))
	}
}

func TestReVerifyRoleMapping(t *testing.T) {
	tests := []struct {
		name     string
		standing telegram.UserOnChannel
		wantRole string
	}{
		{"can manage becomes owner", telegram.UserOnChannel{IsAdmin: true, CanPost: true, CanManage: true}, models.RoleOwner},
		{"can post becomes manager", telegram.UserOnChannel{IsAdmin: true, CanPost: true}, models.RoleManager},
		{"plain admin becomes poster", telegram.UserOnChannel{IsAdmin: true}, models.RolePoster},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{ID: uuid.New(), TelegramUserID: 42}
			channel := &models.Channel{ID: uuid.New(), Username: "testchannel"}
			store := &fakeAdminStore{}
			svc := NewService(store, &fakeVerifier{standing: &tt.standing}, zap.NewNop())

			admin, err := svc.ReVerify(context.Background(), user, channel)
			if err != nil {
				t.Fatalf("ReVerify: %v", err)
			}
			if admin.Role != tt.wantRole {
				t.Errorf("Role = %q, want %q", admin.Role, tt.wantRole)
			}
		})
	}
}
