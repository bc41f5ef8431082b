package merchants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/stripe"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountProvider opens connected accounts and hosted onboarding links.
type AccountProvider interface {
	CreateExpressAccount(ctx context.Context, in stripe.AccountInput) (string, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
}

// OnboardingLink is returned to the admin UI.
type OnboardingLink struct {
	URL       string `json:"url"`
	AccountID string `json:"accountId"`
}

// Service handles merchant payment-account onboarding.
type Service interface {
	StartOnboarding(ctx context.Context, merchantID uuid.UUID) (*OnboardingLink, error)
}

type ServiceParams struct {
	Repo      Repository
	Accounts  AccountProvider
	PublicURL string
	Path      string
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	accounts  AccountProvider
	returnURL string
	logg      *logger.Logger
}

// NewService builds the onboarding service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("merchants repository required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account provider required")
	}
	base := strings.TrimRight(strings.TrimSpace(params.PublicURL), "/")
	if base == "" {
		return nil, fmt.Errorf("public url required")
	}
	path := strings.TrimSpace(params.Path)
	if path == "" {
		path = "/admin"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		accounts:  params.Accounts,
		returnURL: base + path,
		logg:      logg,
	}, nil
}

func (s *service) StartOnboarding(ctx context.Context, merchantID uuid.UUID) (*OnboardingLink, error) {
	ctx = s.logg.WithMerchantID(ctx, merchantID.String())

	merchant, err := s.repo.FindByID(ctx, merchantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load merchant")
	}

	accountID := ""
	if merchant.Onboarded() {
		accountID = *merchant.StripeAccountID
	} else {
		in := stripe.AccountInput{MerchantID: merchant.ID.String()}
		if merchant.NotifyEmail != nil {
			in.Email = *merchant.NotifyEmail
		}
		accountID, err = s.accounts.CreateExpressAccount(ctx, in)
		if err != nil {
			return nil, err
		}
		if err := s.repo.SetPaymentAccount(ctx, merchant.ID, accountID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment account")
		}
		s.logg.Info(s.logg.WithField(ctx, "account_id", accountID), "merchant.payment_account_created")
	}

	url, err := s.accounts.CreateAccountLink(ctx, accountID, s.returnURL, s.returnURL)
	if err != nil {
		return nil, err
	}
	return &OnboardingLink{URL: url, AccountID: accountID}, nil
}
