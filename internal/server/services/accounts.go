// Package services implements the credential store operations on top of the
// account repository: single-admin bootstrap, credential verification and
// account export/restore for backups.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/cryptox"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
	"github.com/dmitrijs2005/medkeeper/internal/server/auth"
	"github.com/dmitrijs2005/medkeeper/internal/server/config"
	"github.com/dmitrijs2005/medkeeper/internal/server/models"
	"github.com/dmitrijs2005/medkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// CreateAccountInput is the bootstrap request. Password is the operator PIN.
type CreateAccountInput struct {
	Username         string
	Password         string
	DisplayName      string
	AmbulatoryName   string
	WrappedMasterKey string
	Salt             string
	KDFIterations    int
}

// AccountExport is everything needed to recreate the account on another
// server. It carries the password hash, never the password.
type AccountExport struct {
	Username         string
	PasswordHash     string
	DisplayName      string
	AmbulatoryName   string
	Role             string
	WrappedMasterKey string
	Salt             string
	KDFIterations    int
	CreatedAt        time.Time
}

// AuthResult is returned by setup and login.
type AuthResult struct {
	Account *models.Account
	Token   string
}

type AccountService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration

	dummyOnce sync.Once
	dummyHash string
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AccountService {
	return &AccountService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

func (s *AccountService) IsSetupComplete(ctx context.Context) (bool, error) {
	n, err := s.repomanager.Accounts(s.db).Count(ctx)
	if err != nil {
		return false, fmt.Errorf("error counting accounts: %w", err)
	}
	return n > 0, nil
}

// CreateAccount creates the one and only account. The count and the insert
// run in one transaction; the schema's singleton column rejects a concurrent
// second insert, which is reported as common.ErrAlreadySetup too.
func (s *AccountService) CreateAccount(ctx context.Context, in CreateAccountInput) (*AuthResult, error) {
	if in.Username == "" {
		in.Username = common.AdminUsername
	}
	if in.Password == "" || in.DisplayName == "" || in.AmbulatoryName == "" ||
		in.WrappedMasterKey == "" || in.Salt == "" {
		return nil, common.ErrMissingFields
	}
	if err := cryptox.ValidateIterations(in.KDFIterations); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMissingFields, err)
	}

	hash, err := cryptox.HashPassword([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	account := &models.Account{
		ID:               uuid.NewString(),
		Username:         in.Username,
		PasswordHash:     hash,
		DisplayName:      in.DisplayName,
		AmbulatoryName:   in.AmbulatoryName,
		Role:             common.AdminRole,
		WrappedMasterKey: in.WrappedMasterKey,
		Salt:             in.Salt,
		KDFIterations:    in.KDFIterations,
		CreatedAt:        time.Now().UTC(),
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		n, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return common.ErrAlreadySetup
		}

		return repo.Create(ctx, account)
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadySetup) {
			return nil, err
		}
		// lost a race against another setup
		if done, cerr := s.IsSetupComplete(ctx); cerr == nil && done {
			return nil, common.ErrAlreadySetup
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}

	return s.issue(account)
}

func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = cryptox.HashPassword(common.GenerateRandByteArray(16))
	})
	return s.dummyHash
}

// VerifyCredentials returns the account with its wrapped key and salt when
// the password matches. Unknown usernames and mismatches both yield
// common.ErrInvalidCredentials, and both pay for one hash verification.
func (s *AccountService) VerifyCredentials(ctx context.Context, username, password string) (*AuthResult, error) {
	account, err := s.repomanager.Accounts(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			_, _ = cryptox.VerifyPassword([]byte(password), s.dummy())
			return nil, common.ErrInvalidCredentials
		}
		return nil, common.ErrInternal
	}

	ok, err := cryptox.VerifyPassword([]byte(password), account.PasswordHash)
	if err != nil {
		return nil, common.ErrInternal
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}

	return s.issue(account)
}

// Authenticate validates a bearer token and checks that its account still
// exists.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, common.ErrInternal
	}
	return account, nil
}

// RefreshToken issues a new token for an account that presented a valid one.
func (s *AccountService) RefreshToken(ctx context.Context, a *models.Account) (string, error) {
	res, err := s.issue(a)
	if err != nil {
		return "", err
	}
	return res.Token, nil
}

func (s *AccountService) ExportAccount(ctx context.Context, accountID string) (*AccountExport, error) {
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &AccountExport{
		Username:         a.Username,
		PasswordHash:     a.PasswordHash,
		DisplayName:      a.DisplayName,
		AmbulatoryName:   a.AmbulatoryName,
		Role:             a.Role,
		WrappedMasterKey: a.WrappedMasterKey,
		Salt:             a.Salt,
		KDFIterations:    a.KDFIterations,
		CreatedAt:        a.CreatedAt,
	}, nil
}

// RestoreAccount replaces the stored account with exp. On a server that is
// already set up the caller must be authorized; a fresh server accepts the
// restore the same way it accepts setup.
func (s *AccountService) RestoreAccount(ctx context.Context, authorized bool, exp AccountExport) (*models.Account, error) {
	if exp.Username == "" || exp.DisplayName == "" || exp.AmbulatoryName == "" ||
		exp.WrappedMasterKey == "" || exp.Salt == "" {
		return nil, common.ErrMissingFields
	}
	if _, err := cryptox.ParsePasswordHash(exp.PasswordHash); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMissingFields, err)
	}
	if err := cryptox.ValidateIterations(exp.KDFIterations); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMissingFields, err)
	}
	if exp.Role == "" {
		exp.Role = common.AdminRole
	}
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = time.Now().UTC()
	}

	account := &models.Account{
		ID:               uuid.NewString(),
		Username:         exp.Username,
		PasswordHash:     exp.PasswordHash,
		DisplayName:      exp.DisplayName,
		AmbulatoryName:   exp.AmbulatoryName,
		Role:             exp.Role,
		WrappedMasterKey: exp.WrappedMasterKey,
		Salt:             exp.Salt,
		KDFIterations:    exp.KDFIterations,
		CreatedAt:        exp.CreatedAt.UTC(),
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		n, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 && !authorized {
			return common.ErrInvalidToken
		}
		if err := repo.DeleteAll(ctx); err != nil {
			return err
		}
		return repo.Create(ctx, account)
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("error restoring account: %w", err)
	}

	return account, nil
}

func (s *AccountService) issue(a *models.Account) (*AuthResult, error) {
	token, err := auth.GenerateToken(a.ID, a.Role, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}
	return &AuthResult{Account: a, Token: token}, nil
}
