package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/client/models"
	"github.com/dmitrijs2005/medkeeper/internal/client/repositories/records"
	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/cryptox"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
	"github.com/google/uuid"
)

// RecordService stores values encrypted under the session master key.
type RecordService struct {
	session *SessionManager
	store   *dbx.Store
	now     func() time.Time
}

func NewRecordService(session *SessionManager, store *dbx.Store) *RecordService {
	return &RecordService{session: session, store: store, now: time.Now}
}

// Add encrypts v and stores it as a new record of the given kind. The value
// is encrypted while the store is held, so a concurrent backup import either
// sees the record or makes Add fail with common.ErrLocked.
func (s *RecordService) Add(ctx context.Context, kind string, v any) (*models.Record, error) {
	var rec *models.Record
	err := s.store.Shared(ctx, func(ctx context.Context, db dbx.DBTX) error {
		p, err := s.session.Encrypt(v)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		rec = &models.Record{
			ID:         uuid.NewString(),
			Kind:       kind,
			IV:         p.IV,
			Ciphertext: p.Ciphertext,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return records.NewSQLiteRepository(db).Put(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get loads the record and decrypts it into out.
func (s *RecordService) Get(ctx context.Context, id string, out any) (*models.Record, error) {
	if s.session.State() != StateUnlocked {
		return nil, common.ErrLocked
	}

	var rec *models.Record
	err := s.store.Shared(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		rec, err = records.NewSQLiteRepository(db).Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.session.Decrypt(&cryptox.Payload{IV: rec.IV, Ciphertext: rec.Ciphertext}, out); err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	return rec, nil
}

// List returns the encrypted rows of a kind; an empty kind lists everything.
func (s *RecordService) List(ctx context.Context, kind string) ([]*models.Record, error) {
	if s.session.State() != StateUnlocked {
		return nil, common.ErrLocked
	}

	var list []*models.Record
	err := s.store.Shared(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		list, err = records.NewSQLiteRepository(db).List(ctx, kind)
		return err
	})
	return list, err
}

func (s *RecordService) Delete(ctx context.Context, id string) error {
	if s.session.State() != StateUnlocked {
		return common.ErrLocked
	}
	return s.store.Shared(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return records.NewSQLiteRepository(db).Delete(ctx, id)
	})
}
