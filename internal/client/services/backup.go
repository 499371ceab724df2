package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/client/client"
	"github.com/dmitrijs2005/medkeeper/internal/client/models"
	"github.com/dmitrijs2005/medkeeper/internal/client/repositories/keyring"
	"github.com/dmitrijs2005/medkeeper/internal/client/repositories/records"
	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/cryptox"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
	"github.com/dmitrijs2005/medkeeper/internal/logging"
	"github.com/dmitrijs2005/medkeeper/internal/shared"
)

const (
	BackupFormat  = "medkeeper-backup"
	BackupVersion = 1
	// BackupExt is the file extension of backup documents.
	BackupExt = ".mkbak"
)

// BackupBlob is the backup document. Records stay encrypted under the master
// key; the master key itself only appears wrapped.
type BackupBlob struct {
	Format               string                `json:"format"`
	Version              int                   `json:"version"`
	CreatedAt            time.Time             `json:"createdAt"`
	WrappedMasterKeyBlob string                `json:"wrappedMasterKeyBlob"`
	Salt                 string                `json:"salt"`
	KDFIterations        int                   `json:"kdfIterations"`
	Account              *shared.AccountExport `json:"account"`
	Records              []BackupRecord        `json:"records"`
}

type BackupRecord struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	IV         []byte    `json:"iv"`
	Ciphertext []byte    `json:"ciphertext"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// BlobSink is where backup documents are written to and read from.
type BlobSink interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

type BackupService struct {
	session *SessionManager
	client  client.Client
	store   *dbx.Store
	logger  logging.Logger
	now     func() time.Time
}

func NewBackupService(session *SessionManager, c client.Client, store *dbx.Store, logger logging.Logger) *BackupService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &BackupService{
		session: session,
		client:  c,
		store:   store,
		logger:  logger.With("module", "backup"),
		now:     time.Now,
	}
}

// Export builds the backup document from the local keyring, all local
// records and the server account. common.ErrNotUnlocked unless the session
// is unlocked; a server token that can no longer be used locks the session
// and reports common.ErrNotUnlocked as well.
func (s *BackupService) Export(ctx context.Context) ([]byte, error) {
	token, err := s.session.ServerToken(ctx)
	if err != nil {
		return nil, err
	}

	blob := &BackupBlob{
		Format:    BackupFormat,
		Version:   BackupVersion,
		CreatedAt: s.now().UTC(),
		Records:   []BackupRecord{},
	}

	err = s.store.Shared(ctx, func(ctx context.Context, db dbx.DBTX) error {
		k, err := keyring.NewSQLiteRepository(db).Load(ctx)
		if err != nil {
			return fmt.Errorf("load keyring: %w", err)
		}
		blob.WrappedMasterKeyBlob = k.WrappedMasterKeyBlob
		blob.Salt = k.Salt
		blob.KDFIterations = k.KDFIterations

		list, err := records.NewSQLiteRepository(db).List(ctx, "")
		if err != nil {
			return err
		}
		for _, r := range list {
			blob.Records = append(blob.Records, BackupRecord{
				ID:         r.ID,
				Kind:       r.Kind,
				IV:         r.IV,
				Ciphertext: r.Ciphertext,
				CreatedAt:  r.CreatedAt.UTC(),
				UpdatedAt:  r.UpdatedAt.UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	acc, err := s.client.ExportAccount(ctx, token)
	if err != nil {
		if tokenRejected(err) {
			return nil, s.session.expireToken(ctx, token, err)
		}
		return nil, fmt.Errorf("export account: %w", err)
	}
	blob.Account = acc

	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}

	s.logger.Info(ctx, "backup exported", "records", len(blob.Records))
	return data, nil
}

// Import replaces the local keyring, the local records and the server account
// with the contents of data. Nothing is changed unless the document is valid
// and every step succeeds. On success the session is locked; the operator
// logs in again with the PIN of the imported account.
//
// The session is locked before the store is released, so no record written
// under the previous master key can land in the imported store.
func (s *BackupService) Import(ctx context.Context, data []byte) error {
	blob, err := ParseBackup(data)
	if err != nil {
		return err
	}

	// empty when locked; a fresh server accepts an anonymous restore
	token, err := s.session.ServerToken(ctx)
	if err != nil && !errors.Is(err, common.ErrNotUnlocked) {
		return err
	}

	err = s.store.Exclusive(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		kr := keyring.NewSQLiteRepository(tx)
		if err := kr.Clear(ctx); err != nil {
			return err
		}
		if err := kr.Save(ctx, &models.Keyring{
			WrappedMasterKeyBlob: blob.WrappedMasterKeyBlob,
			Salt:                 blob.Salt,
			KDFIterations:        blob.KDFIterations,
		}); err != nil {
			return err
		}

		recs := records.NewSQLiteRepository(tx)
		if err := recs.DeleteAll(ctx); err != nil {
			return err
		}
		for _, r := range blob.Records {
			if err := recs.Put(ctx, &models.Record{
				ID:         r.ID,
				Kind:       r.Kind,
				IV:         r.IV,
				Ciphertext: r.Ciphertext,
				CreatedAt:  r.CreatedAt,
				UpdatedAt:  r.UpdatedAt,
			}); err != nil {
				return err
			}
		}

		// last step: the local transaction commits only if the server accepted
		if err := s.client.RestoreAccount(ctx, token, *blob.Account); err != nil {
			return fmt.Errorf("restore account: %w", err)
		}

		s.session.setLocked()
		return nil
	})
	if err != nil {
		s.logger.Warn(ctx, "backup import rolled back", "error", err)
		return err
	}

	s.logger.Info(ctx, "backup imported", "records", len(blob.Records))
	return nil
}

// ExportTo writes a backup to sink under name. An empty name gets a
// timestamped default, which is returned.
func (s *BackupService) ExportTo(ctx context.Context, sink BlobSink, name string) (string, error) {
	data, err := s.Export(ctx)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = DefaultBackupName(s.now())
	}
	if err := sink.Put(ctx, name, data); err != nil {
		return "", fmt.Errorf("write backup %s: %w", name, err)
	}
	return name, nil
}

func (s *BackupService) ImportFrom(ctx context.Context, sink BlobSink, name string) error {
	data, err := sink.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", name, err)
	}
	return s.Import(ctx, data)
}

func DefaultBackupName(t time.Time) string {
	return "medkeeper-" + t.UTC().Format("20060102-150405") + BackupExt
}

// ParseBackup decodes and validates a backup document. Every problem is
// reported as common.ErrImportCorrupted.
func ParseBackup(data []byte) (*BackupBlob, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	blob := &BackupBlob{}
	if err := dec.Decode(blob); err != nil {
		return nil, corrupted("decode: %v", err)
	}
	if dec.More() {
		return nil, corrupted("trailing data")
	}
	if err := blob.validate(); err != nil {
		return nil, err
	}
	return blob, nil
}

func (b *BackupBlob) validate() error {
	if b.Format != BackupFormat {
		return corrupted("unknown format %q", b.Format)
	}
	if b.Version != BackupVersion {
		return corrupted("unsupported version %d", b.Version)
	}

	raw, err := base64.StdEncoding.DecodeString(b.WrappedMasterKeyBlob)
	if err != nil || len(raw) <= cryptox.NonceSize {
		return corrupted("malformed wrapped master key")
	}
	salt, err := base64.StdEncoding.DecodeString(b.Salt)
	if err != nil || len(salt) == 0 {
		return corrupted("malformed salt")
	}
	if err := cryptox.ValidateIterations(b.KDFIterations); err != nil {
		return corrupted("kdf iterations: %v", err)
	}

	a := b.Account
	if a == nil {
		return corrupted("missing account")
	}
	if a.Username == "" || a.DisplayName == "" || a.AmbulatoryName == "" || a.Role == "" {
		return corrupted("incomplete account")
	}
	if _, err := cryptox.ParsePasswordHash(a.PasswordHash); err != nil {
		return corrupted("password hash: %v", err)
	}
	if a.WrappedMasterKeyBlob != b.WrappedMasterKeyBlob || a.Salt != b.Salt || a.KDFIterations != b.KDFIterations {
		return corrupted("account key material does not match keyring")
	}

	seen := make(map[string]struct{}, len(b.Records))
	for i, r := range b.Records {
		if r.ID == "" || r.Kind == "" {
			return corrupted("record %d: missing id or kind", i)
		}
		if _, dup := seen[r.ID]; dup {
			return corrupted("record %d: duplicate id %s", i, r.ID)
		}
		seen[r.ID] = struct{}{}
		if len(r.IV) != cryptox.NonceSize || len(r.Ciphertext) == 0 {
			return corrupted("record %s: malformed payload", r.ID)
		}
		if r.CreatedAt.IsZero() || r.UpdatedAt.IsZero() {
			return corrupted("record %s: missing timestamps", r.ID)
		}
	}
	return nil
}

func corrupted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrImportCorrupted, fmt.Sprintf(format, args...))
}

// IsCorrupted reports whether err came from backup validation.
func IsCorrupted(err error) bool {
	return errors.Is(err, common.ErrImportCorrupted)
}
