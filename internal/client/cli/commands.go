package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/client/models"
	"github.com/dmitrijs2005/medkeeper/internal/client/repositories/keyring"
	"github.com/dmitrijs2005/medkeeper/internal/client/services"
	"github.com/dmitrijs2005/medkeeper/internal/client/storage"
	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
)

var errNoS3 = errors.New("no S3 bucket configured")

func (a *App) Help() string {
	switch a.session.State() {
	case services.StateRequiresSetup:
		return "Available commands: setup, import [s3] <name>, backups [s3], status, exit"
	case services.StateLocked:
		return "Available commands: login, import [s3] <name>, backups [s3], status, exit"
	case services.StateUnlocked:
		return "Available commands: add, (l)ist, show <id>, export [s3] [name], import [s3] <name>, backups [s3], lock, reload, status, exit"
	}
	return "Available commands: status, exit"
}

func (a *App) printStateHint() {
	switch a.session.State() {
	case services.StateRequiresSetup:
		a.println("No account yet. Run 'setup' or 'import' a backup.")
	case services.StateLocked:
		a.println("Vault is locked. Run 'login'.")
	}
}

// ensureBootstrapped retries Bootstrap when the server was unreachable at
// startup.
func (a *App) ensureBootstrapped(ctx context.Context) error {
	if a.session.State() != services.StateUninitialized {
		return nil
	}
	_, err := a.session.Bootstrap(ctx)
	return err
}

// Setup creates the operator account. The PIN is asked twice.
func (a *App) Setup(ctx context.Context) error {
	if err := a.ensureBootstrapped(ctx); err != nil {
		return err
	}
	if a.session.State() != services.StateRequiresSetup {
		return common.ErrAlreadySetup
	}

	displayName, err := GetSimpleText(a.reader, "Display name", a.out)
	if err != nil {
		return err
	}
	ambulatory, err := GetSimpleText(a.reader, "Ambulatory name", a.out)
	if err != nil {
		return err
	}
	if displayName == "" || ambulatory == "" {
		return common.ErrMissingFields
	}

	pin, err := GetPIN(a.reader, "Choose a PIN", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pin)
	if err := ValidatePIN(pin); err != nil {
		return err
	}

	again, err := GetPIN(a.reader, "Repeat the PIN", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(again)
	if string(pin) != string(again) {
		return errors.New("PINs do not match")
	}

	if err := a.session.SetupAccount(ctx, string(pin), displayName, ambulatory); err != nil {
		return err
	}
	a.println("Account created. Vault unlocked.")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	if err := a.ensureBootstrapped(ctx); err != nil {
		return err
	}
	switch a.session.State() {
	case services.StateUnlocked:
		a.println("Already unlocked.")
		return nil
	case services.StateRequiresSetup:
		a.println("No account yet. Run 'setup' first.")
		return nil
	}

	pin, err := GetPIN(a.reader, "PIN", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pin)

	ok, err := a.session.Login(ctx, string(pin))
	if err != nil {
		return err
	}
	if !ok {
		return errInvalidPIN
	}
	a.println(welcome(a.session.Profile()))
	return nil
}

// welcome greets the operator. The profile is nil when the session was
// locked again before it could be read.
func welcome(p *models.Profile) string {
	if p == nil {
		return "Unlocked."
	}
	return fmt.Sprintf("Welcome, %s.", p.DisplayName)
}

func (a *App) Lock(ctx context.Context) error {
	a.session.Lock()
	a.println("Locked.")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	_ = a.ensureBootstrapped(ctx)

	a.printf("state:   %s\n", a.session.State())
	a.printf("server:  %s\n", a.config.ServerURL)
	if err := a.client.Ping(ctx); err != nil {
		a.printf("         %s\n", userMessage(err))
	}
	if p := a.session.Profile(); p != nil {
		a.printf("user:    %s (%s)\n", p.DisplayName, p.Role)
		a.printf("clinic:  %s\n", p.AmbulatoryName)
	}
	a.printKeyring(ctx)
	a.printf("idle lock after %s\n", a.config.InactivityTimeout)
	return nil
}

func (a *App) printKeyring(ctx context.Context) {
	var k *models.Keyring
	err := a.store.Shared(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		k, err = keyring.NewSQLiteRepository(db).Load(ctx)
		return err
	})
	switch {
	case err == nil:
		a.printf("keyring: cached, %d PBKDF2 iterations\n", k.KDFIterations)
	case errors.Is(err, common.ErrNotFound):
		a.println("keyring: none")
	default:
		a.printf("keyring: %s\n", userMessage(err))
	}
}

// Reload re-runs Bootstrap the way a restarted front end would; with session
// restore enabled an unlocked session survives it.
func (a *App) Reload(ctx context.Context) error {
	st, err := a.session.Bootstrap(ctx)
	if err != nil {
		return err
	}
	a.printf("state: %s\n", st)
	return nil
}

func (a *App) Add(ctx context.Context) error {
	if a.session.State() != services.StateUnlocked {
		return common.ErrLocked
	}

	title, err := GetSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "Text", a.out)
	if err != nil {
		return err
	}
	if title == "" {
		return common.ErrMissingFields
	}

	rec, err := a.records.Add(ctx, models.KindNote, models.Note{Title: title, Body: body})
	if err != nil {
		return err
	}
	a.printf("Saved %s\n", rec.ID)
	return nil
}

func (a *App) Show(ctx context.Context, id string) error {
	var n models.Note
	rec, err := a.records.Get(ctx, id, &n)
	if err != nil {
		return err
	}
	a.printf("%s  (%s, updated %s)\n", n.Title, rec.Kind, rec.UpdatedAt.Local().Format(time.DateTime))
	if n.Body != "" {
		a.println(n.Body)
	}
	return nil
}

func (a *App) List(ctx context.Context) error {
	list, err := a.records.List(ctx, models.KindNote)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.println("No records.")
		return nil
	}

	for _, rec := range list {
		var n models.Note
		title := "<unreadable>"
		if _, err := a.records.Get(ctx, rec.ID, &n); err == nil {
			title = n.Title
		}
		a.printf("%s  %s  %s\n", rec.ID, rec.CreatedAt.Local().Format(time.DateOnly), title)
	}
	return nil
}

func withExt(name string) string {
	if name != "" && !strings.HasSuffix(name, storage.Ext) {
		return name + storage.Ext
	}
	return name
}

func (a *App) sink(target string) (storage.BlobStore, error) {
	if target == targetS3 {
		if a.remote == nil {
			return nil, errNoS3
		}
		return a.remote, nil
	}
	return a.files, nil
}

func (a *App) Export(ctx context.Context, target, name string) error {
	sink, err := a.sink(target)
	if err != nil {
		return err
	}
	saved, err := a.backups.ExportTo(ctx, sink, withExt(name))
	if err != nil {
		return err
	}
	a.printf("Backup written to %s (%s)\n", saved, target)
	return nil
}

// Import replaces all local data with a backup after an explicit
// confirmation, then asks for the PIN of the imported account.
func (a *App) Import(ctx context.Context, target, name string) error {
	if err := a.ensureBootstrapped(ctx); err != nil {
		return err
	}
	sink, err := a.sink(target)
	if err != nil {
		return err
	}

	ok, err := Confirm(a.reader, "Importing replaces ALL local records and the account. Continue?", a.out)
	if err != nil {
		return err
	}
	if !ok {
		a.println("Cancelled.")
		return nil
	}

	if err := a.backups.ImportFrom(ctx, sink, withExt(name)); err != nil {
		return err
	}
	a.println("Backup imported. Vault locked; log in with the PIN of the backup.")
	return nil
}

func (a *App) Backups(ctx context.Context, target string) error {
	sink, err := a.sink(target)
	if err != nil {
		return err
	}
	names, err := sink.List(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		a.println("No backups.")
		return nil
	}
	for _, n := range names {
		a.println(n)
	}
	return nil
}
