package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/medkeeper/internal/client/client"
	"github.com/dmitrijs2005/medkeeper/internal/common"
)

// execIface is the command surface the REPL dispatches to. App satisfies it;
// tests use a stub.
type execIface interface {
	touch()
	Help() string
	Setup(ctx context.Context) error
	Login(ctx context.Context) error
	Lock(ctx context.Context) error
	Status(ctx context.Context) error
	Reload(ctx context.Context) error
	Add(ctx context.Context) error
	Show(ctx context.Context, id string) error
	List(ctx context.Context) error
	Export(ctx context.Context, target, name string) error
	Import(ctx context.Context, target, name string) error
	Backups(ctx context.Context, target string) error
}

// runREPL reads one command per line from reader and dispatches it to a.
// Every line counts as activity for the inactivity lock. The loop ends on
// EOF, "exit"/"quit" or when ctx is cancelled.
//
// Command errors are printed with userMessage and never end the loop.
func runREPL(ctx context.Context, a execIface, promptFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprint(w, promptFn())

		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			fmt.Fprintln(w)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		a.touch()

		cmd, args := parts[0], parts[1:]
		var cmdErr error

		switch cmd {
		case "help":
			fmt.Fprintln(w, a.Help())
		case "setup":
			cmdErr = a.Setup(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "lock":
			cmdErr = a.Lock(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "reload":
			cmdErr = a.Reload(ctx)
		case "add":
			cmdErr = a.Add(ctx)
		case "show":
			if len(args) != 1 {
				fmt.Fprintln(w, "Usage: show <id>")
				continue
			}
			cmdErr = a.Show(ctx, args[0])
		case "l", "list":
			cmdErr = a.List(ctx)
		case "export":
			target, name, ok := targetAndName(args)
			if !ok {
				fmt.Fprintln(w, "Usage: export [s3] [name.mkbak]")
				continue
			}
			cmdErr = a.Export(ctx, target, name)
		case "import":
			target, name, ok := targetAndName(args)
			if !ok || name == "" {
				fmt.Fprintln(w, "Usage: import [s3] <name.mkbak>")
				continue
			}
			cmdErr = a.Import(ctx, target, name)
		case "backups":
			target, _, ok := targetAndName(args)
			if !ok {
				fmt.Fprintln(w, "Usage: backups [s3]")
				continue
			}
			cmdErr = a.Backups(ctx, target)
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(w, "Error:", userMessage(cmdErr))
		}
	}
}

const (
	targetLocal = "local"
	targetS3    = "s3"
)

// targetAndName parses "[s3] [name]".
func targetAndName(args []string) (string, string, bool) {
	target := targetLocal
	if len(args) > 0 && args[0] == targetS3 {
		target = targetS3
		args = args[1:]
	}
	switch len(args) {
	case 0:
		return target, "", true
	case 1:
		return target, args[0], true
	}
	return "", "", false
}

var errInvalidPIN = errors.New("invalid PIN")

// userMessage turns an error into the text shown to the operator. Wrong PIN
// and a key blob that does not unwrap read the same.
func userMessage(err error) string {
	switch {
	case errors.Is(err, errInvalidPIN), errors.Is(err, common.ErrInvalidCredentials):
		return "invalid PIN"
	case errors.Is(err, common.ErrAlreadySetup):
		return "the account is already set up; use 'login'"
	case errors.Is(err, common.ErrMissingFields):
		return "all fields are required"
	case errors.Is(err, common.ErrLocked), errors.Is(err, common.ErrNotUnlocked):
		return "the vault is locked; use 'login'"
	case errors.Is(err, common.ErrImportCorrupted):
		return "the backup is corrupted; nothing was changed"
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return "the server rejected the session; log in again"
	case errors.Is(err, common.ErrNotFound):
		return "not found"
	case errors.Is(err, client.ErrUnavailable):
		return "server unavailable"
	}
	return err.Error()
}
