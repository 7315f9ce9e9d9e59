package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jcarweb/repuestospro-sub005/internal/app"
	"github.com/jcarweb/repuestospro-sub005/internal/audit"
)

const usage = `usage: vaultctl <group> <command> [flags]

  session status|check|logout|verify-2fa
  vault   store|get|verify|revoke|revoke-all|stats|rekey
  events  list|clear
  pin     set|verify|remove
  health  check

The passphrase defaults to $VAULT_PASSPHRASE.
`

var errUsage = errors.New("unknown command; run vaultctl without arguments for usage")

type command func(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, in io.Reader, out io.Writer) error

var commands = map[string]map[string]command{
	"session": {
		"status":     sessionStatus,
		"check":      sessionCheck,
		"logout":     sessionLogout,
		"verify-2fa": sessionVerifyTwoFactor,
	},
	"vault": {
		"store":      vaultStore,
		"get":        vaultGet,
		"verify":     vaultVerify,
		"revoke":     vaultRevoke,
		"revoke-all": vaultRevokeAll,
		"stats":      vaultStats,
		"rekey":      vaultRekey,
	},
	"events": {
		"list":  eventsList,
		"clear": eventsClear,
	},
	"pin": {
		"set":    pinSet,
		"verify": pinVerify,
		"remove": pinRemove,
	},
	"health": {
		"check": healthCheck,
	},
}

func run(ctx context.Context, a *app.App, args []string, in io.Reader, out io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}
	cmd, ok := commands[args[0]][args[1]]
	if !ok {
		return errUsage
	}
	fs := flag.NewFlagSet(args[0]+" "+args[1], flag.ContinueOnError)
	fs.SetOutput(out)
	return cmd(ctx, a, fs, args[2:], in, out)
}

func passphraseFlag(fs *flag.FlagSet, name string) *string {
	return fs.String(name, os.Getenv("VAULT_PASSPHRASE"), "vault passphrase")
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sessionStatus(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	rec, err := a.Sessions.Current(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(out, "no session")
		return nil
	}
	fmt.Fprintf(out, "%s state=%s\n", rec, a.Sessions.State())
	return nil
}

func sessionCheck(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	l, err := a.Sessions.CheckLiveness(ctx)
	fmt.Fprintln(out, l)
	return err
}

func sessionLogout(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	reason := fs.String("reason", audit.ReasonUserLogout, "logout reason")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.Sessions.ClearSession(ctx, *reason); err != nil {
		return err
	}
	fmt.Fprintln(out, "logged out")
	return nil
}

func sessionVerifyTwoFactor(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	temp := fs.String("temp-token", "", "pending login token")
	code := fs.String("code", "", "2FA code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rec, err := a.Sessions.CompleteTwoFactor(ctx, a.Auth, *temp, *code)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, rec)
	return nil
}

func vaultStore(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, in io.Reader, out io.Writer) error {
	name := fs.String("name", "", "entry name")
	value := fs.String("value", "", "plaintext; read from stdin when empty")
	pass := passphraseFlag(fs, "passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	data := []byte(*value)
	if len(data) == 0 {
		b, err := io.ReadAll(in)
		if err != nil {
			return err
		}
		data = b
	}
	if err := a.Vault.Store(ctx, *name, data, *pass); err != nil {
		return err
	}
	fmt.Fprintf(out, "stored %s\n", *name)
	return nil
}

func vaultGet(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	name := fs.String("name", "", "entry name")
	pass := passphraseFlag(fs, "passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	data, ok, err := a.Vault.Retrieve(ctx, *name, *pass)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: not found", *name)
	}
	_, err = out.Write(data)
	return err
}

func vaultVerify(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	name := fs.String("name", "", "entry name")
	pass := passphraseFlag(fs, "passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ok, err := a.Vault.VerifyIntegrity(ctx, *name, *pass)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, ok)
	return nil
}

func vaultRevoke(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	name := fs.String("name", "", "entry name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.Vault.Revoke(ctx, *name); err != nil {
		return err
	}
	fmt.Fprintf(out, "revoked %s\n", *name)
	return nil
}

func vaultRevokeAll(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.Vault.RevokeAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "revoked all entries")
	return nil
}

func vaultStats(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	st, err := a.Vault.Stats(ctx)
	if err != nil {
		return err
	}
	names, err := a.Vault.Names(ctx)
	if err != nil {
		return err
	}
	var last *time.Time
	if !st.LastStoredAt.IsZero() {
		last = &st.LastStoredAt
	}
	return printJSON(out, map[string]any{"count": st.Count, "names": names, "lastStoredAt": last})
}

func vaultRekey(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	oldPass := passphraseFlag(fs, "old")
	newPass := fs.String("new", "", "new passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *newPass == "" {
		return errors.New("-new is required")
	}
	if err := a.Vault.Rekey(ctx, *oldPass, *newPass); err != nil {
		return err
	}
	fmt.Fprintln(out, "rekeyed")
	return nil
}

func eventsList(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	window := fs.Duration("window", 0, "only events newer than this; 0 lists all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var err error
	var events any
	if *window > 0 {
		events, err = a.Events.Recent(ctx, *window)
	} else {
		events, err = a.Events.All(ctx)
	}
	if err != nil {
		return err
	}
	return printJSON(out, events)
}

func eventsClear(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.Events.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "cleared")
	return nil
}

func pinSet(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	pin := fs.String("pin", "", "4 to 6 digit PIN")
	pass := passphraseFlag(fs, "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.PIN.Set(ctx, *pin, *pass); err != nil {
		return err
	}
	fmt.Fprintln(out, "pin set")
	return nil
}

func pinVerify(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	pin := fs.String("pin", "", "PIN to check")
	pass := passphraseFlag(fs, "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ok, err := a.PIN.Verify(ctx, *pin, *pass)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, ok)
	return nil
}

func pinRemove(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.PIN.Remove(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "pin removed")
	return nil
}

func healthCheck(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string, _ io.Reader, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.HealthCheck(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "ok")
	return nil
}
