package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/lvcoi/youtube2mediawiki/internal/config"
	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/lvcoi/youtube2mediawiki/internal/log"
	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const keyringService = "youtube2mediawiki"

// Keyring stores wiki passwords.
type Keyring interface {
	Get(service, user string) (string, error)
	Set(service, user, password string) error
	Delete(service, user string) error
}

type systemKeyring struct{}

func (systemKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (systemKeyring) Set(service, user, pw string) error       { return keyring.Set(service, user, pw) }
func (systemKeyring) Delete(service, user string) error        { return keyring.Delete(service, user) }

// keyringAccount scopes a stored password to one user on one wiki.
func keyringAccount(username, wikiURL string) string {
	host := wikiURL
	if u, err := url.Parse(wikiURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return username + "@" + host
}

func (a *app) storedPassword(cfg config.Config) string {
	if cfg.Username == "" {
		return ""
	}
	pw, err := a.keyring.Get(keyringService, keyringAccount(cfg.Username, cfg.WikiURL))
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			log.WithField("error", err).Debug("keyring lookup failed")
		}
		return ""
	}
	return pw
}

func (a *app) credentialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the wiki password stored in the system keyring",
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Store the password for --username on --url",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(a.v)
			if cfg.Username == "" {
				return failure.Wrapf(failure.CategoryInvalidInput, "--username is required")
			}
			pw := cfg.Password
			if pw == "" {
				var err error
				pw, err = promptPassword(a.stdin, a.stderr, fmt.Sprintf("Password for %s: ", cfg.Username))
				if err != nil && !errors.Is(err, errNotTerminal) {
					return err
				}
				if errors.Is(err, errNotTerminal) {
					pw, err = readLine(a.stdin)
					if err != nil {
						return failure.Wrap(failure.CategoryInvalidInput, fmt.Errorf("reading password: %w", err))
					}
				}
			}
			if pw == "" {
				return failure.Wrapf(failure.CategoryInvalidInput, "empty password")
			}
			account := keyringAccount(cfg.Username, cfg.WikiURL)
			if err := a.keyring.Set(keyringService, account, pw); err != nil {
				return fmt.Errorf("storing password: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored password for %s\n", account)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored password for --username on --url",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(a.v)
			if cfg.Username == "" {
				return failure.Wrapf(failure.CategoryInvalidInput, "--username is required")
			}
			account := keyringAccount(cfg.Username, cfg.WikiURL)
			if err := a.keyring.Delete(keyringService, account); err != nil {
				if errors.Is(err, keyring.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "no password stored for %s\n", account)
					return nil
				}
				return fmt.Errorf("deleting password: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted password for %s\n", account)
			return nil
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}

var errNotTerminal = errors.New("stdin is not a terminal")

// promptPassword reads a password without echo. It refuses to prompt when
// in is not an interactive terminal.
func promptPassword(in io.Reader, out io.Writer, prompt string) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", errNotTerminal
	}
	fmt.Fprint(out, prompt)
	pw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
