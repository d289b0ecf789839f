package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conorfennell/neurapath/internal/server"
	"github.com/conorfennell/neurapath/internal/session"
)

// accountClient is the account API of a remote server.
type accountClient interface {
	SetPublic(ctx context.Context, cred session.Credentials, public bool) error
	PublicDatabases(ctx context.Context) ([]string, error)
	DeleteAccount(ctx context.Context, cred session.Credentials) error
}

// accountAdmin runs account operations for the configured user, against a
// server or directly against a database backend.
type accountAdmin struct {
	setPublic func(ctx context.Context, public bool) error
	list      func(ctx context.Context) ([]string, error)
	remove    func(ctx context.Context) error
}

func newAccountAdmin(a *app) (*accountAdmin, error) {
	cred, err := a.credentials()
	if err != nil {
		return nil, err
	}
	switch b := a.remote.(type) {
	case accountClient:
		return &accountAdmin{
			setPublic: func(ctx context.Context, public bool) error { return b.SetPublic(ctx, cred, public) },
			list:      b.PublicDatabases,
			remove:    func(ctx context.Context) error { return b.DeleteAccount(ctx, cred) },
		}, nil
	case server.Backend:
		authed := func(ctx context.Context, fn func() error) error {
			if err := b.Authenticate(ctx, cred); err != nil {
				return err
			}
			return fn()
		}
		return &accountAdmin{
			setPublic: func(ctx context.Context, public bool) error {
				return authed(ctx, func() error { return b.SetPublic(ctx, cred.UserID, public) })
			},
			list: b.PublicUsers,
			remove: func(ctx context.Context) error {
				return authed(ctx, func() error { return b.DeleteAccount(ctx, cred.UserID) })
			},
		}, nil
	}
	return nil, fmt.Errorf("backend %q does not keep accounts", a.cfg.Backend.Kind)
}

// withAdmin opens the app without loading a database and runs fn.
func withAdmin(cmd *cobra.Command, fn func(ctx context.Context, a *app, adm *accountAdmin) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Session.User == "" {
		return errNoUser
	}
	adm, err := newAccountAdmin(a)
	if err != nil {
		return err
	}
	return fn(cmd.Context(), a, adm)
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create an account for --user on the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			acc, ok := a.remote.(accounts)
			if !ok {
				return fmt.Errorf("backend %q does not keep accounts", a.cfg.Backend.Kind)
			}
			cred, err := a.credentials()
			if err != nil {
				return err
			}
			if err := acc.Register(cmd.Context(), cred); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", cred.UserID)
			return nil
		},
	}
}

func newUnregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister",
		Short: "Delete the --user account and all of its records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, a *app, adm *accountAdmin) error {
				if err := adm.remove(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted account %s\n", a.cfg.Session.User)
				return nil
			})
		},
	}
}

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Control whether your database can be read by others",
	}

	toggle := func(public bool) *cobra.Command {
		use, verb := "off", "private"
		if public {
			use, verb = "on", "public"
		}
		return &cobra.Command{
			Use:   use,
			Short: "Make your database " + verb,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withAdmin(cmd, func(ctx context.Context, a *app, adm *accountAdmin) error {
					if err := adm.setPublic(ctx, public); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Database of %s is now %s\n", a.cfg.Session.User, verb)
					return nil
				})
			},
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the users whose databases are public",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, a *app, adm *accountAdmin) error {
				users, err := adm.list(ctx)
				if err != nil {
					return err
				}
				if len(users) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No public databases.")
					return nil
				}
				for _, u := range users {
					fmt.Fprintln(cmd.OutOrStdout(), u)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(toggle(true), toggle(false), list)
	return cmd
}
