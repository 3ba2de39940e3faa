package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/m96-chan/chatly/internal/app"
	"github.com/m96-chan/chatly/internal/frappe"
	"github.com/m96-chan/chatly/internal/keyring"
	"github.com/m96-chan/chatly/internal/oauth"
	slackclient "github.com/m96-chan/chatly/internal/slack"
)

type loginOptions struct {
	url       string
	token     string
	userToken string
	appToken  string

	clientID     string
	clientSecret string
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	lopts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify and store credentials for a Chatly site or Slack workspace",
		Long: `Store credentials in the system keyring.

For a Chatly site pass --url and --token (api_key:api_secret).
For Slack pass --user-token (xoxp-) and --app-token (xapp-), or
--client-id and --client-secret with --app-token to authorize in a browser.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if lopts.clientID != "" && lopts.userToken == "" {
				res, err := oauth.Run(ctx, oauth.Params{
					ClientID:     lopts.clientID,
					ClientSecret: lopts.clientSecret,
					Prompt: func(u string) {
						fmt.Fprintf(out, "Open this URL in your browser:\n%s\n", u)
					},
				})
				if err != nil {
					return err
				}
				lopts.userToken = res.UserToken
			}

			switch {
			case lopts.userToken != "" || lopts.appToken != "":
				if lopts.userToken == "" || lopts.appToken == "" {
					return errors.New("both --user-token and --app-token are required")
				}
				client, err := slackclient.New(ctx, lopts.userToken, lopts.appToken)
				if err != nil {
					return fmt.Errorf("verifying slack tokens: %w", err)
				}
				site := keyring.Site{ID: client.TeamID, Kind: "slack", Name: client.TeamName}
				if err := keyring.AddSite(site, lopts.userToken, lopts.appToken); err != nil {
					return err
				}
				fmt.Fprintf(out, "Logged in to %s as %s\n", client.TeamName, client.UserName)

			default:
				url := lopts.url
				if url == "" {
					url = opts.cfg.Backend.URL
				}
				if url == "" || lopts.token == "" {
					return errors.New("--url and --token are required")
				}
				client, err := frappe.New(url, lopts.token)
				if err != nil {
					return err
				}
				me, err := client.CurrentUser(ctx)
				if err != nil {
					return fmt.Errorf("verifying token: %w", err)
				}
				site := keyring.Site{
					ID:   client.Site,
					Kind: "frappe",
					URL:  strings.TrimRight(url, "/"),
					Name: me.FullName,
				}
				if err := keyring.AddSite(site, lopts.token, ""); err != nil {
					return err
				}
				fmt.Fprintf(out, "Logged in to %s as %s\n", site.ID, me.User)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&lopts.url, "url", "", "Chatly site URL (defaults to backend.url)")
	f.StringVar(&lopts.token, "token", "", "Chatly API token as api_key:api_secret")
	f.StringVar(&lopts.userToken, "user-token", "", "Slack user token")
	f.StringVar(&lopts.appToken, "app-token", "", "Slack app-level token for socket mode")
	f.StringVar(&lopts.clientID, "client-id", "", "Slack app client id for browser authorization")
	f.StringVar(&lopts.clientSecret, "client-secret", "", "Slack app client secret for browser authorization")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout [site]",
		Short: "Remove stored credentials",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sites, err := keyring.ListSites()
			if err != nil {
				return err
			}
			if len(sites) == 0 {
				return app.ErrNotLoggedIn
			}

			var ids []string
			switch {
			case len(args) == 1:
				ids = args
			case len(sites) == 1:
				ids = []string{sites[0].ID}
			default:
				names := make([]string, len(sites))
				for i, s := range sites {
					names[i] = s.ID
				}
				return fmt.Errorf("several sites stored, name one of: %s", strings.Join(names, ", "))
			}

			for _, id := range ids {
				if err := keyring.RemoveSite(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s\n", id)
			}

			for _, s := range []keyring.Secret{keyring.FrappeToken, keyring.SlackUserToken, keyring.SlackAppToken} {
				if err := s.Delete(); err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
					return err
				}
			}
			return nil
		},
	}
}

func newOptionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "Show options that --set can override",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), app.ListRuntimeOptions(opts.cfg))
			return err
		},
	}
}
