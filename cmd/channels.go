package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/m96-chan/chatly/internal/app"
	"github.com/m96-chan/chatly/internal/chat"
)

func newChannelsCmd(opts *rootOptions) *cobra.Command {
	var (
		unreadOnly bool
		query      string
	)
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List channels and direct messages with unread counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.cfg.Fetch.Timeout*2)
			defer cancel()

			a, err := app.New(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return listChannels(ctx, cmd.OutOrStdout(), a, query, unreadOnly)
		},
	}
	cmd.Flags().BoolVarP(&unreadOnly, "unread", "u", false, "only show channels with unread messages")
	cmd.Flags().StringVarP(&query, "search", "s", "", "fuzzy filter by channel name")
	return cmd
}

func listChannels(ctx context.Context, w io.Writer, a *app.App, query string, unreadOnly bool) error {
	snap, err := a.WaitLoaded(ctx)
	if err != nil {
		return err
	}

	channels := append(snap.Channels, snap.DirectMessages...)
	if query != "" {
		channels = a.Session.Directory().Search(query)
	}
	renderChannels(w, channels, a.Session, unreadOnly)
	return nil
}

func renderChannels(w io.Writer, channels []chat.Channel, session *chat.Session, unreadOnly bool) {
	unread := session.Unread()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Channel", "Kind", "Unread", "Last activity"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)

	for _, ch := range channels {
		n := unread.Get(ch.ID)
		if unreadOnly && n == 0 {
			continue
		}
		table.Append([]string{displayName(ch, session), ch.Kind.String(), strconv.Itoa(n), lastActivity(ch)})
	}
	table.Render()

	channelTotal, dmTotal := unread.Totals(session.Directory())
	fmt.Fprintf(w, "\nunread: %d in channels, %d in direct messages\n", channelTotal, dmTotal)
}

func displayName(ch chat.Channel, session *chat.Session) string {
	if ch.Kind != chat.KindDirect {
		return "#" + ch.Name
	}
	if u, ok := session.Users().Cached(ch.PeerUserID); ok && u.FullName != "" {
		return "@" + u.FullName
	}
	return "@" + ch.PeerUserID
}

func lastActivity(ch chat.Channel) string {
	if ch.LastMessageAt.IsZero() {
		return "-"
	}
	return humanize.Time(ch.LastMessageAt)
}
