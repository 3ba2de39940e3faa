package frappe

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// flag decodes Frappe check fields, which arrive as 0/1 or as booleans.
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	switch string(data) {
	case "null", "":
		*f = false
		return nil
	case "true":
		*f = true
		return nil
	case "false":
		*f = false
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = n != 0
	return nil
}

// datetimeLayout is how Frappe serializes Datetime fields.
const datetimeLayout = "2006-01-02 15:04:05.999999"

// datetime decodes a Frappe Datetime field; empty values are the zero time.
type datetime time.Time

func (d *datetime) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = datetime{}
		return nil
	}
	t, err := time.Parse(datetimeLayout, *s)
	if err != nil {
		return err
	}
	*d = datetime(t)
	return nil
}

type channelRecord struct {
	Name            string   `json:"name"`
	ChannelName     string   `json:"channel_name"`
	Type            string   `json:"type"`
	IsArchived      flag     `json:"is_archived"`
	IsDirectMessage flag     `json:"is_direct_message"`
	IsSelfMessage   flag     `json:"is_self_message"`
	PeerUserID      *string  `json:"peer_user_id"`
	LastMessageAt   datetime `json:"last_message_timestamp"`
}

type channelList struct {
	Channels   []channelRecord `json:"channels"`
	DMChannels []channelRecord `json:"dm_channels"`
}

type unreadRecord struct {
	Name            string `json:"name"`
	IsDirectMessage flag   `json:"is_direct_message"`
	UnreadCount     int    `json:"unread_count"`
}

// UnreadSummary is the response of the bulk unread count call.
type UnreadSummary struct {
	TotalChannels int            `json:"total_unread_count_in_channels"`
	TotalDMs      int            `json:"total_unread_count_in_dms"`
	Channels      []unreadRecord `json:"channels"`
}

type userRecord struct {
	Name      string `json:"name"`
	User      string `json:"user"`
	FullName  string `json:"full_name"`
	FirstName string `json:"first_name"`
	UserImage string `json:"user_image"`
	Enabled   flag   `json:"enabled"`
	Type      string `json:"type"`
}
