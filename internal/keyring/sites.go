package keyring

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/m96-chan/chatly/internal/consts"
)

// Site is a stored login: a Chatly site or a Slack workspace.
type Site struct {
	ID       string `json:"id"`   // site host or Slack team ID
	Kind     string `json:"kind"` // "frappe" or "slack"
	URL      string `json:"url,omitempty"`
	Name     string `json:"name"`
	TokenKey string `json:"token_key"`         // keyring key for the main token
	AppKey   string `json:"app_key,omitempty"` // keyring key for the Slack app token
}

// SiteTokens holds the resolved tokens for a site.
type SiteTokens struct {
	Token    string
	AppToken string
}

const sitesFile = "sites.json"

func sitesPath() string {
	return filepath.Join(consts.CacheDir, sitesFile)
}

// ListSites returns all stored sites.
func ListSites() ([]Site, error) {
	data, err := os.ReadFile(sitesPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sites []Site
	if err := json.Unmarshal(data, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

func saveSites(sites []Site) error {
	data, err := json.MarshalIndent(sites, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(sitesPath()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(sitesPath(), data, 0o600)
}

// FindSite returns the stored site with the given id.
func FindSite(id string) (Site, bool, error) {
	sites, err := ListSites()
	if err != nil {
		return Site{}, false, err
	}
	site, ok := lo.Find(sites, func(s Site) bool { return s.ID == id })
	return site, ok, nil
}

// AddSite stores a site's tokens and adds it to the registry. If a site with
// the same ID already exists, it is updated. appToken may be empty.
func AddSite(site Site, token, appToken string) error {
	sites, err := ListSites()
	if err != nil {
		sites = nil
	}

	site.TokenKey = "token_" + site.ID
	if err := gokeyring.Set(consts.Name, site.TokenKey, token); err != nil {
		return err
	}
	site.AppKey = ""
	if appToken != "" {
		site.AppKey = "app_" + site.ID
		if err := gokeyring.Set(consts.Name, site.AppKey, appToken); err != nil {
			return err
		}
	}

	if _, i, ok := lo.FindIndexOf(sites, func(s Site) bool { return s.ID == site.ID }); ok {
		sites[i] = site
	} else {
		sites = append(sites, site)
	}
	return saveSites(sites)
}

// RemoveSite removes a site from the registry and deletes its tokens.
func RemoveSite(id string) error {
	sites, err := ListSites()
	if err != nil {
		return err
	}

	kept := lo.Reject(sites, func(s Site, _ int) bool {
		if s.ID != id {
			return false
		}
		_ = gokeyring.Delete(consts.Name, s.TokenKey)
		if s.AppKey != "" {
			_ = gokeyring.Delete(consts.Name, s.AppKey)
		}
		return true
	})
	return saveSites(kept)
}

// GetSiteTokens retrieves the tokens for a site from the keyring.
func GetSiteTokens(s Site) (SiteTokens, error) {
	token, err := gokeyring.Get(consts.Name, s.TokenKey)
	if err != nil {
		return SiteTokens{}, err
	}
	var app string
	if s.AppKey != "" {
		app, err = gokeyring.Get(consts.Name, s.AppKey)
		if err != nil {
			return SiteTokens{}, err
		}
	}
	return SiteTokens{Token: token, AppToken: app}, nil
}
