package keyring

import (
	"errors"
	"os"
	"testing"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/m96-chan/chatly/internal/consts"
)

func useTempCache(t *testing.T) {
	t.Helper()
	orig := consts.CacheDir
	consts.CacheDir = t.TempDir()
	t.Cleanup(func() { consts.CacheDir = orig })
}

func TestListSitesEmpty(t *testing.T) {
	useTempCache(t)

	sites, err := ListSites()
	if err != nil {
		t.Fatalf("ListSites: %v", err)
	}
	if len(sites) != 0 {
		t.Errorf("got %d sites, want 0", len(sites))
	}
}

func TestAddSiteAndTokens(t *testing.T) {
	gokeyring.MockInit()
	useTempCache(t)

	err := AddSite(Site{ID: "chat.example.com", Kind: "frappe", URL: "https://chat.example.com", Name: "Example"}, "key:secret", "")
	if err != nil {
		t.Fatalf("AddSite: %v", err)
	}

	site, ok, err := FindSite("chat.example.com")
	if err != nil || !ok {
		t.Fatalf("FindSite: ok=%v err=%v", ok, err)
	}
	if site.TokenKey != "token_chat.example.com" || site.AppKey != "" {
		t.Errorf("unexpected keys %+v", site)
	}

	tokens, err := GetSiteTokens(site)
	if err != nil {
		t.Fatalf("GetSiteTokens: %v", err)
	}
	if tokens.Token != "key:secret" || tokens.AppToken != "" {
		t.Errorf("unexpected tokens %+v", tokens)
	}

	info, err := os.Stat(sitesPath())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("registry mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestAddSiteUpdatesExisting(t *testing.T) {
	gokeyring.MockInit()
	useTempCache(t)

	if err := AddSite(Site{ID: "T1", Kind: "slack", Name: "Old"}, "xoxp-1", "xapp-1"); err != nil {
		t.Fatalf("AddSite: %v", err)
	}
	if err := AddSite(Site{ID: "T1", Kind: "slack", Name: "New"}, "xoxp-2", "xapp-2"); err != nil {
		t.Fatalf("AddSite: %v", err)
	}

	sites, err := ListSites()
	if err != nil {
		t.Fatalf("ListSites: %v", err)
	}
	if len(sites) != 1 || sites[0].Name != "New" {
		t.Fatalf("unexpected sites %+v", sites)
	}
	tokens, err := GetSiteTokens(sites[0])
	if err != nil {
		t.Fatalf("GetSiteTokens: %v", err)
	}
	if tokens.Token != "xoxp-2" || tokens.AppToken != "xapp-2" {
		t.Errorf("unexpected tokens %+v", tokens)
	}
}

func TestRemoveSite(t *testing.T) {
	gokeyring.MockInit()
	useTempCache(t)

	_ = AddSite(Site{ID: "a", Kind: "frappe"}, "ta", "")
	_ = AddSite(Site{ID: "b", Kind: "slack"}, "tb", "xapp-b")

	site, _, _ := FindSite("b")
	if err := RemoveSite("b"); err != nil {
		t.Fatalf("RemoveSite: %v", err)
	}

	sites, _ := ListSites()
	if len(sites) != 1 || sites[0].ID != "a" {
		t.Errorf("unexpected sites %+v", sites)
	}
	if _, err := GetSiteTokens(site); !errors.Is(err, gokeyring.ErrNotFound) {
		t.Errorf("tokens should be deleted, got %v", err)
	}
}
