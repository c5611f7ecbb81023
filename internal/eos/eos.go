// Package eos queries Epic Online Services for the public listing of a
// running server.
package eos

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultTokenURL  = "https://api.epicgames.dev/auth/v1/oauth/token"
	DefaultFilterURL = "https://api.epicgames.dev/matchmaking/v1/%s/filter"
	DefaultIPURL     = "https://ifconfig.me/ip"
	DefaultModURL    = "https://api.cfwidget.com"
)

var (
	ErrNoCredentials   = errors.New("EOS credentials not found")
	ErrSessionNotFound = errors.New("server is not available in the server list")
)

// Credentials is the content of the EOS credentials file.
type Credentials struct {
	DedicatedServerClientToken string `toml:"DedicatedServerClientToken"`
	DeploymentID               string `toml:"DeploymentId"`
}

// NewCredentials encodes a client id and secret the way the dedicated
// server stores them.
func NewCredentials(clientID, clientSecret, deploymentID string) Credentials {
	token := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	return Credentials{DedicatedServerClientToken: token, DeploymentID: deploymentID}
}

// ClientIDSecret decodes the token.
func (c Credentials) ClientIDSecret() (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(c.DedicatedServerClientToken)
	if err != nil {
		return "", "", fmt.Errorf("decode client token: %w", err)
	}
	id, secret, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", errors.New("client token is not id:secret")
	}
	return id, secret, nil
}

// LoadCredentials reads path. A missing or incomplete file is
// ErrNoCredentials.
func LoadCredentials(path string) (Credentials, error) {
	var c Credentials
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, ErrNoCredentials
		}
		return c, err
	}
	if err := toml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.DedicatedServerClientToken == "" || c.DeploymentID == "" {
		return c, ErrNoCredentials
	}
	return c, nil
}

// SaveCredentials writes c to path.
func SaveCredentials(path string, c Credentials) error {
	b, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return renameio.WriteFile(path, b, 0o600)
}

// SessionInfo is the public listing of one server.
type SessionInfo struct {
	Name       string
	Map        string
	Day        string
	Players    int
	MaxPlayers int
	Mods       []string
	BattlEye   bool
	PvE        bool
	Version    string
	Address    string
}

// Client talks to EOS. The URLs are fields so they can point at a test
// server.
type Client struct {
	HTTP      *http.Client
	TokenURL  string
	FilterURL string
	IPURL     string
	ModURL    string
	// ModTimeout bounds each mod name lookup.
	ModTimeout time.Duration
}

func NewClient() *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		TokenURL:   DefaultTokenURL,
		FilterURL:  DefaultFilterURL,
		IPURL:      DefaultIPURL,
		ModURL:     DefaultModURL,
		ModTimeout: 2 * time.Second,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

type session struct {
	TotalPlayers int `json:"totalPlayers"`
	Settings     struct {
		MaxPublicPlayers int `json:"maxPublicPlayers"`
	} `json:"settings"`
	Attributes map[string]any `json:"attributes"`
}

type filterResponse struct {
	Sessions  []session `json:"sessions"`
	ErrorCode string    `json:"errorCode"`
}

// Session looks up the listing of the server bound to port on this host's
// public address.
func (c *Client) Session(ctx context.Context, creds Credentials, port int) (*SessionInfo, error) {
	id, secret, err := creds.ClientIDSecret()
	if err != nil {
		return nil, err
	}
	cc := clientcredentials.Config{
		ClientID:       id,
		ClientSecret:   secret,
		TokenURL:       c.TokenURL,
		AuthStyle:      oauth2.AuthStyleInHeader,
		EndpointParams: url.Values{"deployment_id": {creds.DeploymentID}},
	}
	octx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient())
	tok, err := cc.Token(octx)
	if err != nil {
		return nil, fmt.Errorf("get oauth token: %w", err)
	}

	ip, err := c.publicIP(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"criteria": []map[string]string{{"key": "attributes.ADDRESS_s", "op": "EQUAL", "value": ip}},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(c.FilterURL, creds.DeploymentID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("query server list: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var fr filterResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode server list: %w", err)
	}
	if fr.ErrorCode != "" || resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query server list: status %d %s", resp.StatusCode, fr.ErrorCode)
	}
	slog.Debug("Server list from EOS", "sessions", len(fr.Sessions))

	needle := fmt.Sprintf(":%d", port)
	for _, s := range fr.Sessions {
		if strings.Contains(attrString(s.Attributes, "ADDRESSBOUND_s"), needle) {
			return c.toInfo(ctx, s, port), nil
		}
	}
	return nil, ErrSessionNotFound
}

func (c *Client) publicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.IPURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("get public ip: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (c *Client) toInfo(ctx context.Context, s session, port int) *SessionInfo {
	a := s.Attributes
	info := &SessionInfo{
		Name:       attrString(a, "CUSTOMSERVERNAME_s"),
		Map:        attrString(a, "MAPNAME_s"),
		Day:        attrString(a, "DAYTIME_s"),
		Players:    s.TotalPlayers,
		MaxPlayers: s.Settings.MaxPublicPlayers,
		BattlEye:   attrBool(a, "SERVERUSESBATTLEYE_b"),
		PvE:        attrBool(a, "SESSIONISPVE_l"),
		Version:    attrString(a, "BUILDID_s") + "." + attrString(a, "MINORBUILDID_s"),
		Address:    fmt.Sprintf("%s:%d", attrString(a, "ADDRESS_s"), port),
	}
	if _, p, ok := strings.Cut(attrString(a, "ADDRESSBOUND_s"), ":"); ok {
		info.Address = attrString(a, "ADDRESS_s") + ":" + p
	}
	if mods := attrString(a, "ENABLEDMODS_s"); mods != "" {
		for _, id := range strings.Split(mods, ",") {
			info.Mods = append(info.Mods, c.ModName(ctx, strings.TrimSpace(id)))
		}
	}
	return info
}

// ModName resolves a CurseForge project id to "title (id)". Lookup
// failures return the bare id.
func (c *Client) ModName(ctx context.Context, id string) string {
	timeout := c.ModTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.ModURL, "/")+"/"+url.PathEscape(id), nil)
	if err != nil {
		return id
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		slog.Debug("Mod lookup failed", "id", id, "error", err)
		return id
	}
	defer func() { _ = resp.Body.Close() }()
	var out struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Title == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", out.Title, id)
}

func attrString(a map[string]any, key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	}
	return fmt.Sprint(v)
}

func attrBool(a map[string]any, key string) bool {
	switch t := a[key].(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "0" && !strings.EqualFold(t, "false")
	}
	return false
}
