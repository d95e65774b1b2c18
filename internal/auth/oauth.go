package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// ErrNoEmail is returned by a Provider when the external identity has no
// usable primary email. Account linking is keyed on email, so a profile
// without one cannot be linked.
var ErrNoEmail = errors.New("auth: provider reported no primary email")

// Profile is the provider-independent identity the account linking engine
// consumes. ExternalID is the provider's stable user id, stringified —
// (provider name, ExternalID) uniquely identifies one external identity.
type Profile struct {
	ExternalID    string
	Name          string
	Email         string
	Image         string
	EmailVerified bool // true only if the provider asserts the email as verified
}

// Provider abstracts an external OAuth identity provider over the three
// capabilities the login flow needs. Adding a provider means adding one
// implementation of this interface; the linking engine never changes.
type Provider interface {
	// Name is the stable lowercase provider key stored in account rows,
	// e.g. "github".
	Name() string

	// AuthURL builds the provider's consent-screen URL embedding the opaque
	// CSRF state the caller must round-trip and verify on callback.
	AuthURL(state string) string

	// Exchange trades a one-time authorization code for the user's profile.
	// Returns ErrNoEmail if the provider reports no primary email.
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// GitHubProvider implements Provider for GitHub's Authorization Code flow
// on top of golang.org/x/oauth2.
//
// GitHub quirk: the /user endpoint only returns an email if the user made
// one public. The reliable source is /user/emails (requires the user:email
// scope), which lists all addresses with primary/verified flags — Exchange
// falls back to that call whenever /user comes back without an email.
type GitHubProvider struct {
	config *oauth2.Config

	// apiBase lets tests point the provider at an httptest server.
	apiBase string
}

// NewGitHubProvider creates a GitHubProvider with the given OAuth app
// credentials. callbackURL must exactly match the authorization callback URL
// registered with GitHub.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: "https://api.github.com",
	}
}

// Name implements Provider.
func (p *GitHubProvider) Name() string { return "github" }

// AuthURL implements Provider.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// githubUser is the portion of the GitHub /user response we care about.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// githubEmail is one entry of the GitHub /user/emails response.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange implements Provider.
//
// Steps:
//  1. Exchange the authorization code for an access token (server-to-server,
//     using the client secret — the token never touches the browser)
//  2. Fetch /user for the stable id, display name and avatar
//  3. If /user carried no email, fetch /user/emails and select the address
//     marked primary
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// oauth2.Config.Client returns an *http.Client that adds the bearer
	// token to every request.
	client := p.config.Client(ctx, oauthToken)

	var ghUser githubUser
	if err := p.getJSON(ctx, client, "/user", &ghUser); err != nil {
		return nil, err
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	profile := &Profile{
		ExternalID: strconv.FormatInt(ghUser.ID, 10),
		Name:       ghUser.Name,
		Email:      ghUser.Email,
		Image:      ghUser.AvatarURL,
	}
	if profile.Name == "" {
		profile.Name = ghUser.Login
	}

	if profile.Email != "" {
		// /user only ever exposes addresses the user chose to make public,
		// which GitHub requires to be verified.
		profile.EmailVerified = true
		return profile, nil
	}

	// Email hidden on the profile — list all addresses and pick the primary.
	var emails []githubEmail
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return nil, err
	}
	for _, e := range emails {
		if e.Primary && e.Email != "" {
			profile.Email = e.Email
			profile.EmailVerified = e.Verified
			return profile, nil
		}
	}

	return nil, ErrNoEmail
}

// getJSON fetches apiBase+path with the authenticated client and decodes the
// JSON body into out.
func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("auth: building GitHub %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling GitHub %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: GitHub %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth: decoding GitHub %s response: %w", path, err)
	}
	return nil
}
