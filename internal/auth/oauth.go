package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/justanagent/auth-service/internal/model"
)

// Profile is the provider-neutral shape of a federated identity, produced by
// a Provider's Exchange and consumed by the identity resolver. Email may be
// empty (GitHub users can hide theirs); Subject is the provider-scoped stable
// user ID and is always set.
type Profile struct {
	Provider  model.Provider
	Subject   string
	Email     string
	Name      string
	Username  string
	AvatarURL string
}

// Provider runs the OAuth2 Authorization Code flow for one identity provider
// and normalizes the provider's user API response into a Profile.
//
// Providers are plain injected values keyed by name; there is no package
// level registry. The server constructs the ones it has credentials for and
// hands them to the handler.
type Provider interface {
	Name() model.Provider
	// AuthURL returns the provider authorization URL carrying the CSRF state.
	AuthURL(state string) string
	// Exchange trades the callback code for a normalized profile.
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// --- Google ---

// googleUser is the portion of Google's userinfo response we care about.
type googleUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleProvider implements Provider for Google OAuth2.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string // overridable in tests
}

// NewGoogleProvider creates a GoogleProvider with the given OAuth app
// credentials. callbackURL must exactly match the redirect URI registered in
// the Google Cloud console.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
}

func (p *GoogleProvider) Name() model.Provider {
	return model.ProviderGoogle
}

func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for an access token, calls the
// userinfo endpoint, and normalizes the response. Google always supplies the
// account email for the scopes we request.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging Google OAuth code: %w", err)
	}

	var gu googleUser
	if err := fetchJSON(ctx, p.config.Client(ctx, token), p.userInfoURL, &gu); err != nil {
		return nil, fmt.Errorf("auth: fetching Google userinfo: %w", err)
	}
	if gu.ID == "" {
		return nil, fmt.Errorf("auth: Google returned an empty user ID")
	}

	return &Profile{
		Provider:  model.ProviderGoogle,
		Subject:   gu.ID,
		Email:     gu.Email,
		Name:      gu.Name,
		AvatarURL: gu.Picture,
	}, nil
}

// --- GitHub ---

// githubUser is the portion of GitHub's /user response we care about.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"` // empty when the user hides their email
	AvatarURL string `json:"avatar_url"`
}

// githubEmail is one entry of GitHub's /user/emails response.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider implements Provider for GitHub OAuth2.
type GitHubProvider struct {
	config     *oauth2.Config
	apiBaseURL string // overridable in tests
}

// NewGitHubProvider creates a GitHubProvider with the given OAuth app
// credentials. Scopes: read:user for the public profile, user:email so the
// /user/emails fallback works when the profile email is hidden.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBaseURL: "https://api.github.com",
	}
}

func (p *GitHubProvider) Name() model.Provider {
	return model.ProviderGitHub
}

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for an access token and normalizes
// the /user response. When the public profile hides the email, it falls back
// to /user/emails and picks the primary verified address; if none is visible
// the Profile's Email stays empty and the resolver synthesizes a placeholder.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging GitHub OAuth code: %w", err)
	}
	client := p.config.Client(ctx, token)

	var gh githubUser
	if err := fetchJSON(ctx, client, p.apiBaseURL+"/user", &gh); err != nil {
		return nil, fmt.Errorf("auth: fetching GitHub user: %w", err)
	}
	if gh.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	email := gh.Email
	if email == "" {
		email = p.primaryEmail(ctx, client)
	}

	name := gh.Name
	if name == "" {
		name = gh.Login
	}

	return &Profile{
		Provider:  model.ProviderGitHub,
		Subject:   fmt.Sprintf("%d", gh.ID),
		Email:     email,
		Name:      name,
		Username:  gh.Login,
		AvatarURL: gh.AvatarURL,
	}, nil
}

// primaryEmail returns the user's primary verified email, or "" if the
// lookup fails or nothing qualifies. A failure here is not fatal: the
// resolver handles email-less GitHub accounts.
func (p *GitHubProvider) primaryEmail(ctx context.Context, client *http.Client) string {
	var emails []githubEmail
	if err := fetchJSON(ctx, client, p.apiBaseURL+"/user/emails", &emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

// fetchJSON GETs url with the authenticated client and decodes the JSON body
// into out.
func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
