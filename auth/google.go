package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oa2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleProvider resolves an OAuth authorization code to the Google
// account behind it via the userinfo endpoint.
type GoogleProvider struct {
	config *oauth2.Config
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
	}
}

// AuthCodeURL is where the sign-in flow sends the browser.
func (me *GoogleProvider) AuthCodeURL(state string) string {
	return me.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (me *GoogleProvider) Verify(ctx context.Context, code string) (*Identity, error) {
	token, err := me.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code for google token: %w", err)
	}

	service, err := oa2.NewService(ctx, option.WithTokenSource(me.config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("creating oauth2 service: %w", err)
	}

	userInfo, err := service.Userinfo.Get().Do()
	if err != nil {
		return nil, fmt.Errorf("getting user info: %w", err)
	}

	return &Identity{
		UID:    userInfo.Id,
		Name:   userInfo.Name,
		Email:  userInfo.Email,
		Avatar: userInfo.Picture,
	}, nil
}
