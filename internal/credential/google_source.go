package credential

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
)

// FirebaseMessagingScope is the OAuth scope for the FCM HTTP v1 API.
const FirebaseMessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

// GoogleSource issues tokens from a service account key file. With an empty
// key path it falls back to Application Default Credentials.
type GoogleSource struct {
	keyPath string
	scopes  []string
}

func NewGoogleSource(keyPath string, scopes ...string) *GoogleSource {
	if len(scopes) == 0 {
		scopes = []string{FirebaseMessagingScope}
	}
	return &GoogleSource{keyPath: keyPath, scopes: scopes}
}

func (s *GoogleSource) Fetch(ctx context.Context) (Token, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return Token{}, err
	}
	tok, err := creds.TokenSource.Token()
	if err != nil {
		return Token{}, fmt.Errorf("token exchange failed: %w", err)
	}
	return Token{Value: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

func (s *GoogleSource) credentials(ctx context.Context) (*google.Credentials, error) {
	if s.keyPath == "" {
		creds, err := google.FindDefaultCredentials(ctx, s.scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
		return creds, nil
	}
	data, err := os.ReadFile(s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key material %s: %w", s.keyPath, err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, s.scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key material: %w", err)
	}
	return creds, nil
}
