package config

import (
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultKakaoUserInfoURL  = "https://kapi.kakao.com/v2/user/me"
)

// KakaoEndpoint is Kakao's OAuth 2.0 endpoint. x/oauth2 ships Google's but
// not Kakao's, so it is declared here.
var KakaoEndpoint = oauth2.Endpoint{
	AuthURL:  "https://kauth.kakao.com/oauth/authorize",
	TokenURL: "https://kauth.kakao.com/oauth/token",
}

type OAuthConfig struct {
	GoogleLoginConfig *oauth2.Config

	// Userinfo endpoints, overridable in tests.
	GoogleUserInfoURL string
	KakaoUserInfoURL  string
}

func LoadOAuthConfig() OAuthConfig {
	googleConfig := &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}

	return OAuthConfig{
		GoogleLoginConfig: googleConfig,
		GoogleUserInfoURL: GetEnv("GOOGLE_USERINFO_URL", defaultGoogleUserInfoURL),
		KakaoUserInfoURL:  GetEnv("KAKAO_USERINFO_URL", defaultKakaoUserInfoURL),
	}
}
