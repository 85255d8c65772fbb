// Package tokencache holds the gateway's own upstream OAuth2 access token.
//
// A Cache serves the cached token while it is more than SafetyMargin away
// from expiry. Otherwise it performs a refresh, and concurrent callers share
// that single in-flight refresh. A failed refresh leaves the cache empty and
// returns an *AcquisitionError. Stale tokens are never served.
//
// Transport attaches the token to outbound requests. On a 401 it forces one
// refresh and retries the request exactly once.
//
//	src := tokencache.NewClientCredentialsSource(tokencache.ClientCredentialsConfig{
//	    TokenURL:     "https://auth.example.com/oauth2/token",
//	    ClientID:     id,
//	    ClientSecret: secret,
//	})
//	cache := tokencache.New(src, tokencache.Config{})
//	client := &http.Client{Transport: &tokencache.Transport{Cache: cache}}
package tokencache
