// Package pusher talks to a Pusher Channels compatible broker: REST triggers
// and private channel grants, both signed with the app secret.
package pusher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrNotConfigured   = errors.New("pusher credentials not configured")
	ErrInvalidSocketID = errors.New("invalid socket id")
	ErrInvalidChannel  = errors.New("invalid channel name")
)

var (
	socketIDPattern = regexp.MustCompile(`^\d+\.\d+$`)
	channelPattern  = regexp.MustCompile(`^[A-Za-z0-9_\-=@,.;]{1,200}$`)
)

// Credentials identify a Pusher app.
type Credentials struct {
	AppID   string
	Key     string
	Secret  string
	Cluster string
}

// Configured reports whether all four values are present.
func (c Credentials) Configured() bool {
	return c.AppID != "" && c.Key != "" && c.Secret != "" && c.Cluster != ""
}

// ValidChannel reports whether name is an acceptable channel name.
func ValidChannel(name string) bool {
	return channelPattern.MatchString(name)
}

// AuthResponse is the JSON body returned to a client subscribing to a
// private channel.
type AuthResponse struct {
	Auth string `json:"auth"`
}

// AuthorizeChannel signs socketID:channel, producing the grant for one
// subscribe handshake.
func AuthorizeChannel(key, secret, socketID, channel string) (AuthResponse, error) {
	if key == "" || secret == "" {
		return AuthResponse{}, ErrNotConfigured
	}
	if !socketIDPattern.MatchString(socketID) {
		return AuthResponse{}, ErrInvalidSocketID
	}
	if !ValidChannel(channel) {
		return AuthResponse{}, ErrInvalidChannel
	}
	return AuthResponse{Auth: key + ":" + hmacHex(secret, socketID+":"+channel)}, nil
}

// VerifyChannelAuth checks a grant produced by AuthorizeChannel.
func VerifyChannelAuth(key, secret, socketID, channel, auth string) bool {
	gotKey, sig, ok := strings.Cut(auth, ":")
	if !ok || gotKey != key || secret == "" {
		return false
	}
	expected := hmacHex(secret, socketID+":"+channel)
	return hmac.Equal([]byte(sig), []byte(expected))
}

// SignRequest computes auth_signature for a REST call. params must not
// contain auth_signature.
func SignRequest(secret, method, path string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, strings.ToLower(k))
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params.Get(k)))
	}
	toSign := strings.ToUpper(method) + "\n" + path + "\n" + strings.Join(pairs, "&")
	return hmacHex(secret, toSign)
}

func hmacHex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
