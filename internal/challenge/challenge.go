// Package challenge decodes the credential requests carried by >PASSWORD:,
// >NEED-OK:, >NEED-STR: and >INFOMSG:CR_TEXT notifications and builds the
// commands answering them.
package challenge

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedRequest indicates a request notification we cannot parse.
	ErrMalformedRequest = errors.New("challenge: malformed request")

	// ErrMalformedChallenge indicates a static or dynamic challenge we cannot parse.
	ErrMalformedChallenge = errors.New("challenge: malformed challenge")
)

// Flags describes how a prompt should be shown and answered.
type Flags uint

const (
	// FlagEcho means the response may be displayed while typed.
	FlagEcho = Flags(1 << iota)

	// FlagResponseRequired means the server expects an interactive response.
	FlagResponseRequired

	// FlagPrivateKey marks a private key passphrase request.
	FlagPrivateKey

	// FlagToken marks a generic token or PIN request.
	FlagToken

	// FlagStaticChallenge marks a SCRV1 static challenge.
	FlagStaticChallenge

	// FlagDynamicChallenge marks a CRV1 dynamic challenge.
	FlagDynamicChallenge
)

// AuthParam is the result of parsing a credential prompt. It lives for a
// single prompt and is never persisted.
type AuthParam struct {
	// Flags contains the prompt flags.
	Flags Flags

	// ID is the credential id the daemon asked for (e.g. "Auth").
	ID string

	// Prompt is the text to show to the user.
	Prompt string

	// ChallengeID is the opaque dynamic challenge state id.
	ChallengeID string

	// Username is the decoded username of a dynamic challenge.
	Username string
}

// Has returns whether all the given flags are set.
func (p *AuthParam) Has(flags Flags) bool {
	return p.Flags&flags == flags
}

// RequestKind classifies a >PASSWORD: notification.
type RequestKind int

const (
	// RequestAuth is "Need 'Auth' username/password", possibly with a static challenge.
	RequestAuth = RequestKind(iota)

	// RequestPrivateKey is "Need 'Private Key' password".
	RequestPrivateKey

	// RequestHTTPProxy is "Need 'HTTP Proxy' username/password".
	RequestHTTPProxy

	// RequestSOCKSProxy is "Need 'SOCKS Proxy' username/password".
	RequestSOCKSProxy

	// RequestGeneric is any other "Need '<id>' password" request.
	RequestGeneric

	// RequestVerificationFailed is "Verification Failed: '<id>'", possibly
	// carrying a dynamic challenge.
	RequestVerificationFailed

	// RequestAuthToken is an "Auth-Token:" push, which needs no answer.
	RequestAuthToken
)

// String implements fmt.Stringer.
func (k RequestKind) String() string {
	switch k {
	case RequestAuth:
		return "auth"
	case RequestPrivateKey:
		return "private-key"
	case RequestHTTPProxy:
		return "http-proxy"
	case RequestSOCKSProxy:
		return "socks-proxy"
	case RequestGeneric:
		return "generic"
	case RequestVerificationFailed:
		return "verification-failed"
	case RequestAuthToken:
		return "auth-token"
	default:
		return "invalid"
	}
}

// Request is a parsed >PASSWORD: notification.
type Request struct {
	// Kind is the request kind.
	Kind RequestKind

	// ID is the quoted credential id.
	ID string

	// PasswordOnly is true when the daemon needs a password but no username.
	PasswordOnly bool

	// Message is the text following "MSG:", if any.
	Message string

	// Static is the static challenge of an Auth request, if any.
	Static *AuthParam

	// Dynamic is the raw dynamic challenge ("R,E:id:user:text") carried by
	// a verification failure, if any.
	Dynamic string
}

const (
	needPrefix       = "Need '"
	failedPrefix     = "Verification Failed: '"
	authTokenPrefix  = "Auth-Token:"
	staticMarker     = "SC:"
	dynamicMarker    = "CRV1:"
	dynamicTerminal  = "']"
	messageMarker    = "MSG:"
	passwordOnlyWord = "password"
)

// ParsePasswordRequest parses the payload of a >PASSWORD: notification.
func ParsePasswordRequest(msg string) (*Request, error) {
	switch {
	case strings.HasPrefix(msg, authTokenPrefix):
		return &Request{Kind: RequestAuthToken}, nil

	case strings.HasPrefix(msg, failedPrefix):
		id, rest, err := quoted(msg[len(failedPrefix)-1:])
		if err != nil {
			return nil, err
		}
		req := &Request{Kind: RequestVerificationFailed, ID: id}
		if idx := strings.Index(rest, dynamicMarker); idx >= 0 {
			cr := rest[idx+len(dynamicMarker):]
			if end := strings.LastIndex(cr, dynamicTerminal); end >= 0 {
				cr = cr[:end]
			}
			req.Dynamic = cr
		}
		return req, nil

	case strings.HasPrefix(msg, needPrefix):
		id, rest, err := quoted(msg[len(needPrefix)-1:])
		if err != nil {
			return nil, err
		}
		req := &Request{ID: id}
		fields := strings.Fields(rest)
		req.PasswordOnly = len(fields) > 0 && fields[0] == passwordOnlyWord
		if idx := strings.Index(rest, messageMarker); idx >= 0 {
			req.Message = rest[idx+len(messageMarker):]
		}
		switch id {
		case "Auth":
			req.Kind = RequestAuth
			if strings.Contains(rest, staticMarker) {
				static, err := ParseStatic(rest)
				if err != nil {
					return nil, err
				}
				req.Static = static
			}
		case "Private Key":
			req.Kind = RequestPrivateKey
		case "HTTP Proxy":
			req.Kind = RequestHTTPProxy
		case "SOCKS Proxy":
			req.Kind = RequestSOCKSProxy
		default:
			req.Kind = RequestGeneric
		}
		return req, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrMalformedRequest, msg)
	}
}

// quoted extracts the text between the leading quote of s and the next
// one, returning it along with what follows.
func quoted(s string) (string, string, error) {
	if !strings.HasPrefix(s, "'") {
		return "", "", fmt.Errorf("%w: missing quote", ErrMalformedRequest)
	}
	end := strings.IndexByte(s[1:], '\'')
	if end < 0 {
		return "", "", fmt.Errorf("%w: unterminated quote", ErrMalformedRequest)
	}
	return s[1 : end+1], s[end+2:], nil
}

// ParseStatic parses the "SC:<echo>,<text>" static challenge embedded in an
// Auth request. The response is masked only when the echo flag is '0'.
func ParseStatic(msg string) (*AuthParam, error) {
	idx := strings.Index(msg, staticMarker)
	if idx < 0 {
		return nil, fmt.Errorf("%w: no static challenge", ErrMalformedChallenge)
	}
	body := msg[idx+len(staticMarker):]
	if body == "" {
		return nil, fmt.Errorf("%w: empty static challenge", ErrMalformedChallenge)
	}
	param := &AuthParam{
		Flags: FlagStaticChallenge | FlagResponseRequired,
		ID:    "Auth",
	}
	if body[0] != '0' {
		param.Flags |= FlagEcho
	}
	if comma := strings.IndexByte(body, ','); comma >= 0 {
		param.Prompt = body[comma+1:]
	}
	return param, nil
}

// ParseDynamic parses a dynamic challenge. The canonical layout is
// "<flags>:<id>:<base64 user>:<text>" with comma separated flags. The all
// comma layout "<flags>,<id>,<base64 user>,<text>" is accepted too.
func ParseDynamic(s string) (*AuthParam, error) {
	s = strings.TrimPrefix(s, "CRV1:")
	sep := ","
	if flags, _, found := strings.Cut(s, ":"); found && onlyFlags(flags) {
		sep = ":"
	}
	tokens := strings.SplitN(s, sep, 4)
	if len(tokens) != 4 || tokens[1] == "" {
		return nil, fmt.Errorf("%w: expected four fields", ErrMalformedChallenge)
	}
	user, err := base64.StdEncoding.DecodeString(tokens[2])
	if err != nil {
		return nil, fmt.Errorf("%w: username: %s", ErrMalformedChallenge, err.Error())
	}
	param := &AuthParam{
		Flags:       FlagDynamicChallenge | parseFlags(tokens[0]),
		ID:          "Auth",
		Prompt:      tokens[3],
		ChallengeID: tokens[1],
		Username:    string(user),
	}
	return param, nil
}

// ParseCRText parses the payload of ">INFOMSG:CR_TEXT:<flags>:<text>".
func ParseCRText(s string) (*AuthParam, error) {
	s = strings.TrimPrefix(s, "CR_TEXT:")
	flags, text, found := strings.Cut(s, ":")
	if !found {
		return nil, fmt.Errorf("%w: expected flags and text", ErrMalformedChallenge)
	}
	return &AuthParam{
		Flags:  parseFlags(flags),
		ID:     "CR_TEXT",
		Prompt: text,
	}, nil
}

// parseFlags reads the E and R flags, in any order and with or without
// commas between them.
func parseFlags(s string) Flags {
	var flags Flags
	if strings.ContainsRune(s, 'E') {
		flags |= FlagEcho
	}
	if strings.ContainsRune(s, 'R') {
		flags |= FlagResponseRequired
	}
	return flags
}

// onlyFlags reports whether s can be the flags field of the colon layout.
func onlyFlags(s string) bool {
	return strings.Trim(s, "ER, ") == ""
}

// NeedRequest is a parsed >NEED-OK: or >NEED-STR: notification.
type NeedRequest struct {
	// Name is the quoted request name.
	Name string

	// Message is the text following "MSG:".
	Message string
}

// ParseNeed parses "Need '<name>' <verb> MSG:<text>".
func ParseNeed(msg string) (*NeedRequest, error) {
	if !strings.HasPrefix(msg, needPrefix) {
		return nil, fmt.Errorf("%w: %s", ErrMalformedRequest, msg)
	}
	name, rest, err := quoted(msg[len(needPrefix)-1:])
	if err != nil {
		return nil, err
	}
	req := &NeedRequest{Name: name}
	if idx := strings.Index(rest, messageMarker); idx >= 0 {
		req.Message = rest[idx+len(messageMarker):]
	}
	return req, nil
}

// Pkcs11Entry is a certificate listed by "pkcs11-id-get".
type Pkcs11Entry struct {
	Index int
	ID    string
	Blob  string
}

// ParsePkcs11Entry parses the payload of ">PKCS11ID-ENTRY:'<n>', ID:'<id>', BLOB:'<blob>'".
func ParsePkcs11Entry(s string) (*Pkcs11Entry, error) {
	index, rest, err := quoted(s)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(index)
	if err != nil {
		return nil, fmt.Errorf("%w: bad index %q", ErrMalformedRequest, index)
	}
	entry := &Pkcs11Entry{Index: n}
	if entry.ID, err = field(rest, "ID:"); err != nil {
		return nil, err
	}
	if entry.Blob, err = field(rest, "BLOB:"); err != nil {
		return nil, err
	}
	return entry, nil
}

func field(s, name string) (string, error) {
	idx := strings.Index(s, name)
	if idx < 0 {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedRequest, name)
	}
	value, _, err := quoted(s[idx+len(name):])
	return value, err
}
