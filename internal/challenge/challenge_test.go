package challenge

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePasswordRequest(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		want    *Request
		wantErr error
	}{
		{
			name: "plain auth request",
			msg:  "Need 'Auth' username/password",
			want: &Request{Kind: RequestAuth, ID: "Auth"},
		},
		{
			name: "auth request with a masked static challenge",
			msg:  "Need 'Auth' username/password SC:0,Enter your PIN",
			want: &Request{
				Kind: RequestAuth,
				ID:   "Auth",
				Static: &AuthParam{
					Flags:  FlagStaticChallenge | FlagResponseRequired,
					ID:     "Auth",
					Prompt: "Enter your PIN",
				},
			},
		},
		{
			name: "auth request with an echoed static challenge",
			msg:  "Need 'Auth' username/password SC:1,Token",
			want: &Request{
				Kind: RequestAuth,
				ID:   "Auth",
				Static: &AuthParam{
					Flags:  FlagStaticChallenge | FlagResponseRequired | FlagEcho,
					ID:     "Auth",
					Prompt: "Token",
				},
			},
		},
		{
			name: "private key passphrase",
			msg:  "Need 'Private Key' password",
			want: &Request{Kind: RequestPrivateKey, ID: "Private Key", PasswordOnly: true},
		},
		{
			name: "http proxy credentials",
			msg:  "Need 'HTTP Proxy' username/password",
			want: &Request{Kind: RequestHTTPProxy, ID: "HTTP Proxy"},
		},
		{
			name: "socks proxy credentials",
			msg:  "Need 'SOCKS Proxy' username/password",
			want: &Request{Kind: RequestSOCKSProxy, ID: "SOCKS Proxy"},
		},
		{
			name: "generic token request with a message",
			msg:  "Need 'pin' password MSG:Enter the token PIN",
			want: &Request{Kind: RequestGeneric, ID: "pin", PasswordOnly: true, Message: "Enter the token PIN"},
		},
		{
			name: "verification failure without challenge",
			msg:  "Verification Failed: 'Auth'",
			want: &Request{Kind: RequestVerificationFailed, ID: "Auth"},
		},
		{
			name: "verification failure with a dynamic challenge",
			msg:  "Verification Failed: 'Auth' ['CRV1:R,E:Om01u7:dXNlcg==:Enter OTP']",
			want: &Request{Kind: RequestVerificationFailed, ID: "Auth", Dynamic: "R,E:Om01u7:dXNlcg==:Enter OTP"},
		},
		{
			name: "verification failure with an unbracketed dynamic challenge",
			msg:  "Verification Failed: 'Auth' CRV1:R,id123,dXNlcg==,Enter OTP",
			want: &Request{Kind: RequestVerificationFailed, ID: "Auth", Dynamic: "R,id123,dXNlcg==,Enter OTP"},
		},
		{
			name: "auth token push",
			msg:  "Auth-Token:abcdef",
			want: &Request{Kind: RequestAuthToken},
		},
		{
			name:    "unknown request",
			msg:     "Something else",
			wantErr: ErrMalformedRequest,
		},
		{
			name:    "unterminated quote",
			msg:     "Need 'Auth username/password",
			wantErr: ErrMalformedRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePasswordRequest(tt.msg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParsePasswordRequest() error = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestParseDynamic(t *testing.T) {
	tests := []struct {
		name    string
		s       string
		want    *AuthParam
		wantErr error
	}{
		{
			name: "colon layout with echo and response",
			s:    "E,R:Om01u7:Y3I=:Please enter token PIN",
			want: &AuthParam{
				Flags:       FlagDynamicChallenge | FlagEcho | FlagResponseRequired,
				ID:          "Auth",
				Prompt:      "Please enter token PIN",
				ChallengeID: "Om01u7",
				Username:    "cr",
			},
		},
		{
			name: "comma layout",
			s:    "CRV1:R,id123,dXNlcg==,Enter OTP",
			want: &AuthParam{
				Flags:       FlagDynamicChallenge | FlagResponseRequired,
				ID:          "Auth",
				Prompt:      "Enter OTP",
				ChallengeID: "id123",
				Username:    "user",
			},
		},
		{
			name: "challenge text may contain colons",
			s:    "R:id:dXNlcg==:Code: 1234",
			want: &AuthParam{
				Flags:       FlagDynamicChallenge | FlagResponseRequired,
				ID:          "Auth",
				Prompt:      "Code: 1234",
				ChallengeID: "id",
				Username:    "user",
			},
		},
		{
			name: "no response required",
			s:    "E:id:dXNlcg==:Just a notice",
			want: &AuthParam{
				Flags:       FlagDynamicChallenge | FlagEcho,
				ID:          "Auth",
				Prompt:      "Just a notice",
				ChallengeID: "id",
				Username:    "user",
			},
		},
		{
			name: "comma layout with both flags run together",
			s:    "CRV1:ER,id123,dXNlcg==,Enter OTP",
			want: &AuthParam{
				Flags:       FlagDynamicChallenge | FlagEcho | FlagResponseRequired,
				ID:          "Auth",
				Prompt:      "Enter OTP",
				ChallengeID: "id123",
				Username:    "user",
			},
		},
		{
			name: "comma layout with the flags reversed",
			s:    "RE,id123,dXNlcg==,Enter OTP",
			want: &AuthParam{
				Flags:       FlagDynamicChallenge | FlagEcho | FlagResponseRequired,
				ID:          "Auth",
				Prompt:      "Enter OTP",
				ChallengeID: "id123",
				Username:    "user",
			},
		},
		{
			name: "colon layout with comma separated flags",
			s:    "R,E:id123:dXNlcg==:Enter OTP",
			want: &AuthParam{
				Flags:       FlagDynamicChallenge | FlagEcho | FlagResponseRequired,
				ID:          "Auth",
				Prompt:      "Enter OTP",
				ChallengeID: "id123",
				Username:    "user",
			},
		},
		{
			name: "comma layout with colons in the text",
			s:    "CRV1:R,id123,dXNlcg==,Code a:b:c:d",
			want: &AuthParam{
				Flags:       FlagDynamicChallenge | FlagResponseRequired,
				ID:          "Auth",
				Prompt:      "Code a:b:c:d",
				ChallengeID: "id123",
				Username:    "user",
			},
		},
		{
			name:    "missing tokens",
			s:       "R,id123",
			wantErr: ErrMalformedChallenge,
		},
		{
			name:    "bad base64 username",
			s:       "R:id:%%%:text",
			wantErr: ErrMalformedChallenge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDynamic(tt.s)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseDynamic() error = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestDynamicChallengeRoundTrip(t *testing.T) {
	req, err := ParsePasswordRequest("Verification Failed: 'Auth' ['CRV1:R,id123,dXNlcg==,Enter OTP']")
	if err != nil {
		t.Fatal(err)
	}
	param, err := ParseDynamic(req.Dynamic)
	if err != nil {
		t.Fatal(err)
	}
	if param.Prompt != "Enter OTP" {
		t.Errorf("unexpected prompt %q", param.Prompt)
	}
	if param.Username != "user" {
		t.Errorf("unexpected username %q", param.Username)
	}
	got := PasswordCommand("Auth", DynamicChallengeResponse(param.ChallengeID, "424242"))
	if got != `password "Auth" "CRV1::id123::424242"` {
		t.Errorf("unexpected command %q", got)
	}
}

func TestParseStatic(t *testing.T) {
	t.Run("an empty challenge is malformed", func(t *testing.T) {
		if _, err := ParseStatic("username/password SC:"); !errors.Is(err, ErrMalformedChallenge) {
			t.Errorf("unexpected error %v", err)
		}
	})
	t.Run("a missing marker is malformed", func(t *testing.T) {
		if _, err := ParseStatic("username/password"); !errors.Is(err, ErrMalformedChallenge) {
			t.Errorf("unexpected error %v", err)
		}
	})
}

func TestParseCRText(t *testing.T) {
	got, err := ParseCRText("CR_TEXT:R,E:Enter your code")
	if err != nil {
		t.Fatal(err)
	}
	want := &AuthParam{Flags: FlagEcho | FlagResponseRequired, ID: "CR_TEXT", Prompt: "Enter your code"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Error(diff)
	}
	if _, err := ParseCRText("CR_TEXT"); !errors.Is(err, ErrMalformedChallenge) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestParseNeed(t *testing.T) {
	got, err := ParseNeed("Need 'token-insertion-request' confirm MSG:Please insert your token")
	if err != nil {
		t.Fatal(err)
	}
	want := &NeedRequest{Name: "token-insertion-request", Message: "Please insert your token"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Error(diff)
	}
	if _, err := ParseNeed("Whatever"); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestParsePkcs11Entry(t *testing.T) {
	got, err := ParsePkcs11Entry("'1', ID:'pkcs11:token=x', BLOB:'MIIB'")
	if err != nil {
		t.Fatal(err)
	}
	want := &Pkcs11Entry{Index: 1, ID: "pkcs11:token=x", Blob: "MIIB"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Error(diff)
	}
	if _, err := ParsePkcs11Entry("'x', ID:'a', BLOB:'b'"); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("unexpected error %v", err)
	}
	if _, err := ParsePkcs11Entry("'0', ID:'a'"); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"username escapes quotes", UsernameCommand("Auth", `jo"e`), `username "Auth" "jo\"e"`},
		{"password escapes backslashes", PasswordCommand("Auth", `a\b`), `password "Auth" "a\\b"`},
		{"static response", StaticChallengeResponse("pass", "123456"), "SCRV1:cGFzcw==:MTIzNDU2"},
		{"dynamic response", DynamicChallengeResponse("id", "r"), "CRV1::id::r"},
		{"cr response", CRResponseCommand("otp"), "cr-response b3Rw"},
		{"needok ok", NeedOKCommand("token-insertion-request", true), "needok 'token-insertion-request' ok"},
		{"needok cancel", NeedOKCommand("x", false), "needok 'x' cancel"},
		{"needstr", NeedStrCommand("name", `v"`), `needstr 'name' "v\""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
