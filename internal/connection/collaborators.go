package connection

import (
	"context"
	"errors"
	"net"

	"github.com/ovpngui/ovpngui/internal/challenge"
	"github.com/ovpngui/ovpngui/internal/echo"
	"github.com/ovpngui/ovpngui/internal/model"
)

// ErrCancelled is returned by a [Prompter] when the user dismisses a prompt.
var ErrCancelled = errors.New("connection: prompt cancelled")

// PromptKind is the kind of input we need from the user.
type PromptKind int

const (
	// PromptUserPass asks for the Auth username and password.
	PromptUserPass = PromptKind(iota)

	// PromptPassphrase asks for the private key passphrase.
	PromptPassphrase

	// PromptStaticChallenge asks for username, password and a challenge response.
	PromptStaticChallenge

	// PromptDynamicChallenge asks for the response to a CRV1 challenge.
	PromptDynamicChallenge

	// PromptProxy asks for the proxy username and password.
	PromptProxy

	// PromptToken asks for a generic password such as a token PIN.
	PromptToken

	// PromptNeedOK asks the user to confirm an action (e.g. insert a token).
	PromptNeedOK

	// PromptNeedStr asks for a string.
	PromptNeedStr

	// PromptPkcs11 asks to choose a certificate among Choices.
	PromptPkcs11

	// PromptCRText asks for the response to a CR_TEXT challenge.
	PromptCRText
)

// String implements fmt.Stringer.
func (k PromptKind) String() string {
	switch k {
	case PromptUserPass:
		return "user-pass"
	case PromptPassphrase:
		return "passphrase"
	case PromptStaticChallenge:
		return "static-challenge"
	case PromptDynamicChallenge:
		return "dynamic-challenge"
	case PromptProxy:
		return "proxy"
	case PromptToken:
		return "token"
	case PromptNeedOK:
		return "need-ok"
	case PromptNeedStr:
		return "need-str"
	case PromptPkcs11:
		return "pkcs11"
	case PromptCRText:
		return "cr-text"
	default:
		return "invalid"
	}
}

// PromptRequest describes a credential prompt.
type PromptRequest struct {
	// Kind is the prompt kind.
	Kind PromptKind

	// Profile is the name of the profile asking.
	Profile string

	// ID is the credential or request id the daemon used.
	ID string

	// Message is the text the daemon attached to the request.
	Message string

	// Challenge is set for challenge prompts.
	Challenge *challenge.AuthParam

	// Username prefills the username field.
	Username string

	// NeedUsername is false when only a password is needed.
	NeedUsername bool

	// Retry is set when a previous attempt failed, so the UI can
	// preselect the field for overtyping.
	Retry bool

	// AllowSave offers saving the password.
	AllowSave bool

	// Choices lists the certificates of a [PromptPkcs11] prompt.
	Choices []string
}

// PromptResponse is the user input.
type PromptResponse struct {
	Username string
	Password string

	// Response is the challenge response or the requested string.
	Response string

	// Choice is the index of the chosen certificate.
	Choice int

	// Save asks to save the password.
	Save bool
}

// Prompter asks the user for credentials. Prompt may block for a long time
// and must return when ctx is done. Any error cancels the prompt.
type Prompter interface {
	Prompt(ctx context.Context, req *PromptRequest) (*PromptResponse, error)
}

// NoticeKind classifies user-facing notices.
type NoticeKind int

const (
	// NoticeConnected means the connection is up.
	NoticeConnected = NoticeKind(iota)

	// NoticeTerminated means a connected daemon exited on its own.
	NoticeTerminated

	// NoticeConnectFailed means the daemon exited before connecting.
	NoticeConnectFailed

	// NoticeReconnectFailed means the daemon exited while reconnecting.
	NoticeReconnectFailed

	// NoticeTimedOut means the management interface was not reachable in time.
	NoticeTimedOut
)

// String implements fmt.Stringer.
func (k NoticeKind) String() string {
	switch k {
	case NoticeConnected:
		return "connected"
	case NoticeTerminated:
		return "terminated"
	case NoticeConnectFailed:
		return "connect-failed"
	case NoticeReconnectFailed:
		return "reconnect-failed"
	case NoticeTimedOut:
		return "timed-out"
	default:
		return "invalid"
	}
}

// Notice is a message for the user.
type Notice struct {
	Kind NoticeKind
	Text string
}

// Notifier shows things to the user. Its methods must not block.
type Notifier interface {
	Notify(profile string, notice Notice)
	ShowMessage(profile string, msg *echo.Message)
	OpenURL(profile string, url string)
}

// ScriptRunner runs the connect and disconnect scripts. Its methods must not
// block: scripts run in the background and their failures are only logged.
type ScriptRunner interface {
	RunConnect(ctx context.Context, profile *model.Profile, env map[string]string)
	RunDisconnect(ctx context.Context, profile *model.Profile, env map[string]string)
}

// Store saves credentials and echo history keyed by profile name. Errors
// mean "not saved" and are only logged.
type Store interface {
	Username(profile string) (string, bool)
	SetUsername(profile, username string) error
	Password(profile, id string) (string, bool)
	SetPassword(profile, id, password string) error
	ForgetPasswords(profile string) error
	EchoHistory(profile string) []echo.Entry
	SaveEchoHistory(profile string, entries []echo.Entry) error
}

// Launcher starts an openvpn daemon for a profile and returns the process
// along with the address of its management interface.
type Launcher interface {
	Launch(ctx context.Context, profile *model.Profile) (model.Process, string, error)
}

// Dialer opens the management transport.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// cancelPrompter cancels every prompt.
type cancelPrompter struct{}

func (cancelPrompter) Prompt(ctx context.Context, req *PromptRequest) (*PromptResponse, error) {
	return nil, ErrCancelled
}

// logNotifier logs the notices.
type logNotifier struct {
	logger model.Logger
}

func (n *logNotifier) Notify(profile string, notice Notice) {
	n.logger.Infof("%s: %s: %s", profile, notice.Kind, notice.Text)
}

func (n *logNotifier) ShowMessage(profile string, msg *echo.Message) {
	n.logger.Infof("%s: %s: %s", profile, msg.Title, msg.Text)
}

func (n *logNotifier) OpenURL(profile string, url string) {
	n.logger.Infof("%s: please open %s", profile, url)
}

// nullScripts runs nothing.
type nullScripts struct{}

func (nullScripts) RunConnect(context.Context, *model.Profile, map[string]string) {}
func (nullScripts) RunDisconnect(context.Context, *model.Profile, map[string]string) {}

// nullStore saves nothing.
type nullStore struct{}

func (nullStore) Username(string) (string, bool) { return "", false }
func (nullStore) SetUsername(string, string) error { return nil }
func (nullStore) Password(string, string) (string, bool) { return "", false }
func (nullStore) SetPassword(string, string, string) error { return nil }
func (nullStore) ForgetPasswords(string) error { return nil }
func (nullStore) EchoHistory(string) []echo.Entry { return nil }
func (nullStore) SaveEchoHistory(string, []echo.Entry) error { return nil }
