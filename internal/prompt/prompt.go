// Package prompt asks for credentials and shows notices on a terminal.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ovpngui/ovpngui/internal/challenge"
	"github.com/ovpngui/ovpngui/internal/connection"
	"github.com/ovpngui/ovpngui/internal/echo"
	"golang.org/x/term"
)

// Terminal implements [connection.Prompter] and [connection.Notifier] over
// a text terminal. Prompts are serialized. The zero value is invalid; use
// [NewTerminal].
type Terminal struct {
	// prompting serializes prompts.
	prompting sync.Mutex

	// mu protects out.
	mu  sync.Mutex
	out io.Writer

	in          *bufio.Reader
	reads       chan readRequest
	startReader sync.Once

	// fd is the terminal we mask input on, or -1.
	fd int
}

var (
	_ connection.Prompter = &Terminal{}
	_ connection.Notifier = &Terminal{}
)

// NewTerminal creates a [Terminal]. Input is masked when in is a terminal.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{
		out:   out,
		in:    bufio.NewReader(in),
		reads: make(chan readRequest),
		fd:    -1,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
	}
	return t
}

// Notify implements connection.Notifier.
func (t *Terminal) Notify(profile string, notice connection.Notice) {
	t.printf("[%s] %s: %s\n", profile, notice.Kind, notice.Text)
}

// ShowMessage implements connection.Notifier.
func (t *Terminal) ShowMessage(profile string, msg *echo.Message) {
	t.printf("[%s] %s\n%s\n", profile, msg.Title, msg.Text)
}

// OpenURL implements connection.Notifier.
func (t *Terminal) OpenURL(profile string, url string) {
	t.printf("[%s] please open %s in your browser\n", profile, url)
}

func (t *Terminal) printf(format string, v ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, v...)
}

// Prompt implements connection.Prompter. Empty input for a required field
// cancels the prompt.
func (t *Terminal) Prompt(ctx context.Context, req *connection.PromptRequest) (*connection.PromptResponse, error) {
	t.prompting.Lock()
	defer t.prompting.Unlock()

	t.printf("[%s] %s\n", req.Profile, title(req))
	if req.Retry {
		t.printf("[%s] the previous attempt failed\n", req.Profile)
	}
	resp := &connection.PromptResponse{}
	var err error

	switch req.Kind {
	case connection.PromptUserPass, connection.PromptProxy, connection.PromptStaticChallenge:
		if req.NeedUsername {
			if resp.Username, err = t.ask(ctx, "Username", req.Username, false); err != nil {
				return nil, err
			}
		}
		if resp.Password, err = t.ask(ctx, "Password", "", true); err != nil {
			return nil, err
		}
		if req.Kind == connection.PromptStaticChallenge {
			if resp.Response, err = t.ask(ctx, req.Message, "", masked(req.Challenge)); err != nil {
				return nil, err
			}
		}

	case connection.PromptPassphrase, connection.PromptToken:
		label := "Password"
		if req.Message != "" {
			label = req.Message
		}
		if resp.Password, err = t.ask(ctx, label, "", true); err != nil {
			return nil, err
		}

	case connection.PromptDynamicChallenge, connection.PromptCRText:
		label := req.Message
		if req.Challenge != nil && req.Challenge.Prompt != "" {
			label = req.Challenge.Prompt
		}
		if resp.Response, err = t.ask(ctx, label, "", masked(req.Challenge)); err != nil {
			return nil, err
		}

	case connection.PromptNeedStr:
		if resp.Response, err = t.ask(ctx, req.Message, "", false); err != nil {
			return nil, err
		}

	case connection.PromptNeedOK:
		answer, err := t.readLine(ctx, "Press enter to continue or type 'cancel'", false)
		if err != nil {
			return nil, err
		}
		if isNo(answer) || strings.EqualFold(answer, "cancel") {
			return nil, connection.ErrCancelled
		}

	case connection.PromptPkcs11:
		if resp.Choice, err = t.choose(ctx, req.Choices); err != nil {
			return nil, err
		}

	default:
		return nil, connection.ErrCancelled
	}

	if req.AllowSave {
		answer, err := t.readLine(ctx, "Save password? [y/N]", false)
		if err != nil {
			return nil, err
		}
		resp.Save = isYes(answer)
	}
	return resp, nil
}

func title(req *connection.PromptRequest) string {
	switch req.Kind {
	case connection.PromptUserPass:
		return "authentication required"
	case connection.PromptPassphrase:
		return "private key passphrase required"
	case connection.PromptStaticChallenge, connection.PromptDynamicChallenge, connection.PromptCRText:
		return "challenge response required"
	case connection.PromptProxy:
		return fmt.Sprintf("%s credentials required", req.ID)
	case connection.PromptPkcs11:
		return "choose a certificate"
	default:
		if req.Message != "" {
			return req.Message
		}
		return fmt.Sprintf("input required for '%s'", req.ID)
	}
}

// masked returns whether the response to param must not be echoed.
func masked(param *challenge.AuthParam) bool {
	return param == nil || !param.Has(challenge.FlagEcho)
}

// ask reads a required field, falling back to def on empty input.
func (t *Terminal) ask(ctx context.Context, label, def string, mask bool) (string, error) {
	if def != "" {
		label = fmt.Sprintf("%s [%s]", label, def)
	}
	value, err := t.readLine(ctx, label, mask)
	if err != nil {
		return "", err
	}
	if value == "" {
		value = def
	}
	if value == "" {
		return "", connection.ErrCancelled
	}
	return value, nil
}

func (t *Terminal) choose(ctx context.Context, choices []string) (int, error) {
	for idx, choice := range choices {
		t.printf("  %d) %s\n", idx+1, choice)
	}
	value, err := t.readLine(ctx, "Certificate", false)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 || n > len(choices) {
		return 0, connection.ErrCancelled
	}
	return n - 1, nil
}

type readResult struct {
	line string
	err  error
}

type readRequest struct {
	mask    bool
	results chan readResult
}

// reader serves the reads one at a time so that only one goroutine ever
// touches the input.
func (t *Terminal) reader() {
	for req := range t.reads {
		if req.mask && t.fd >= 0 {
			data, err := term.ReadPassword(t.fd)
			t.printf("\n")
			req.results <- readResult{string(data), err}
			continue
		}
		line, err := t.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		req.results <- readResult{strings.TrimRight(line, "\r\n"), err}
	}
}

// readLine prints label and reads a line. When ctx is done first the read
// is abandoned and the next line typed is discarded.
func (t *Terminal) readLine(ctx context.Context, label string, mask bool) (string, error) {
	t.startReader.Do(func() {
		go t.reader()
	})
	t.printf("%s: ", label)
	req := readRequest{mask: mask, results: make(chan readResult, 1)}
	select {
	case t.reads <- req:
	case <-ctx.Done():
		t.printf("\n")
		return "", ctx.Err()
	}
	select {
	case res := <-req.results:
		if res.err != nil {
			return "", fmt.Errorf("%w: %s", connection.ErrCancelled, res.err.Error())
		}
		return strings.TrimSpace(res.line), nil
	case <-ctx.Done():
		t.printf("\n")
		return "", ctx.Err()
	}
}

func isYes(s string) bool {
	return strings.EqualFold(s, "y") || strings.EqualFold(s, "yes")
}

func isNo(s string) bool {
	return strings.EqualFold(s, "n") || strings.EqualFold(s, "no")
}
