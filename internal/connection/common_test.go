package connection

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/ovpngui/ovpngui/internal/echo"
	"github.com/ovpngui/ovpngui/internal/model"
)

var errTest = errors.New("mocked error")

// fakePrompter answers prompts with answer or cancels them when answer is nil.
type fakePrompter struct {
	mu       sync.Mutex
	requests []*PromptRequest
	answer   func(req *PromptRequest) (*PromptResponse, error)
}

func (p *fakePrompter) Prompt(ctx context.Context, req *PromptRequest) (*PromptResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	answer := p.answer
	p.mu.Unlock()
	if answer == nil {
		return nil, ErrCancelled
	}
	return answer(req)
}

func (p *fakePrompter) Requests() []*PromptRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*PromptRequest{}, p.requests...)
}

// fakeNotifier records what we show to the user.
type fakeNotifier struct {
	mu       sync.Mutex
	notices  []Notice
	messages []*echo.Message
	urls     []string
}

func (n *fakeNotifier) Notify(profile string, notice Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
}

func (n *fakeNotifier) ShowMessage(profile string, msg *echo.Message) {
	n.mu.Lock()
	n.messages = append(n.messages, msg)
	n.mu.Unlock()
}

func (n *fakeNotifier) OpenURL(profile string, url string) {
	n.mu.Lock()
	n.urls = append(n.urls, url)
	n.mu.Unlock()
}

func (n *fakeNotifier) Kinds() []NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []NoticeKind
	for _, notice := range n.notices {
		out = append(out, notice.Kind)
	}
	return out
}

// fakeScripts counts the hooks.
type fakeScripts struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	lastEnv     map[string]string
}

func (s *fakeScripts) RunConnect(ctx context.Context, profile *model.Profile, env map[string]string) {
	s.mu.Lock()
	s.connects++
	s.lastEnv = env
	s.mu.Unlock()
}

func (s *fakeScripts) RunDisconnect(ctx context.Context, profile *model.Profile, env map[string]string) {
	s.mu.Lock()
	s.disconnects++
	s.lastEnv = env
	s.mu.Unlock()
}

// fakeStore keeps everything in memory.
type fakeStore struct {
	usernames map[string]string
	passwords map[string]string
	history   map[string][]echo.Entry
	forgotten int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		usernames: map[string]string{},
		passwords: map[string]string{},
		history:   map[string][]echo.Entry{},
	}
}

func (s *fakeStore) Username(profile string) (string, bool) {
	v, found := s.usernames[profile]
	return v, found
}

func (s *fakeStore) SetUsername(profile, username string) error {
	s.usernames[profile] = username
	return nil
}

func (s *fakeStore) Password(profile, id string) (string, bool) {
	v, found := s.passwords[profile+"/"+id]
	return v, found
}

func (s *fakeStore) SetPassword(profile, id, password string) error {
	s.passwords[profile+"/"+id] = password
	return nil
}

func (s *fakeStore) ForgetPasswords(profile string) error {
	s.forgotten++
	for key := range s.passwords {
		if strings.HasPrefix(key, profile+"/") {
			delete(s.passwords, key)
		}
	}
	return nil
}

func (s *fakeStore) EchoHistory(profile string) []echo.Entry {
	return s.history[profile]
}

func (s *fakeStore) SaveEchoHistory(profile string, entries []echo.Entry) error {
	s.history[profile] = entries
	return nil
}

// fakeProcess is a daemon that exits on Stop when exitOnStop is set.
type fakeProcess struct {
	done       chan struct{}
	once       sync.Once
	exitOnStop bool
	stops      int
	kills      int
}

func newFakeProcess(exitOnStop bool) *fakeProcess {
	return &fakeProcess{done: make(chan struct{}), exitOnStop: exitOnStop}
}

func (p *fakeProcess) Stop() error {
	p.stops++
	if p.exitOnStop {
		p.exit()
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.kills++
	p.exit()
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} {
	return p.done
}

func (p *fakeProcess) exit() {
	p.once.Do(func() { close(p.done) })
}

// fakeLauncher returns proc.
type fakeLauncher struct {
	proc     *fakeProcess
	err      error
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context, profile *model.Profile) (model.Process, string, error) {
	l.launches++
	if l.err != nil {
		return nil, "", l.err
	}
	return l.proc, "127.0.0.1:7505", nil
}

// blockingDialer never connects.
type blockingDialer struct{}

func (blockingDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// pipeDialer hands out conn once.
type pipeDialer struct {
	mu   sync.Mutex
	conn net.Conn
}

func (d *pipeDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil, errors.New("connection refused")
	}
	conn := d.conn
	d.conn = nil
	return conn, nil
}

// fixture is a connection wired to fakes with a session that records the
// commands instead of writing them.
type fixture struct {
	conn     *Connection
	sent     []string
	logger   *model.TestLogger
	prompter *fakePrompter
	notifier *fakeNotifier
	scripts  *fakeScripts
	store    *fakeStore
}

func newFixture(t *testing.T, profile *model.Profile, options ...Option) *fixture {
	t.Helper()
	f := &fixture{
		logger:   model.NewTestLogger(),
		prompter: &fakePrompter{},
		notifier: &fakeNotifier{},
		scripts:  &fakeScripts{},
		store:    newFakeStore(),
	}
	config := model.NewConfig(model.WithLogger(f.logger))
	options = append([]Option{
		WithPrompter(f.prompter),
		WithNotifier(f.notifier),
		WithScripts(f.scripts),
		WithStore(f.store),
		WithDialer(blockingDialer{}),
	}, options...)
	f.conn = New(profile, config, options...)
	f.attach()
	t.Cleanup(f.conn.cleanup)
	return f
}

// attach installs a fresh recording session.
func (f *fixture) attach() {
	f.conn.session = f.conn.newSession(func(text string) error {
		f.sent = append(f.sent, strings.TrimSuffix(text, "\n"))
		return nil
	})
}

// feed dispatches lines as if read from the daemon.
func (f *fixture) feed(lines ...string) {
	for _, line := range lines {
		f.conn.handleLine(line)
	}
}

// withProcess pretends we launched proc.
func (f *fixture) withProcess(proc *fakeProcess) {
	f.conn.process = proc
	f.conn.procDone = proc.Done()
}

func testProfile() *model.Profile {
	return &model.Profile{Name: "office", Config: "office.ovpn"}
}
