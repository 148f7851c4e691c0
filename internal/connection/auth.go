package connection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ovpngui/ovpngui/internal/challenge"
	"github.com/ovpngui/ovpngui/internal/cmdqueue"
	"github.com/ovpngui/ovpngui/internal/model"
	"github.com/ovpngui/ovpngui/internal/optional"
)

const (
	// authPasswordID is the store id of the Auth password.
	authPasswordID = "auth"

	// keyPasswordID is the store id of the private key passphrase.
	keyPasswordID = "key"

	// pkcs11Request is the NEED-STR request selecting a certificate.
	pkcs11Request = "pkcs11-id-request"
)

type promptResult struct {
	resp *PromptResponse
	err  error
}

// awaitPrompt asks the user and blocks the event loop until the answer
// arrives. No line is read and no command is written meanwhile. Status
// requests are served, while disconnect-like requests and the daemon
// exiting cancel the prompt.
func (c *Connection) awaitPrompt(req *PromptRequest) (*PromptResponse, error) {
	req.Profile = c.profile.Name
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	results := make(chan promptResult, 1)
	go func() {
		resp, err := c.prompter.Prompt(ctx, req)
		results <- promptResult{resp, err}
	}()

	c.logger.Debugf("%s: waiting for %s input", c.profile.Name, req.Kind)
	procDone := c.procDone
	for {
		select {
		case res := <-results:
			if res.err == nil && ctx.Err() != nil {
				res.err = ErrCancelled
			}
			if res.err == nil && res.resp == nil {
				res.err = ErrCancelled
			}
			return res.resp, res.err

		case r := <-c.requests:
			if r.interrupt {
				c.deferred = append(c.deferred, r.fx)
				cancel()
				continue
			}
			r.fx()

		case <-procDone:
			procDone = nil
			cancel()
		}
	}
}

// onPromptCancelled maps a dismissed prompt to stopping the daemon.
func (c *Connection) onPromptCancelled(err error) {
	if !errors.Is(err, ErrCancelled) {
		c.logger.Warnf("%s: prompt failed: %s", c.profile.Name, err.Error())
	}
	if c.process != nil && !c.processAlive() {
		// onProcessExit takes care of it
		return
	}
	c.logger.Infof("%s: prompt cancelled, stopping", c.profile.Name)
	switch c.state {
	case model.StateDisconnecting, model.StateSuspending:
		return
	}
	c.stop()
}

// onPassword handles ">PASSWORD:" requests and verification failures.
func (c *Connection) onPassword(payload string) {
	req, err := challenge.ParsePasswordRequest(payload)
	if err != nil {
		c.logger.Warnf("%s: %s", c.profile.Name, err.Error())
		return
	}
	switch req.Kind {
	case challenge.RequestVerificationFailed:
		c.onVerificationFailed(req)
	case challenge.RequestAuthToken:
		c.logger.Debugf("%s: received an auth token", c.profile.Name)
	case challenge.RequestAuth:
		c.onAuthRequest(req)
	case challenge.RequestPrivateKey:
		c.onPrivateKeyRequest(req)
	case challenge.RequestHTTPProxy, challenge.RequestSOCKSProxy:
		c.onProxyRequest(req)
	default:
		c.onGenericRequest(req)
	}
}

// onVerificationFailed keeps the dynamic challenge to answer on the next
// Auth request. Challenges needing no response are dropped.
func (c *Connection) onVerificationFailed(req *challenge.Request) {
	c.dynamicCR = optional.None[string]()
	c.logger.Infof("%s: verification of '%s' failed", c.profile.Name, req.ID)
	if req.Dynamic == "" {
		return
	}
	param, err := challenge.ParseDynamic(req.Dynamic)
	if err != nil {
		c.logger.Warnf("%s: %s", c.profile.Name, err.Error())
		return
	}
	if !param.Has(challenge.FlagResponseRequired) {
		c.logger.Debugf("%s: dynamic challenge needs no response", c.profile.Name)
		return
	}
	c.dynamicCR = optional.Some(req.Dynamic)
}

func (c *Connection) onAuthRequest(req *challenge.Request) {
	switch {
	case !c.dynamicCR.IsNone():
		c.answerDynamic()
	case req.Static != nil:
		c.answerStatic(req)
	default:
		c.answerUserPass(req)
	}
}

// answerDynamic answers the dynamic challenge received with the last
// verification failure.
func (c *Connection) answerDynamic() {
	raw, _ := c.dynamicCR.Take()
	param, err := challenge.ParseDynamic(raw)
	if err != nil {
		c.logger.Warnf("%s: %s", c.profile.Name, err.Error())
		return
	}
	resp, err := c.awaitPrompt(&PromptRequest{
		Kind:      PromptDynamicChallenge,
		ID:        param.ID,
		Message:   param.Prompt,
		Challenge: param,
		Username:  param.Username,
	})
	if err != nil {
		c.onPromptCancelled(err)
		return
	}
	c.enqueue(challenge.UsernameCommand("Auth", param.Username), nil, cmdqueue.Regular)
	c.enqueue(challenge.PasswordCommand("Auth",
		challenge.DynamicChallengeResponse(param.ChallengeID, resp.Response)), nil, cmdqueue.Regular)
}

// answerStatic answers an Auth request carrying a static challenge.
func (c *Connection) answerStatic(req *challenge.Request) {
	username, _ := c.store.Username(c.profile.Name)
	resp, err := c.awaitPrompt(&PromptRequest{
		Kind:         PromptStaticChallenge,
		ID:           req.ID,
		Message:      req.Static.Prompt,
		Challenge:    req.Static,
		Username:     username,
		NeedUsername: true,
		Retry:        c.failedAuth > 0,
		AllowSave:    c.savePasswords,
	})
	if err != nil {
		c.onPromptCancelled(err)
		return
	}
	c.saveCredentials(resp, authPasswordID)
	c.enqueue(challenge.UsernameCommand(req.ID, resp.Username), nil, cmdqueue.Regular)
	c.enqueue(challenge.PasswordCommand(req.ID,
		challenge.StaticChallengeResponse(resp.Password, resp.Response)), nil, cmdqueue.Regular)
}

// answerUserPass answers a plain Auth request, reusing the saved
// credentials unless the last attempt failed.
func (c *Connection) answerUserPass(req *challenge.Request) {
	username, haveUsername := c.store.Username(c.profile.Name)
	password, havePassword := c.store.Password(c.profile.Name, authPasswordID)
	if c.failedAuth == 0 && havePassword && (haveUsername || req.PasswordOnly) {
		c.logger.Debugf("%s: using the saved credentials", c.profile.Name)
		c.sendUserPass(req, username, password)
		return
	}
	resp, err := c.awaitPrompt(&PromptRequest{
		Kind:         PromptUserPass,
		ID:           req.ID,
		Message:      req.Message,
		Username:     username,
		NeedUsername: !req.PasswordOnly,
		Retry:        c.failedAuth > 0,
		AllowSave:    c.savePasswords,
	})
	if err != nil {
		c.onPromptCancelled(err)
		return
	}
	c.saveCredentials(resp, authPasswordID)
	c.sendUserPass(req, resp.Username, resp.Password)
}

func (c *Connection) sendUserPass(req *challenge.Request, username, password string) {
	if !req.PasswordOnly {
		c.enqueue(challenge.UsernameCommand(req.ID, username), nil, cmdqueue.Regular)
	}
	c.enqueue(challenge.PasswordCommand(req.ID, password), nil, cmdqueue.Regular)
}

// saveCredentials saves the username and, when allowed, the password.
func (c *Connection) saveCredentials(resp *PromptResponse, id string) {
	if resp.Username != "" {
		if err := c.store.SetUsername(c.profile.Name, resp.Username); err != nil {
			c.logger.Warnf("%s: cannot save the username: %s", c.profile.Name, err.Error())
		}
	}
	if !resp.Save || !c.savePasswords {
		return
	}
	if err := c.store.SetPassword(c.profile.Name, id, resp.Password); err != nil {
		c.logger.Warnf("%s: cannot save the password: %s", c.profile.Name, err.Error())
	}
}

// onPrivateKeyRequest answers a passphrase request, reusing the saved
// passphrase unless the last attempt failed.
func (c *Connection) onPrivateKeyRequest(req *challenge.Request) {
	if password, found := c.store.Password(c.profile.Name, keyPasswordID); found && c.failedPsw == 0 {
		c.logger.Debugf("%s: using the saved passphrase", c.profile.Name)
		c.enqueue(challenge.PasswordCommand(req.ID, password), nil, cmdqueue.Regular)
		return
	}
	resp, err := c.awaitPrompt(&PromptRequest{
		Kind:      PromptPassphrase,
		ID:        req.ID,
		Message:   req.Message,
		Retry:     c.failedPsw > 0,
		AllowSave: c.savePasswords,
	})
	if err != nil {
		c.onPromptCancelled(err)
		return
	}
	c.saveCredentials(&PromptResponse{Password: resp.Password, Save: resp.Save}, keyPasswordID)
	c.enqueue(challenge.PasswordCommand(req.ID, resp.Password), nil, cmdqueue.Regular)
}

func (c *Connection) onProxyRequest(req *challenge.Request) {
	resp, err := c.awaitPrompt(&PromptRequest{
		Kind:         PromptProxy,
		ID:           req.ID,
		Message:      req.Message,
		NeedUsername: true,
	})
	if err != nil {
		c.onPromptCancelled(err)
		return
	}
	c.enqueue(challenge.UsernameCommand(req.ID, resp.Username), nil, cmdqueue.Regular)
	c.enqueue(challenge.PasswordCommand(req.ID, resp.Password), nil, cmdqueue.Regular)
}

// onGenericRequest answers "Need '<id>' password" requests such as token PINs.
func (c *Connection) onGenericRequest(req *challenge.Request) {
	resp, err := c.awaitPrompt(&PromptRequest{
		Kind:      PromptToken,
		ID:        req.ID,
		Message:   req.Message,
		Challenge: &challenge.AuthParam{Flags: challenge.FlagToken, ID: req.ID, Prompt: req.Message},
	})
	if err != nil {
		c.onPromptCancelled(err)
		return
	}
	c.enqueue(challenge.PasswordCommand(req.ID, resp.Password), nil, cmdqueue.Regular)
}

// onNeedOK asks the user to confirm. Dismissing answers cancel.
func (c *Connection) onNeedOK(payload string) {
	req, err := challenge.ParseNeed(payload)
	if err != nil {
		c.logger.Warnf("%s: %s", c.profile.Name, err.Error())
		return
	}
	_, err = c.awaitPrompt(&PromptRequest{Kind: PromptNeedOK, ID: req.Name, Message: req.Message})
	c.enqueue(challenge.NeedOKCommand(req.Name, err == nil), nil, cmdqueue.Regular)
}

// onNeedStr asks for a string or, for pkcs11-id-request, a certificate.
func (c *Connection) onNeedStr(payload string) {
	req, err := challenge.ParseNeed(payload)
	if err != nil {
		c.logger.Warnf("%s: %s", c.profile.Name, err.Error())
		return
	}
	if req.Name == pkcs11Request {
		c.listPkcs11IDs()
		return
	}
	resp, err := c.awaitPrompt(&PromptRequest{Kind: PromptNeedStr, ID: req.Name, Message: req.Message})
	if err != nil {
		c.onPromptCancelled(err)
		return
	}
	c.enqueue(challenge.NeedStrCommand(req.Name, resp.Response), nil, cmdqueue.Regular)
}

// listPkcs11IDs fetches the available certificates and lets the user pick one.
func (c *Connection) listPkcs11IDs() {
	c.enqueue("pkcs11-id-count", func(reply cmdqueue.Reply) {
		count, err := strconv.Atoi(strings.TrimSpace(reply.Text))
		if reply.Kind != cmdqueue.ReplySuccess || err != nil || count <= 0 {
			c.logger.Warnf("%s: no usable pkcs11 certificate: %s", c.profile.Name, reply.Text)
			c.stop()
			return
		}
		var entries []*challenge.Pkcs11Entry
		for idx := 0; idx < count; idx++ {
			last := idx == count-1
			c.enqueue(fmt.Sprintf("pkcs11-id-get %d", idx), func(reply cmdqueue.Reply) {
				if reply.Kind == cmdqueue.ReplySuccess {
					entry, err := challenge.ParsePkcs11Entry(reply.Text)
					if err != nil {
						c.logger.Warnf("%s: %s", c.profile.Name, err.Error())
					} else {
						entries = append(entries, entry)
					}
				}
				if last {
					c.selectPkcs11ID(entries)
				}
			}, cmdqueue.Regular)
		}
	}, cmdqueue.Regular)
}

func (c *Connection) selectPkcs11ID(entries []*challenge.Pkcs11Entry) {
	if len(entries) == 0 {
		c.logger.Warnf("%s: no usable pkcs11 certificate", c.profile.Name)
		c.stop()
		return
	}
	choices := make([]string, 0, len(entries))
	for _, entry := range entries {
		choices = append(choices, entry.ID)
	}
	resp, err := c.awaitPrompt(&PromptRequest{Kind: PromptPkcs11, ID: pkcs11Request, Choices: choices})
	if err != nil {
		c.onPromptCancelled(err)
		return
	}
	if resp.Choice < 0 || resp.Choice >= len(entries) {
		c.logger.Warnf("%s: invalid certificate choice %d", c.profile.Name, resp.Choice)
		c.stop()
		return
	}
	c.enqueue(challenge.NeedStrCommand(pkcs11Request, entries[resp.Choice].ID), nil, cmdqueue.Regular)
}
