package challenge

import (
	"encoding/base64"
	"fmt"
	"strings"
)

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Escape escapes backslashes and double quotes so s can appear inside a
// quoted management command argument.
func Escape(s string) string {
	return escaper.Replace(s)
}

// UsernameCommand returns `username "<id>" "<username>"`.
func UsernameCommand(id, username string) string {
	return fmt.Sprintf(`username "%s" "%s"`, Escape(id), Escape(username))
}

// PasswordCommand returns `password "<id>" "<password>"`.
func PasswordCommand(id, password string) string {
	return fmt.Sprintf(`password "%s" "%s"`, Escape(id), Escape(password))
}

// StaticChallengeResponse returns the value to send as the Auth password
// when answering a static challenge.
func StaticChallengeResponse(password, response string) string {
	return "SCRV1:" + b64(password) + ":" + b64(response)
}

// DynamicChallengeResponse returns the value to send as the Auth password
// when answering a dynamic challenge.
func DynamicChallengeResponse(challengeID, response string) string {
	return "CRV1::" + challengeID + "::" + response
}

// CRResponseCommand returns the command answering a CR_TEXT challenge.
func CRResponseCommand(response string) string {
	return "cr-response " + b64(response)
}

// NeedOKCommand returns `needok <name> ok` or `needok <name> cancel`.
func NeedOKCommand(name string, ok bool) string {
	answer := "cancel"
	if ok {
		answer = "ok"
	}
	return fmt.Sprintf("needok '%s' %s", name, answer)
}

// NeedStrCommand returns `needstr <name> "<value>"`.
func NeedStrCommand(name, value string) string {
	return fmt.Sprintf(`needstr '%s' "%s"`, name, Escape(value))
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
