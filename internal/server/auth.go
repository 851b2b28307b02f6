package server

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	gossh "golang.org/x/crypto/ssh"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/config"
	"github.com/johan-st/tableedit/internal/history"
)

// Authenticator handles SSH authentication.
type Authenticator struct {
	config       *config.Config
	historyStore *history.Store
	logger       *log.Logger
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(cfg *config.Config, historyStore *history.Store, logger *log.Logger) *Authenticator {
	return &Authenticator{
		config:       cfg,
		historyStore: historyStore,
		logger:       logger,
	}
}

// PublicKeyHandler returns a handler for public key authentication.
func (a *Authenticator) PublicKeyHandler() ssh.PublicKeyHandler {
	return func(ctx ssh.Context, key ssh.PublicKey) bool {
		fingerprint := FingerprintKey(key)
		user := a.findUserByKey(fingerprint, key)

		if user != nil {
			user.RemoteAddr = ctx.RemoteAddr().String()
			ctx.SetValue(ctxKeyUser, user)
			a.logger.Infof("Authenticated user %s from %s", user.Name, ctx.RemoteAddr())
			return true
		}

		// Allow anonymous access if configured
		if a.config.AnonymousAllowed() {
			anonUser := a.anonymousUser(ctx.RemoteAddr().String())
			anonUser.PublicKeyFP = fingerprint
			ctx.SetValue(ctxKeyUser, anonUser)
			a.logger.Infof("Anonymous access from %s as %s", ctx.RemoteAddr(), anonUser.AnonymousName)
			return true
		}

		a.logger.Warnf("Authentication failed for key %s from %s", fingerprint, ctx.RemoteAddr())
		return false
	}
}

// KeyboardInteractiveHandler returns a handler for keyboard-interactive auth.
func (a *Authenticator) KeyboardInteractiveHandler() ssh.KeyboardInteractiveHandler {
	return func(ctx ssh.Context, challenger gossh.KeyboardInteractiveChallenge) bool {
		if !a.config.KeylessAllowed() {
			return false
		}
		anonUser := a.anonymousUser(ctx.RemoteAddr().String())
		ctx.SetValue(ctxKeyUser, anonUser)
		a.logger.Infof("Anonymous keyboard-interactive access from %s as %s", ctx.RemoteAddr(), anonUser.AnonymousName)
		return true
	}
}

func (a *Authenticator) anonymousUser(remoteAddr string) *access.UserInfo {
	var name string
	if a.historyStore != nil {
		name = a.historyStore.GenerateAnonymousName()
	} else {
		name = history.NewNameGenerator().Generate()
	}
	return &access.UserInfo{
		IsAnonymous:   true,
		AnonymousName: name,
		RemoteAddr:    remoteAddr,
	}
}

// findUserByKey finds a configured user by their public key.
func (a *Authenticator) findUserByKey(fingerprint string, key ssh.PublicKey) *access.UserInfo {
	for _, user := range a.config.UsersSnapshot() {
		for _, pubKeyStr := range user.PublicKeys {
			parsedKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubKeyStr))
			if err != nil {
				// Try comparing as raw fingerprint
				if strings.Contains(pubKeyStr, fingerprint) {
					return &access.UserInfo{
						Name:        user.Name,
						IsAdmin:     user.Admin,
						PublicKeyFP: fingerprint,
					}
				}
				continue
			}

			if ssh.KeysEqual(parsedKey, key) {
				return &access.UserInfo{
					Name:        user.Name,
					IsAdmin:     user.Admin,
					PublicKeyFP: fingerprint,
				}
			}
		}
	}
	return nil
}

// GetUserFromContext retrieves user info from the SSH context.
func GetUserFromContext(ctx ssh.Context) *access.UserInfo {
	if user, ok := ctx.Value(ctxKeyUser).(*access.UserInfo); ok {
		return user
	}
	return nil
}

// FingerprintKey returns the SHA256 fingerprint of a public key.
func FingerprintKey(key ssh.PublicKey) string {
	hash := sha256.Sum256(key.Marshal())
	return fmt.Sprintf("SHA256:%s", base64.RawStdEncoding.EncodeToString(hash[:]))
}
