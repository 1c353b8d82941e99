package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/pKV/lib/crdt"
	"github.com/ValentinKolb/pKV/lib/entry"
	"github.com/ValentinKolb/pKV/lib/identity"
	"github.com/ValentinKolb/pKV/rpc/common"
)

// account is the value stored under the frozen key of a username. The private
// key is only stored encrypted with the password of the user.
type account struct {
	Address string `json:"address"`
	Vault   []byte `json:"vault"`
}

// accountKey returns the frozen key holding the account of username
func accountKey(username string) string {
	return entry.FrozenPrefix + username
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if strings.Contains(username, entry.NamespaceSeparator) {
		return ErrKeyDots
	}
	return nil
}

// SignUp creates a new identity, publishes it encrypted with password under the
// frozen key of username and signs in as the new user.
func (n *Node) SignUp(ctx context.Context, username, password string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	key := accountKey(username)

	_, err := n.GetRecord(ctx, key)
	switch {
	case err == nil:
		return ErrUserExists
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTimeout):
	default:
		return err
	}

	user, err := n.suite.Generate()
	if err != nil {
		return err
	}
	vault, err := user.EncryptAccount(password)
	if err != nil {
		return err
	}
	value, err := json.Marshal(account{Address: user.Address(), Vault: vault})
	if err != nil {
		return err
	}
	e, err := entry.Seal(ctx, user, key, value, crdt.TypeNone, n.config.PowDifficulty, n.now())
	if err != nil {
		return err
	}
	if err := n.write(ctx, common.NewPut("", e)); err != nil {
		return err
	}

	// a concurrent sign up of the same name may have won the frozen key
	rec, err := n.loadRecord(key)
	if err != nil {
		return err
	}
	if rec == nil || rec.Entry.Author != user.Address() {
		return ErrUserExists
	}

	n.setUser(username, user)
	Logger.Infof("Signed up %s as %s", username, user.Address())
	return nil
}

// SignIn loads the account of username and decrypts it with password
func (n *Node) SignIn(ctx context.Context, username, password string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	rec, err := n.GetRecord(ctx, accountKey(username))
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTimeout) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	var acc account
	if err := json.Unmarshal(rec.Entry.Value, &acc); err != nil {
		return fmt.Errorf("invalid account record: %w", err)
	}
	user, err := n.suite.DecryptAccount(acc.Vault, password)
	if errors.Is(err, identity.ErrInvalidPassword) {
		return ErrInvalidPassword
	}
	if err != nil {
		return err
	}
	if user.Address() != rec.Entry.Author || user.Address() != acc.Address {
		return fmt.Errorf("account of %s does not match its key", username)
	}

	n.setUser(username, user)
	Logger.Infof("Signed in %s as %s", username, user.Address())
	return nil
}

// SignOut forgets the signed-in user
func (n *Node) SignOut() {
	n.setUser("", nil)
}

// Address returns the address of the signed-in user or an empty string
func (n *Node) Address() string {
	if user := n.currentUser(); user != nil {
		return user.Address()
	}
	return ""
}

// Username returns the name of the signed-in user or an empty string
func (n *Node) Username() string {
	n.userMu.RLock()
	defer n.userMu.RUnlock()
	return n.username
}

func (n *Node) setUser(username string, user identity.IIdentity) {
	n.userMu.Lock()
	defer n.userMu.Unlock()
	n.username = username
	n.user = user
}
