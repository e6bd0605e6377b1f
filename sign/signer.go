package sign

import (
	"encoding/hex"

	"golang.org/x/crypto/ed25519"

	"github.com/spilman/hub/chanstate"
)

// Signer is the hub's signing authority: it produces the hub signature
// over the canonical state encoding.
type Signer struct {
	priv ed25519.PrivateKey
	addr string
}

// NewSigner wraps a private key.  The hub address is the hex public key,
// same scheme users are identified by.
func NewSigner(priv ed25519.PrivateKey) *Signer {
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{
		priv: priv,
		addr: hex.EncodeToString(pub),
	}
}

// Address is the hub's signing identity.
func (s *Signer) Address() string {
	return s.addr
}

// SigFor returns the hub signature over an arbitrary message.
func (s *Signer) SigFor(msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, msg))
}

// SigForChannelState signs the canonical encoding without mutating the
// state.
func (s *Signer) SigForChannelState(state chanstate.ChannelState) string {
	return s.SigFor(state.Bytes())
}

// SignChannelState returns a copy of the state carrying the hub signature.
func (s *Signer) SignChannelState(state chanstate.ChannelState) chanstate.ChannelState {
	state.SigHub = s.SigForChannelState(state)
	return state
}

// SignAsUser exists for tests and tools that need to play the user side;
// the daemon never calls it.
func SignAsUser(priv ed25519.PrivateKey, msg []byte) (addr, sig string) {
	pub := priv.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub), hex.EncodeToString(ed25519.Sign(priv, msg))
}
