package sign

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/spilman/hub/logging"
)

// Key file format: hex(nonce || secretbox(seed)), sealed with
// sha256(passphrase).  32 byte ed25519 seed inside.

const nonceSize = 24

// LoadOrCreateKey reads the hub key file, creating a fresh key if the
// file isn't there yet.
func LoadOrCreateKey(path string, passphrase []byte) (*Signer, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logging.Infof("no key file at %s, generating a new hub key\n", path)
		return createKeyFile(path, passphrase)
	}
	return readKeyFile(path, passphrase)
}

func sealKey(key [32]byte) *[32]byte {
	return &key
}

func createKeyFile(path string, passphrase []byte) (*Signer, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	boxKey := sha256.Sum256(passphrase)
	sealed := secretbox.Seal(nonce[:], seed[:], &nonce, sealKey(boxKey))

	err := ioutil.WriteFile(path, []byte(hex.EncodeToString(sealed)+"\n"), 0600)
	if err != nil {
		return nil, err
	}
	return NewSigner(ed25519.NewKeyFromSeed(seed[:])), nil
}

func readKeyFile(path string, passphrase []byte) (*Signer, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sealed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("key file %s is not hex: %v", path, err)
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("key file %s too short", path)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	boxKey := sha256.Sum256(passphrase)
	seed, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, sealKey(boxKey))
	if !ok {
		return nil, fmt.Errorf("wrong passphrase for key file %s", path)
	}
	if len(seed) != 32 {
		return nil, fmt.Errorf("key file %s holds a %d byte seed", path, len(seed))
	}
	return NewSigner(ed25519.NewKeyFromSeed(seed)), nil
}
