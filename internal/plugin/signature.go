// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/blake2b"
)

// SignatureVerifier checks plugin artifact signatures before load.
type SignatureVerifier interface {
	// Verify checks the signature for the plugin rooted at dir. A nil
	// error means the artifact is trusted.
	Verify(manifest *Manifest, dir string) error
}

// NoopVerifier trusts every plugin. Used when signature checking is
// disabled in configuration.
type NoopVerifier struct{}

// Verify always succeeds.
func (NoopVerifier) Verify(*Manifest, string) error { return nil }

// Ed25519Verifier verifies a detached ed25519 signature over the
// BLAKE2b-256 digest of the plugin's entry artifact. The signature lives
// next to the manifest as plugin.sig, hex encoded.
type Ed25519Verifier struct {
	pub ed25519.PublicKey
}

// NewEd25519Verifier creates a verifier from a hex-encoded public key.
func NewEd25519Verifier(hexKey string) (*Ed25519Verifier, error) {
	errb := oops.Code(CodeConfigInvalid)
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, errb.Wrapf(err, "signing key is not valid hex")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errb.With("size", len(raw)).Errorf("signing key must be %d bytes", ed25519.PublicKeySize)
	}
	return &Ed25519Verifier{pub: ed25519.PublicKey(raw)}, nil
}

// Verify checks plugin.sig against the digest of the plugin's artifact.
func (v *Ed25519Verifier) Verify(manifest *Manifest, dir string) error {
	errb := oops.Code(CodeSignatureInvalid).With("plugin", manifest.Name)

	artifact, err := manifest.artifactPath(dir)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(artifact) //nolint:gosec // path derives from a validated manifest
	if err != nil {
		return errb.Wrapf(err, "cannot read plugin artifact")
	}

	sigHex, err := os.ReadFile(filepath.Join(dir, "plugin.sig")) //nolint:gosec // fixed name under the plugin dir
	if err != nil {
		return errb.Wrapf(err, "cannot read plugin signature")
	}
	sig, err := hex.DecodeString(strings.TrimSpace(string(sigHex)))
	if err != nil {
		return errb.Wrapf(err, "signature is not valid hex")
	}

	digest := blake2b.Sum256(data)
	if !ed25519.Verify(v.pub, digest[:], sig) {
		return errb.New("signature does not match artifact")
	}
	return nil
}

// artifactPath returns the path of the signed entry artifact for the
// plugin's type.
func (m *Manifest) artifactPath(dir string) (string, error) {
	switch m.Type {
	case TypeLua:
		return filepath.Join(dir, m.LuaPlugin.Entry), nil
	case TypeBinary:
		return filepath.Join(dir, m.BinaryPlugin.Executable), nil
	default:
		return "", oops.Code(CodeManifestInvalid).
			With("plugin", m.Name).
			Errorf("unknown plugin type %q", m.Type)
	}
}
