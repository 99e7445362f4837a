package sealer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/miekg/pkcs11"
)

// HSMSealer wraps keys with an AES key held inside a PKCS#11 token, never
// exporting the key material to process memory. It uses AES-CBC with a
// 16-byte IV, matching the mechanism the token this package was written
// against supports.
type HSMSealer struct {
	ctx        *pkcs11.Ctx
	tokenLabel string
	userPIN    string
	keyTag     string
}

// NewHSMSealer loads the PKCS#11 module at modulePath and prepares to
// authenticate against the token named tokenLabel.
func NewHSMSealer(modulePath, tokenLabel, userPIN, keyTag string) (*HSMSealer, error) {
	ctx := pkcs11.New(modulePath)
	if ctx == nil {
		return nil, fmt.Errorf("loading pkcs11 module %q", modulePath)
	}
	if err := ctx.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing pkcs11 module: %w", err)
	}
	return &HSMSealer{ctx: ctx, tokenLabel: tokenLabel, userPIN: userPIN, keyTag: keyTag}, nil
}

func (h *HSMSealer) Name() string { return "hsm" }

// GenerateIV returns a 16-byte hex-encoded IV, the block size AES-CBC requires.
func (h *HSMSealer) GenerateIV() (string, error) {
	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}
	return hex.EncodeToString(iv), nil
}

func (h *HSMSealer) Encrypt(_ context.Context, plaintextHex, ivHex string) (string, error) {
	session, err := h.connect()
	if err != nil {
		return "", err
	}
	defer h.ctx.CloseSession(session)

	key, err := h.findOrCreateKey(session)
	if err != nil {
		return "", err
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("decoding iv: %w", err)
	}
	plaintext, err := hex.DecodeString(plaintextHex)
	if err != nil {
		return "", fmt.Errorf("decoding plaintext: %w", err)
	}

	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_AES_CBC_PAD, iv)}
	if err := h.ctx.EncryptInit(session, mech, key); err != nil {
		return "", fmt.Errorf("encrypt init: %w", err)
	}
	ciphertext, err := h.ctx.Encrypt(session, plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return hex.EncodeToString(ciphertext), nil
}

func (h *HSMSealer) Decrypt(_ context.Context, ciphertextHex, ivHex string) (string, error) {
	session, err := h.connect()
	if err != nil {
		return "", err
	}
	defer h.ctx.CloseSession(session)

	key, err := h.findOrCreateKey(session)
	if err != nil {
		return "", err
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("decoding iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_AES_CBC_PAD, iv)}
	if err := h.ctx.DecryptInit(session, mech, key); err != nil {
		return "", fmt.Errorf("decrypt init: %w", err)
	}
	plaintext, err := h.ctx.Decrypt(session, ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

func (h *HSMSealer) slot() (uint, error) {
	slots, err := h.ctx.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("listing slots: %w", err)
	}
	for _, slot := range slots {
		info, err := h.ctx.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if info.Label == h.tokenLabel {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("no token with label %q", h.tokenLabel)
}

func (h *HSMSealer) connect() (pkcs11.SessionHandle, error) {
	slot, err := h.slot()
	if err != nil {
		return 0, err
	}
	session, err := h.ctx.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return 0, fmt.Errorf("opening session: %w", err)
	}
	if err := h.ctx.Login(session, pkcs11.CKU_USER, h.userPIN); err != nil {
		return 0, fmt.Errorf("logging in: %w", err)
	}
	return session, nil
}

// findOrCreateKey returns the AES master key handle for keyTag, generating
// one on the token if it does not already exist.
func (h *HSMSealer) findOrCreateKey(session pkcs11.SessionHandle) (pkcs11.ObjectHandle, error) {
	tmpl := []*pkcs11.Attribute{pkcs11.NewAttribute(pkcs11.CKA_LABEL, h.keyTag)}

	if err := h.ctx.FindObjectsInit(session, tmpl); err != nil {
		return 0, fmt.Errorf("find objects init: %w", err)
	}
	found, _, err := h.ctx.FindObjects(session, 1)
	_ = h.ctx.FindObjectsFinal(session)
	if err != nil {
		return 0, fmt.Errorf("find objects: %w", err)
	}
	if len(found) > 0 {
		return found[0], nil
	}

	keyTmpl := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, h.keyTag),
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_SECRET_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_AES),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE_LEN, 32),
		pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_DECRYPT, true),
	}
	key, err := h.ctx.GenerateKey(session, []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_AES_KEY_GEN, nil)}, keyTmpl)
	if err != nil {
		return 0, fmt.Errorf("generating master key: %w", err)
	}
	return key, nil
}

// Close finalizes the PKCS#11 module. Call once at process shutdown.
func (h *HSMSealer) Close() {
	_ = h.ctx.Finalize()
	h.ctx.Destroy()
}
