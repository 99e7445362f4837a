package sealer

import "fmt"

// New builds the configured Sealer implementation. mode is "software" or
// "hsm"; the remaining arguments are interpreted according to mode.
func New(mode, encryptionKeyHex, hsmModulePath, hsmTokenLabel, hsmUserPIN, hsmKeyTag string) (Sealer, error) {
	switch mode {
	case "software":
		return NewSoftwareSealer(encryptionKeyHex)
	case "hsm":
		return NewHSMSealer(hsmModulePath, hsmTokenLabel, hsmUserPIN, hsmKeyTag)
	default:
		return nil, fmt.Errorf("unknown sealer mode %q", mode)
	}
}
