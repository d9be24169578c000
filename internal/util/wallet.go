package util

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSignature is returned when a signature does not recover to the claimed address.
var ErrBadSignature = errors.New("signature does not match address")

// ChallengeMessage is the text a wallet signs to prove it controls address.
func ChallengeMessage(address, nonce string) string {
	return fmt.Sprintf("PropertyVault account registration\nAddress: %s\nNonce: %s", address, nonce)
}

// RecoverAddress returns the lower-case address that produced an EIP-191
// personal_sign signature over message. V may be 0/1 or 27/28.
func RecoverAddress(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("recover signer: %w", err)
	}
	addr, err := NormalizeAddress(crypto.PubkeyToAddress(*pub).Hex())
	if err != nil {
		return "", err
	}
	return addr, nil
}

// VerifyWalletSignature checks that signature over message was made by address.
func VerifyWalletSignature(address, message, signature string) error {
	signer, err := RecoverAddress(message, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !SameAddress(signer, address) {
		return ErrBadSignature
	}
	return nil
}
