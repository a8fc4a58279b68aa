package types

import (
	"encoding/hex"

	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	log "github.com/sirupsen/logrus"
)

// PrivateKeyToAddress derives the bech32 account address for a hex-encoded
// secp256k1 private key under the given account prefix.
func PrivateKeyToAddress(privateKeyHex string, prefix string) (string, error) {
	privateKeyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		log.Errorf("Failed to decode private key: %v", err)
		return "", err
	}
	privateKey := &secp256k1.PrivKey{Key: privateKeyBytes}
	return bech32.ConvertAndEncode(prefix, privateKey.PubKey().Address().Bytes())
}

// MustAccAddressFromBech32 parses a bech32 address, ignoring the prefix
// registered in the global sdk config. Used where the address has already
// been validated upstream.
func MustAccAddressFromBech32(address string) sdk.AccAddress {
	_, bz, err := bech32.DecodeAndConvert(address)
	if err != nil {
		log.Fatalf("invalid bech32 address %s: %v", address, err)
	}
	return sdk.AccAddress(bz)
}

// AccAddressFromBech32 is the error-returning variant of
// MustAccAddressFromBech32.
func AccAddressFromBech32(address string) (sdk.AccAddress, error) {
	_, bz, err := bech32.DecodeAndConvert(address)
	if err != nil {
		return nil, err
	}
	return sdk.AccAddress(bz), nil
}
