package relay

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"cosmossdk.io/math"
	"github.com/axiomenetwork/coinflip-relayer/internal/protocol"
)

// Action is the closed set of operations the relay is granted to execute
// on a user's behalf. It matches the authz grant's allow-list: anything
// else is unrepresentable rather than rejected at runtime.
type Action interface {
	Name() string
	// Build returns the target contract and the execute payload.
	Build(vaultContract, tokenContract string) (string, []byte, error)
}

// Deposit routes through the CW20 send hook: tokens move from the user's
// wallet into the vault contract.
type Deposit struct {
	Amount math.Int
}

// Withdraw moves available vault balance back to the user's wallet.
type Withdraw struct {
	Amount math.Int
}

// CreateBet opens a wager with a commitment hash (canonical lowercase hex;
// encoded base64 on the wire).
type CreateBet struct {
	Amount     math.Int
	Commitment string
}

// AcceptBet joins an open wager with a guess.
type AcceptBet struct {
	BetID uint64
	Guess protocol.Side
}

// Reveal discloses the maker's side and secret, resolving the wager.
type Reveal struct {
	BetID  uint64
	Side   protocol.Side
	Secret string // 64-char hex
}

// CancelBet withdraws an open, unaccepted wager.
type CancelBet struct {
	BetID uint64
}

// ClaimTimeout settles an unrevealed wager in the acceptor's favor.
type ClaimTimeout struct {
	BetID uint64
}

// TokenTransfer is a plain CW20 transfer from the user's wallet, used by
// the treasury sweep's second leg.
type TokenTransfer struct {
	Recipient string
	Amount    math.Int
}

func (Deposit) Name() string       { return "deposit" }
func (Withdraw) Name() string      { return "withdraw" }
func (CreateBet) Name() string     { return "create_bet" }
func (AcceptBet) Name() string     { return "accept_bet" }
func (Reveal) Name() string        { return "reveal" }
func (CancelBet) Name() string     { return "cancel_bet" }
func (ClaimTimeout) Name() string  { return "claim_timeout" }
func (TokenTransfer) Name() string { return "transfer" }

func (a Deposit) Build(vaultContract, tokenContract string) (string, []byte, error) {
	hook, err := json.Marshal(map[string]interface{}{"deposit": struct{}{}})
	if err != nil {
		return "", nil, err
	}
	payload, err := json.Marshal(map[string]interface{}{
		"send": map[string]interface{}{
			"contract": vaultContract,
			"amount":   a.Amount.String(),
			"msg":      base64.StdEncoding.EncodeToString(hook),
		},
	})
	return tokenContract, payload, err
}

func (a Withdraw) Build(vaultContract, _ string) (string, []byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"withdraw": map[string]interface{}{
			"amount": a.Amount.String(),
		},
	})
	return vaultContract, payload, err
}

func (a CreateBet) Build(vaultContract, _ string) (string, []byte, error) {
	commitment, err := hexToBase64(a.Commitment)
	if err != nil {
		return "", nil, fmt.Errorf("invalid commitment: %w", err)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"create_bet": map[string]interface{}{
			"amount":     a.Amount.String(),
			"commitment": commitment,
		},
	})
	return vaultContract, payload, err
}

func (a AcceptBet) Build(vaultContract, _ string) (string, []byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"accept_bet": map[string]interface{}{
			"bet_id": a.BetID,
			"guess":  string(a.Guess),
		},
	})
	return vaultContract, payload, err
}

func (a Reveal) Build(vaultContract, _ string) (string, []byte, error) {
	secret, err := hexToBase64(a.Secret)
	if err != nil {
		return "", nil, fmt.Errorf("invalid secret: %w", err)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"reveal": map[string]interface{}{
			"bet_id": a.BetID,
			"side":   string(a.Side),
			"secret": secret,
		},
	})
	return vaultContract, payload, err
}

func (a CancelBet) Build(vaultContract, _ string) (string, []byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"cancel_bet": map[string]interface{}{
			"bet_id": a.BetID,
		},
	})
	return vaultContract, payload, err
}

func (a ClaimTimeout) Build(vaultContract, _ string) (string, []byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"claim_timeout": map[string]interface{}{
			"bet_id": a.BetID,
		},
	})
	return vaultContract, payload, err
}

func (a TokenTransfer) Build(_, tokenContract string) (string, []byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"transfer": map[string]interface{}{
			"recipient": a.Recipient,
			"amount":    a.Amount.String(),
		},
	})
	return tokenContract, payload, err
}

// Contract Binary fields are base64 on the wire while the service tracks
// them as hex.
func hexToBase64(s string) (string, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
