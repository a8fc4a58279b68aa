package relay

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdktx "github.com/cosmos/cosmos-sdk/types/tx"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	"github.com/cosmos/cosmos-sdk/x/authz"

	txclient "github.com/cosmos/cosmos-sdk/client/tx"
	authsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	"github.com/axiomenetwork/coinflip-relayer/internal/chain"
	"github.com/axiomenetwork/coinflip-relayer/internal/config"
	"github.com/axiomenetwork/coinflip-relayer/internal/types"
	log "github.com/sirupsen/logrus"
)

// Result is the structured outcome of a relayed transaction. It is
// returned, never stored; callers apply ledger effects after interpreting
// it.
type Result struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash,omitempty"`
	Height  int64  `json:"height,omitempty"`
	Code    uint32 `json:"code,omitempty"`
	RawLog  string `json:"raw_log,omitempty"`
}

const confirmPollInterval = 1 * time.Second

// TxRelayer submits contract actions as if signed by the end user. The
// relay account is a pre-authorized authz grantee; fees are paid by the
// sponsoring account via fee grant.
type TxRelayer struct {
	chain       *chain.Client
	seq         *chain.SequenceManager
	privKey     *secp256k1.PrivKey
	relayerAddr sdk.AccAddress
	sponsorAddr sdk.AccAddress
}

func NewTxRelayer(chainClient *chain.Client, seq *chain.SequenceManager) *TxRelayer {
	privKeyBytes, err := hex.DecodeString(config.AppConfig.RelayerPriKey)
	if err != nil {
		log.Fatalf("Failed to decode relayer private key: %v", err)
	}
	privKey := &secp256k1.PrivKey{Key: privKeyBytes}

	var sponsorAddr sdk.AccAddress
	if config.AppConfig.FeeSponsorAddress != "" {
		sponsorAddr, err = types.AccAddressFromBech32(config.AppConfig.FeeSponsorAddress)
		if err != nil {
			log.Fatalf("Failed to parse fee sponsor address: %v", err)
		}
	}

	return &TxRelayer{
		chain:       chainClient,
		seq:         seq,
		privKey:     privKey,
		relayerAddr: sdk.AccAddress(privKey.PubKey().Address().Bytes()),
		sponsorAddr: sponsorAddr,
	}
}

// Submit builds, signs and broadcasts the delegated execution of action
// for userAddr. A sequence-mismatch rejection resynchronizes the sequence
// manager and retries exactly once; any other non-zero code is returned as
// a failure without retry. A transport error also resynchronizes, in case
// the broadcast partially succeeded out of band.
func (r *TxRelayer) Submit(ctx context.Context, userAddr string, action Action, memo string) (*Result, error) {
	contract, payload, err := action.Build(config.AppConfig.VaultContract, config.AppConfig.TokenContract)
	if err != nil {
		return nil, err
	}

	inner := &wasmtypes.MsgExecuteContract{
		Sender:   userAddr,
		Contract: contract,
		Msg:      payload,
	}
	execMsg := authz.NewMsgExec(r.relayerAddr, []sdk.Msg{inner})

	res, err := r.broadcastOnce(ctx, &execMsg, memo)
	if err != nil {
		if resyncErr := r.seq.Resync(ctx); resyncErr != nil {
			log.Errorf("Failed to resync sequence after transport error: %v", resyncErr)
		}
		return nil, err
	}
	if !res.Success && isSequenceMismatch(res) {
		log.Warnf("Sequence mismatch relaying %s for %s, resyncing and retrying once", action.Name(), userAddr)
		if err := r.seq.Resync(ctx); err != nil {
			return nil, err
		}
		return r.broadcastOnce(ctx, &execMsg, memo)
	}
	return res, nil
}

func (r *TxRelayer) broadcastOnce(ctx context.Context, msg sdk.Msg, memo string) (*Result, error) {
	accountNumber, sequence, err := r.seq.Reserve(ctx)
	if err != nil {
		return nil, err
	}

	encoding := r.chain.Encoding()
	txBuilder := encoding.TxConfig.NewTxBuilder()
	if err := txBuilder.SetMsgs(msg); err != nil {
		return nil, err
	}

	fees := sdk.NewCoins(sdk.NewInt64Coin(config.AppConfig.ChainDenom, config.AppConfig.TxFeeAmount))
	txBuilder.SetGasLimit(config.AppConfig.TxGasLimit)
	txBuilder.SetFeeAmount(fees)
	txBuilder.SetMemo(memo)
	if r.sponsorAddr != nil {
		txBuilder.SetFeeGranter(r.sponsorAddr)
	}

	signMode := signing.SignMode(encoding.TxConfig.SignModeHandler().DefaultMode())
	if err := txBuilder.SetSignatures(signing.SignatureV2{
		PubKey: r.privKey.PubKey(),
		Data: &signing.SingleSignatureData{
			SignMode:  signMode,
			Signature: nil,
		},
		Sequence: sequence,
	}); err != nil {
		return nil, err
	}

	signerData := authsigning.SignerData{
		ChainID:       config.AppConfig.ChainID,
		AccountNumber: accountNumber,
		Sequence:      sequence,
	}
	sigV2, err := txclient.SignWithPrivKey(ctx, signMode, signerData, txBuilder, r.privKey, encoding.TxConfig, sequence)
	if err != nil {
		return nil, err
	}
	if err := txBuilder.SetSignatures(sigV2); err != nil {
		return nil, err
	}

	txBytes, err := encoding.TxConfig.TxEncoder()(txBuilder.GetTx())
	if err != nil {
		return nil, err
	}

	broadcastCtx, cancel := context.WithTimeout(ctx, config.AppConfig.BroadcastTimeout)
	defer cancel()

	serviceClient := sdktx.NewServiceClient(r.chain.GrpcConn())
	resp, err := serviceClient.BroadcastTx(broadcastCtx, &sdktx.BroadcastTxRequest{
		Mode:    sdktx.BroadcastMode_BROADCAST_MODE_SYNC,
		TxBytes: txBytes,
	})
	if err != nil {
		log.Errorf("Broadcast failed at sequence %d: %v", sequence, err)
		return nil, err
	}

	txResp := resp.TxResponse
	if txResp.Code != 0 {
		return &Result{
			Success: false,
			TxHash:  txResp.TxHash,
			Code:    txResp.Code,
			RawLog:  txResp.RawLog,
		}, nil
	}
	return r.waitForInclusion(ctx, txResp.TxHash)
}

// waitForInclusion polls the tx by hash until it lands in a block or the
// broadcast window elapses. A sync-mode code 0 only means CheckTx passed;
// the contract-level result comes from the delivered tx.
func (r *TxRelayer) waitForInclusion(ctx context.Context, txHash string) (*Result, error) {
	hashBytes, err := hex.DecodeString(txHash)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(config.AppConfig.BroadcastTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(confirmPollInterval):
		}

		resultTx, err := r.chain.RpcClient().Tx(ctx, hashBytes, false)
		if err != nil {
			continue // not indexed yet
		}
		return &Result{
			Success: resultTx.TxResult.Code == 0,
			TxHash:  txHash,
			Height:  resultTx.Height,
			Code:    resultTx.TxResult.Code,
			RawLog:  resultTx.TxResult.Log,
		}, nil
	}

	// Accepted by the mempool but not yet seen in a block. Report the
	// CheckTx outcome; the confirmed event feed carries the final state.
	log.Warnf("Tx %s not confirmed within broadcast window", txHash)
	return &Result{Success: true, TxHash: txHash}, nil
}

// The sdk rejects a stale sequence with ErrWrongSequence (codespace sdk,
// code 32).
func isSequenceMismatch(res *Result) bool {
	if res.Code == 32 {
		return true
	}
	return strings.Contains(res.RawLog, "account sequence mismatch")
}
