package relay

import (
	"context"
	"os"
	"testing"

	"cosmossdk.io/math"
	"github.com/axiomenetwork/coinflip-relayer/internal/chain"
	"github.com/axiomenetwork/coinflip-relayer/internal/config"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Live broadcast against a local node. Needs a .env with RELAYER_PRIVATE_KEY,
// CHAIN_RPC_URI, CHAIN_GRPC_URI and the contract addresses; skipped otherwise.
func TestSubmitDepositAgainstLocalNode(t *testing.T) {
	_ = godotenv.Load()
	if os.Getenv("RELAYER_PRIVATE_KEY") == "" {
		t.Skip("RELAYER_PRIVATE_KEY not set, skipping live broadcast test")
	}
	config.InitConfig()

	chainClient, err := chain.Dial()
	require.NoError(t, err)

	seq := chain.NewSequenceManager(chainClient, config.AppConfig.RelayerAddress)
	relayer := NewTxRelayer(chainClient, seq)

	res, err := relayer.Submit(context.Background(), config.AppConfig.RelayerAddress,
		Deposit{Amount: math.NewInt(1)}, "live broadcast test")
	require.NoError(t, err)
	log.Infof("Broadcast result: %+v", res)

	assert.True(t, res.Success)
	assert.NotEmpty(t, res.TxHash)
}
