package chain

import (
	"context"
	"encoding/json"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	sdkclient "github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/cosmos/cosmos-sdk/x/authz"

	"cosmossdk.io/math"
	"github.com/axiomenetwork/coinflip-relayer/internal/config"
	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

type EncodingConfig struct {
	InterfaceRegistry codectypes.InterfaceRegistry
	Codec             codec.Codec
	TxConfig          sdkclient.TxConfig
}

func makeEncodingConfig() EncodingConfig {
	interfaceRegistry := codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(interfaceRegistry)
	authtypes.RegisterInterfaces(interfaceRegistry)
	authz.RegisterInterfaces(interfaceRegistry)
	wasmtypes.RegisterInterfaces(interfaceRegistry)
	marshaler := codec.NewProtoCodec(interfaceRegistry)

	return EncodingConfig{
		InterfaceRegistry: interfaceRegistry,
		Codec:             marshaler,
		TxConfig:          authtx.NewTxConfig(marshaler, authtx.DefaultSignModes),
	}
}

// Client bundles the chain connections: cometbft RPC for tx lookup and a
// grpc connection for account, wasm and broadcast services.
type Client struct {
	rpcClient  *rpchttp.HTTP
	grpcConn   *grpc.ClientConn
	authClient authtypes.QueryClient
	wasmClient wasmtypes.QueryClient
	encoding   EncodingConfig
}

func Dial() (*Client, error) {
	// An http client without websocket, if use websocket, should start and stop
	rpcClient, err := rpchttp.New(config.AppConfig.ChainRPCURI, "/")
	if err != nil {
		return nil, err
	}
	grpcConn, err := grpc.NewClient(config.AppConfig.ChainGRPCURI, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &Client{
		rpcClient:  rpcClient,
		grpcConn:   grpcConn,
		authClient: authtypes.NewQueryClient(grpcConn),
		wasmClient: wasmtypes.NewQueryClient(grpcConn),
		encoding:   makeEncodingConfig(),
	}, nil
}

func (c *Client) checkAndReconnect() error {
	// Check the gRPC connection state
	if c.grpcConn.GetState() == connectivity.Shutdown || c.grpcConn.GetState() == connectivity.TransientFailure {
		log.Debug("gRPC connection is not usable, reconnecting...")
		if err := c.grpcConn.Close(); err != nil {
			log.Warnf("Failed to close grpc connection: %v", err)
		}
		grpcConn, err := grpc.NewClient(config.AppConfig.ChainGRPCURI, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return errors.New(err)
		}
		c.grpcConn = grpcConn
		c.authClient = authtypes.NewQueryClient(grpcConn)
		c.wasmClient = wasmtypes.NewQueryClient(grpcConn)
	}
	return nil
}

func (c *Client) GrpcConn() *grpc.ClientConn {
	return c.grpcConn
}

func (c *Client) RpcClient() *rpchttp.HTTP {
	return c.rpcClient
}

func (c *Client) Encoding() EncodingConfig {
	return c.encoding
}

// QueryAccount returns the chain-level account number and sequence for the
// given address.
func (c *Client) QueryAccount(ctx context.Context, address string) (uint64, uint64, error) {
	if err := c.checkAndReconnect(); err != nil {
		log.Errorf("check and reconnect chain client failed: %v", err)
		return 0, 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, config.AppConfig.ChainQueryTimeout)
	defer cancel()

	resp, err := c.authClient.Account(ctx, &authtypes.QueryAccountRequest{Address: address})
	if err != nil {
		log.Errorf("Error while querying account %s: %v", address, err)
		return 0, 0, err
	}

	var account sdk.AccountI
	if err := c.encoding.Codec.UnpackAny(resp.GetAccount(), &account); err != nil {
		log.Errorf("Failed to unpack account %s: %v", address, err)
		return 0, 0, err
	}
	return account.GetAccountNumber(), account.GetSequence(), nil
}

// SmartQuery runs a wasm smart query against the given contract and
// unmarshals the response into out.
func (c *Client) SmartQuery(ctx context.Context, contract string, query []byte, out interface{}) error {
	if err := c.checkAndReconnect(); err != nil {
		log.Errorf("check and reconnect chain client failed: %v", err)
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, config.AppConfig.ChainQueryTimeout)
	defer cancel()

	resp, err := c.wasmClient.SmartContractState(ctx, &wasmtypes.QuerySmartContractStateRequest{
		Address:   contract,
		QueryData: query,
	})
	if err != nil {
		log.Errorf("Error while querying contract %s: %v", contract, err)
		return err
	}
	return json.Unmarshal(resp.Data, out)
}

type vaultBalanceQuery struct {
	VaultBalance struct {
		Address string `json:"address"`
	} `json:"vault_balance"`
}

type vaultBalanceResponse struct {
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

// QueryVaultBalance returns the user's on-chain vault balance.
func (c *Client) QueryVaultBalance(ctx context.Context, address string) (math.Int, math.Int, error) {
	var q vaultBalanceQuery
	q.VaultBalance.Address = address
	payload, err := json.Marshal(q)
	if err != nil {
		return math.ZeroInt(), math.ZeroInt(), err
	}

	var resp vaultBalanceResponse
	if err := c.SmartQuery(ctx, config.AppConfig.VaultContract, payload, &resp); err != nil {
		return math.ZeroInt(), math.ZeroInt(), err
	}

	available, ok := math.NewIntFromString(resp.Available)
	if !ok {
		return math.ZeroInt(), math.ZeroInt(), errors.Errorf("invalid available amount %q", resp.Available)
	}
	locked, ok := math.NewIntFromString(resp.Locked)
	if !ok {
		return math.ZeroInt(), math.ZeroInt(), errors.Errorf("invalid locked amount %q", resp.Locked)
	}
	return available, locked, nil
}
