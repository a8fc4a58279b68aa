package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/axiomenetwork/coinflip-relayer/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var AppConfig Config

func InitConfig() {
	viper.AutomaticEnv()

	// Default config
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_DIR", "/app/db")
	viper.SetDefault("CHAIN_RPC_URI", "tcp://127.0.0.1:26657")
	viper.SetDefault("CHAIN_GRPC_URI", "127.0.0.1:9090")
	viper.SetDefault("CHAIN_ID", "axiome-1")
	viper.SetDefault("CHAIN_ACCOUNT_PREFIX", "axm")
	viper.SetDefault("CHAIN_DENOM", "uaxm")
	viper.SetDefault("CHAIN_QUERY_TIMEOUT", "5s")
	viper.SetDefault("BROADCAST_TIMEOUT", "8s")
	viper.SetDefault("TX_GAS_LIMIT", 1200000)
	viper.SetDefault("TX_FEE_AMOUNT", 3000)
	viper.SetDefault("RELAYER_PRIVATE_KEY", "")
	viper.SetDefault("FEE_SPONSOR_ADDRESS", "")
	viper.SetDefault("VAULT_CONTRACT", "")
	viper.SetDefault("TOKEN_CONTRACT", "")
	viper.SetDefault("TREASURY_ADDRESS", "")
	viper.SetDefault("SWEEP_ENABLED", false)
	viper.SetDefault("SWEEP_INTERVAL", "10m")
	viper.SetDefault("SWEEP_MAX_USERS", 50)
	viper.SetDefault("PENDING_SECRET_MAX_AGE", "72h")
	viper.SetDefault("PENDING_SECRET_CLEANUP_INTERVAL", "1h")

	logLevel, err := logrus.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}

	relayerAddress, err := types.PrivateKeyToAddress(viper.GetString("RELAYER_PRIVATE_KEY"), viper.GetString("CHAIN_ACCOUNT_PREFIX"))
	if err != nil {
		log.Fatalf("Failed to derive relayer address: %v, given private key length %d", err, len(viper.GetString("RELAYER_PRIVATE_KEY")))
	}

	AppConfig = Config{
		HTTPPort:             viper.GetString("HTTP_PORT"),
		LogLevel:             logLevel,
		DbDir:                viper.GetString("DB_DIR"),
		ChainRPCURI:          viper.GetString("CHAIN_RPC_URI"),
		ChainGRPCURI:         viper.GetString("CHAIN_GRPC_URI"),
		ChainID:              viper.GetString("CHAIN_ID"),
		ChainAccountPrefix:   viper.GetString("CHAIN_ACCOUNT_PREFIX"),
		ChainDenom:           viper.GetString("CHAIN_DENOM"),
		ChainQueryTimeout:    viper.GetDuration("CHAIN_QUERY_TIMEOUT"),
		BroadcastTimeout:     viper.GetDuration("BROADCAST_TIMEOUT"),
		TxGasLimit:           viper.GetUint64("TX_GAS_LIMIT"),
		TxFeeAmount:          viper.GetInt64("TX_FEE_AMOUNT"),
		RelayerPriKey:        viper.GetString("RELAYER_PRIVATE_KEY"),
		RelayerAddress:       relayerAddress,
		FeeSponsorAddress:    viper.GetString("FEE_SPONSOR_ADDRESS"),
		VaultContract:        viper.GetString("VAULT_CONTRACT"),
		TokenContract:        viper.GetString("TOKEN_CONTRACT"),
		TreasuryAddress:      viper.GetString("TREASURY_ADDRESS"),
		SweepEnabled:         viper.GetBool("SWEEP_ENABLED"),
		SweepInterval:        viper.GetDuration("SWEEP_INTERVAL"),
		SweepMaxUsers:        viper.GetInt("SWEEP_MAX_USERS"),
		PendingSecretMaxAge:  viper.GetDuration("PENDING_SECRET_MAX_AGE"),
		PendingSecretCleanup: viper.GetDuration("PENDING_SECRET_CLEANUP_INTERVAL"),
	}

	logrus.Infof("Init config, ChainID %s, SweepInterval %v, RelayerAddress %s",
		AppConfig.ChainID, AppConfig.SweepInterval, AppConfig.RelayerAddress)

	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(AppConfig.LogLevel)
}

type Config struct {
	HTTPPort             string
	LogLevel             logrus.Level
	DbDir                string
	ChainRPCURI          string
	ChainGRPCURI         string
	ChainID              string
	ChainAccountPrefix   string
	ChainDenom           string
	ChainQueryTimeout    time.Duration
	BroadcastTimeout     time.Duration
	TxGasLimit           uint64
	TxFeeAmount          int64
	RelayerPriKey        string
	RelayerAddress       string
	FeeSponsorAddress    string
	VaultContract        string
	TokenContract        string
	TreasuryAddress      string
	SweepEnabled         bool
	SweepInterval        time.Duration
	SweepMaxUsers        int
	PendingSecretMaxAge  time.Duration
	PendingSecretCleanup time.Duration
}
