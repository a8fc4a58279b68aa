package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/axiomenetwork/coinflip-relayer/internal/chain"
	"github.com/axiomenetwork/coinflip-relayer/internal/config"
	"github.com/axiomenetwork/coinflip-relayer/internal/db"
	"github.com/axiomenetwork/coinflip-relayer/internal/http"
	"github.com/axiomenetwork/coinflip-relayer/internal/ledger"
	"github.com/axiomenetwork/coinflip-relayer/internal/relay"
	"github.com/axiomenetwork/coinflip-relayer/internal/secrets"
	"github.com/axiomenetwork/coinflip-relayer/internal/state"
	"github.com/axiomenetwork/coinflip-relayer/internal/sweep"
	"github.com/axiomenetwork/coinflip-relayer/internal/wager"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	DatabaseManager *db.DatabaseManager
	ChainClient     *chain.Client
	SequenceManager *chain.SequenceManager
	TxRelayer       *relay.TxRelayer
	VaultLedger     *ledger.VaultLedger
	SecretStore     *secrets.Store
	EventBus        *state.EventBus
	Notifier        *state.Notifier
	BetEvents       *state.BetEventHandler
	WagerService    *wager.Service
	Sweeper         *sweep.Sweeper
	HTTPServer      *http.HTTPServer
}

func NewApplication() *Application {
	config.InitConfig()

	dbm := db.NewDatabaseManager()

	chainClient, err := chain.Dial()
	if err != nil {
		log.Fatalf("Failed to dial chain: %v", err)
	}

	seq := chain.NewSequenceManager(chainClient, config.AppConfig.RelayerAddress)
	relayer := relay.NewTxRelayer(chainClient, seq)
	vaultLedger := ledger.NewVaultLedger(dbm)
	secretStore := secrets.NewStore(dbm)
	eventBus := state.NewEventBus()
	notifier := state.NewNotifier(eventBus)
	betEvents := state.NewBetEventHandler(dbm, vaultLedger, secretStore, chainClient, notifier)
	wagerService := wager.NewService(relayer, secretStore, dbm)
	sweeper := sweep.NewSweeper(relayer, chainClient, vaultLedger, dbm, notifier)
	httpServer := http.NewHTTPServer(vaultLedger, sweeper)

	return &Application{
		DatabaseManager: dbm,
		ChainClient:     chainClient,
		SequenceManager: seq,
		TxRelayer:       relayer,
		VaultLedger:     vaultLedger,
		SecretStore:     secretStore,
		EventBus:        eventBus,
		Notifier:        notifier,
		BetEvents:       betEvents,
		WagerService:    wagerService,
		Sweeper:         sweeper,
		HTTPServer:      httpServer,
	}
}

func (app *Application) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.HTTPServer.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Sweeper.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.SecretStore.Start(ctx)
	}()

	<-stop
	log.Info("Receiving exit signal...")

	cancel()

	wg.Wait()
	log.Info("Server stopped")
}

func main() {
	app := NewApplication()
	app.Run()
}
