package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/howeyc/gopass"

	"github.com/spilman/hub/config"
	"github.com/spilman/hub/db/hubbolt"
	"github.com/spilman/hub/eventbus"
	"github.com/spilman/hub/hub"
	"github.com/spilman/hub/logging"
	"github.com/spilman/hub/sign"
)

func main() {
	fmt.Printf("hubd v0.1\n")
	fmt.Printf("-h for list of options.\n")

	conf := &config.Config{
		HubHomeDir: config.DefaultHomeDirName,
	}
	config.HubSetup(conf)

	fmt.Printf("key file passphrase: ")
	pass, err := gopass.GetPasswd()
	if err != nil {
		log.Fatal(err)
	}

	signer, err := sign.LoadOrCreateKey(
		filepath.Join(conf.HubHomeDir, config.DefaultKeyFileName), pass)
	if err != nil {
		log.Fatal(err)
	}
	logging.Infof("hub address %s\n", signer.Address())

	store, err := hubbolt.OpenDB(filepath.Join(conf.HubHomeDir, config.DefaultDbFileName))
	if err != nil {
		log.Fatal(err)
	}
	defer store.CloseDB()

	bus := eventbus.NewEventBus()
	blocks := sign.NewCachedBlockReader()

	// TODO: replace LoggingSender with the real chain client once the
	// contract deployment settles
	coord := hub.NewEventCoordinator(bus, hub.LoggingSender{})

	h := hub.NewHub(conf, store, signer, blocks, coord, bus)

	rec := hub.NewReconciler(h)
	rec.Start()
	logging.Infof("hub engine up, home dir %s\n", conf.HubHomeDir)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logging.Infof("shutting down\n")
	rec.Stop()
}
