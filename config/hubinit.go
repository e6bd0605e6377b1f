package config

import (
	"bufio"
	"io"
	"log"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/spilman/hub/hubutil"
	"github.com/spilman/hub/logging"
)

// createDefaultConfigFile creates a config file  -- only call this if the
// config file isn't already there
func createDefaultConfigFile(destinationPath string) error {

	dest, err := os.OpenFile(filepath.Join(destinationPath, DefaultConfigFilename),
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	writer := bufio.NewWriter(dest)
	defaultArgs := []byte("channelBeiDeposit=" + DefaultChannelBeiDeposit + "\n")
	_, err = writer.Write(defaultArgs)
	if err != nil {
		return err
	}
	writer.Flush()
	return nil
}

// HubSetup performs most of the setup when hubd is run: sets configuration
// variables, creates the home directory and config file if they aren't
// there yet, and parses the amount strings into big.Ints.
func HubSetup(conf *Config) {
	// Pre-parse the command line options to pick up an alternative home
	// directory.  Errors here get caught again by the final parse below.
	preconf := *conf
	preParser := NewConfigParser(&preconf, flags.HelpFlag)
	_, err := preParser.ParseArgs(os.Args)
	if err != nil {
		log.Fatal(err)
	}

	parser := NewConfigParser(conf, flags.Default)

	if _, err := os.Stat(preconf.HubHomeDir); os.IsNotExist(err) {
		os.Mkdir(preconf.HubHomeDir, 0700)
	}

	if _, err := os.Stat(filepath.Join(preconf.HubHomeDir, DefaultConfigFilename)); os.IsNotExist(err) {
		log.Println("Creating a new config file")
		err := createDefaultConfigFile(preconf.HubHomeDir)
		if err != nil {
			log.Fatal(err)
		}
	}

	preconf.ConfigFile = filepath.Join(preconf.HubHomeDir, DefaultConfigFilename)
	// parse the config file first, then the command line on top of it
	err = flags.NewIniParser(parser).ParseFile(preconf.ConfigFile)
	if err != nil {
		_, ok := err.(*os.PathError)
		if !ok {
			log.Fatal(err)
		}
	}
	_, err = parser.ParseArgs(os.Args)
	if err != nil {
		log.Fatal(err)
	}
	conf.ConfigFile = preconf.ConfigFile

	logFilePath := filepath.Join(conf.HubHomeDir, "hub.log")
	logfile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal(err)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	if conf.Verbose {
		logOutput := io.MultiWriter(os.Stdout, logfile)
		log.SetOutput(logOutput)
		logging.SetLogLevel(3)
	} else {
		log.SetOutput(logfile)
		logging.SetLogLevel(2)
	}

	parseAmounts(conf)
}

func parseAmounts(conf *Config) {
	var err error
	pick := func(s, dflt string) string {
		if s == "" {
			return dflt
		}
		return s
	}

	conf.BeiDeposit, err = hubutil.ParseBig(pick(conf.ChannelBeiDeposit, DefaultChannelBeiDeposit))
	if err != nil {
		log.Fatal(err)
	}
	conf.BeiLimit, err = hubutil.ParseBig(pick(conf.ChannelBeiLimit, DefaultChannelBeiLimit))
	if err != nil {
		log.Fatal(err)
	}
	conf.ThreadLimit, err = hubutil.ParseBig(pick(conf.ThreadBeiLimit, DefaultThreadBeiLimit))
	if err != nil {
		log.Fatal(err)
	}
	conf.MinCollateral, err = hubutil.ParseBig(pick(conf.BeiMinCollateralization, DefaultBeiMinCollateralization))
	if err != nil {
		log.Fatal(err)
	}
	conf.MaxCollateral, err = hubutil.ParseBig(pick(conf.BeiMaxCollateralization, DefaultBeiMaxCollateralization))
	if err != nil {
		log.Fatal(err)
	}
}
