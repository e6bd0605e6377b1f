package config

import (
	"math/big"
	"os"

	flags "github.com/jessevdk/go-flags"
)

type Config struct { // define a struct for usage with go-flags
	HubHomeDir string `long:"dir" description:"Specify home directory of the hub as an absolute path."`
	ConfigFile string

	ChannelBeiDeposit       string `long:"channelBeiDeposit" description:"Ceiling (bei) on the hub token deposit matched into a single channel."`
	ChannelBeiLimit         string `long:"channelBeiLimit" description:"Ceiling (bei) on the hub token balance kept against remaining user wei."`
	ThreadBeiLimit          string `long:"threadBeiLimit" description:"Per-thread collateral unit (bei) used when sizing hub reserves."`
	BeiMinCollateralization string `long:"beiMinCollateral" description:"Floor (bei) for collateral held in channels with recent payments."`
	BeiMaxCollateralization string `long:"beiMaxCollateral" description:"Hard cap (bei) on collateral held in any one channel."`

	HotWalletAddress      string `long:"hotwallet" description:"Hub address settlement transactions are sent from."`
	ChannelManagerAddress string `long:"chanmanager" description:"Address of the channel manager contract."`

	Verbose bool `short:"v" long:"verbose" description:"Set verbosity to true."`

	// parsed out of the string fields above by HubSetup
	BeiDeposit    *big.Int
	BeiLimit      *big.Int
	ThreadLimit   *big.Int
	MinCollateral *big.Int
	MaxCollateral *big.Int
}

var (
	DefaultHomeDirName    = os.Getenv("HOME") + "/.hub"
	DefaultConfigFilename = "hub.conf"
	DefaultKeyFileName    = "hubkey.hex"
	DefaultDbFileName     = "hub.db"

	// 69 BOOTY worth of defaults, same scale the contract uses.
	DefaultChannelBeiDeposit       = "69000000000000000000"
	DefaultChannelBeiLimit         = "69000000000000000000"
	DefaultThreadBeiLimit          = "10000000000000000000"
	DefaultBeiMinCollateralization = "10000000000000000000"
	DefaultBeiMaxCollateralization = "169000000000000000000"
)

// NewConfigParser returns a new command line flags parser.
func NewConfigParser(conf *Config, options flags.Options) *flags.Parser {
	parser := flags.NewParser(conf, options)
	return parser
}
