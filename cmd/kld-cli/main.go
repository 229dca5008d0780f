// Command kld-cli is a thin control-plane client for kld's REST API
// (spec 4.H), mirroring cmd/lncli's flag/command structure but speaking
// plain HTTPS+JSON with a hex-encoded macaroon header instead of gRPC.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli"
)

const (
	defaultTLSCertFilename  = "kld.crt"
	defaultMacaroonFilename = "admin.macaroon"
)

var (
	kldHomeDir          = btcutil.AppDataDir("kld", false)
	defaultTLSCertPath  = filepath.Join(kldHomeDir, "certs", defaultTLSCertFilename)
	defaultMacaroonPath = filepath.Join(kldHomeDir, "macaroons", defaultMacaroonFilename)
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[kld-cli] %v\n", err)
	os.Exit(1)
}

// restClient bundles the two pieces of state every command needs to
// make a request: where the daemon is, and how to authenticate to it.
type restClient struct {
	baseURL string
	client  *http.Client
	mac     string
}

func getRestClient(ctx *cli.Context) *restClient {
	certPath := cleanAndExpandPath(ctx.GlobalString("tlscertpath"))
	certBytes, err := ioutil.ReadFile(certPath)
	if err != nil {
		fatal(fmt.Errorf("unable to read TLS certificate: %w", err))
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(certBytes) {
		fatal(fmt.Errorf("unable to parse TLS certificate at %s", certPath))
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}

	var mac string
	if !ctx.GlobalBool("no-macaroon") {
		macPath := cleanAndExpandPath(ctx.GlobalString("macaroonpath"))
		macBytes, err := ioutil.ReadFile(macPath)
		if err != nil {
			fatal(fmt.Errorf("unable to read macaroon: %w", err))
		}
		mac = hex.EncodeToString(macBytes)
	}

	return &restClient{
		baseURL: "https://" + ctx.GlobalString("rpcserver"),
		client:  httpClient,
		mac:     mac,
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "kld-cli"
	app.Usage = "control plane for kld"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: "localhost:2244",
			Usage: "host:port of the kld REST API",
		},
		cli.StringFlag{
			Name:  "tlscertpath",
			Value: defaultTLSCertPath,
			Usage: "path to the REST API's TLS certificate",
		},
		cli.BoolFlag{
			Name:  "no-macaroon",
			Usage: "disable macaroon authentication",
		},
		cli.StringFlag{
			Name:  "macaroonpath",
			Value: defaultMacaroonPath,
			Usage: "path to macaroon file",
		},
	}
	app.Commands = []cli.Command{
		getInfoCommand,
		getBalanceCommand,
		listChannelsCommand,
		openChannelCommand,
		closeChannelCommand,
		setChannelFeeCommand,
		newAddrCommand,
		withdrawCommand,
		listPeersCommand,
		connectCommand,
		disconnectCommand,
		listNodeCommand,
		listNetworkChannelCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// cleanAndExpandPath expands environment variables and a leading ~ in
// the passed path, cleans the result, and returns it — taken from the
// teacher's cmd/lncli convention (itself lifted from btcd).
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] == '~' {
		homeDir := filepath.Dir(kldHomeDir)
		path = filepath.Join(homeDir, path[1:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}
