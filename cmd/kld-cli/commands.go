package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"

	"github.com/urfave/cli"

	"github.com/kuutamolabs/kld/api"
)

func printJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		fatal(err)
	}
	var out bytes.Buffer
	json.Indent(&out, b, "", "    ")
	out.WriteTo(os.Stdout)
	fmt.Println()
}

// do issues an HTTP request against the daemon and decodes a non-2xx
// response as api.Error, matching the error taxonomy spec section 7
// defines.
func (c *restClient) do(method, path string, body, out interface{}) error {
	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if c.mac != "" {
		req.Header.Set("macaroon", c.mac)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var apiErr api.Error
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Detail != "" {
			return fmt.Errorf("%s: %s", apiErr.Status, apiErr.Detail)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

var getInfoCommand = cli.Command{
	Name:  "getinfo",
	Usage: "display general information about this node",
	Action: func(ctx *cli.Context) error {
		c := getRestClient(ctx)
		var resp api.GetInfo
		if err := c.do(http.MethodGet, "/v1/getinfo", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var getBalanceCommand = cli.Command{
	Name:  "walletbalance",
	Usage: "display the wallet's on-chain balance",
	Action: func(ctx *cli.Context) error {
		c := getRestClient(ctx)
		var resp api.WalletBalance
		if err := c.do(http.MethodGet, "/v1/getBalance", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var listChannelsCommand = cli.Command{
	Name:  "listchannels",
	Usage: "list this node's open channels",
	Action: func(ctx *cli.Context) error {
		c := getRestClient(ctx)
		var resp []api.Channel
		if err := c.do(http.MethodGet, "/v1/channel/listChannels", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var openChannelCommand = cli.Command{
	Name:      "openchannel",
	Usage:     "open a channel with a remote peer",
	ArgsUsage: "node-id amount-satoshis",
	Flags: []cli.Flag{
		cli.Uint64Flag{Name: "push_msat"},
		cli.Uint64Flag{Name: "fee_rate"},
	},
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if len(args) < 2 {
			return fmt.Errorf("usage: openchannel node-id amount-satoshis")
		}
		c := getRestClient(ctx)
		req := api.FundChannel{
			ID:            args.Get(0),
			SatoshiAmount: parseInt64(args.Get(1)),
			PushMsat:      ctx.Uint64("push_msat"),
			FeeRate:       ctx.Uint64("fee_rate"),
		}
		var resp api.FundChannelResponse
		if err := c.do(http.MethodPost, "/v1/channel/openChannel", req, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var closeChannelCommand = cli.Command{
	Name:      "closechannel",
	Usage:     "close a channel",
	ArgsUsage: "channel-id",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "force"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 1 {
			return fmt.Errorf("usage: closechannel channel-id")
		}
		c := getRestClient(ctx)
		path := "/v1/channel/closeChannel/" + ctx.Args().First()
		if ctx.Bool("force") {
			path += "?force=true"
		}
		if err := c.do(http.MethodDelete, path, nil, nil); err != nil {
			return err
		}
		fmt.Println("closed")
		return nil
	},
}

var setChannelFeeCommand = cli.Command{
	Name:      "setchannelfee",
	Usage:     "update a channel's forwarding fee policy",
	ArgsUsage: "channel-id base-fee-msat fee-rate-ppm",
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if len(args) < 3 {
			return fmt.Errorf("usage: setchannelfee channel-id base-fee-msat fee-rate-ppm")
		}
		c := getRestClient(ctx)
		req := api.ChannelFee{
			ID:          args.Get(0),
			BaseFeeMsat: uint32(parseInt64(args.Get(1))),
			FeeRatePPM:  uint32(parseInt64(args.Get(2))),
		}
		var resp api.SetChannelFeeResponse
		if err := c.do(http.MethodPost, "/v1/channel/setChannelFee", req, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var newAddrCommand = cli.Command{
	Name:  "newaddress",
	Usage: "generate a new on-chain address",
	Action: func(ctx *cli.Context) error {
		c := getRestClient(ctx)
		var resp api.NewAddressResponse
		if err := c.do(http.MethodGet, "/v1/newaddr", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var withdrawCommand = cli.Command{
	Name:      "withdraw",
	Usage:     "send an on-chain payment",
	ArgsUsage: "address amount-satoshis",
	Flags: []cli.Flag{
		cli.Uint64Flag{Name: "fee_rate"},
	},
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if len(args) < 2 {
			return fmt.Errorf("usage: withdraw address amount-satoshis")
		}
		c := getRestClient(ctx)
		req := api.WalletTransfer{
			Address:  args.Get(0),
			Satoshis: parseInt64(args.Get(1)),
			FeeRate:  ctx.Uint64("fee_rate"),
		}
		var resp api.WalletTransferResponse
		if err := c.do(http.MethodPost, "/v1/withdraw", req, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var listPeersCommand = cli.Command{
	Name:  "listpeers",
	Usage: "list connected peers",
	Action: func(ctx *cli.Context) error {
		c := getRestClient(ctx)
		var resp []api.Peer
		if err := c.do(http.MethodGet, "/v1/peer/listPeers", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var connectCommand = cli.Command{
	Name:      "connect",
	Usage:     "connect to a remote peer",
	ArgsUsage: "pubkey@host:port",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 1 {
			return fmt.Errorf("usage: connect pubkey@host:port")
		}
		c := getRestClient(ctx)
		req := api.ConnectPeer{ID: ctx.Args().First()}
		var resp string
		if err := c.do(http.MethodPost, "/v1/peer/connect", req, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var disconnectCommand = cli.Command{
	Name:      "disconnect",
	Usage:     "disconnect from a remote peer",
	ArgsUsage: "node-id",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 1 {
			return fmt.Errorf("usage: disconnect node-id")
		}
		c := getRestClient(ctx)
		if err := c.do(http.MethodDelete, "/v1/peer/disconnect/"+ctx.Args().First(), nil, nil); err != nil {
			return err
		}
		fmt.Println("disconnected")
		return nil
	},
}

var listNodeCommand = cli.Command{
	Name:      "listnode",
	Usage:     "list network graph nodes, or a single node by id",
	ArgsUsage: "[node-id]",
	Action: func(ctx *cli.Context) error {
		c := getRestClient(ctx)
		path := "/v1/network/listNode"
		if ctx.NArg() > 0 {
			path += "/" + ctx.Args().First()
		}
		var resp []api.NetworkNode
		if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var listNetworkChannelCommand = cli.Command{
	Name:      "listnetworkchannel",
	Usage:     "list network graph channels, or a single channel by short id",
	ArgsUsage: "[short-channel-id]",
	Action: func(ctx *cli.Context) error {
		c := getRestClient(ctx)
		path := "/v1/network/listChannel"
		if ctx.NArg() > 0 {
			path += "/" + ctx.Args().First()
		}
		var resp []api.NetworkChannel
		if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

func parseInt64(s string) int64 {
	var v int64
	fmt.Sscanf(s, "%d", &v)
	return v
}
