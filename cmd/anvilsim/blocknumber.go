package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hellaweb3/anvilsim/anvil"
	"github.com/spf13/cobra"
	"gopkg.in/inconshreveable/log15.v2"
)

type blockNumberOptions struct {
	rpc          string
	timeout      time.Duration
	pollInterval time.Duration
}

func newBlockNumberCommand() *cobra.Command {
	opt := blockNumberOptions{pollInterval: time.Second}
	cmd := &cobra.Command{
		Use:   "blocknumber",
		Short: "Print the head of a node, mine a block and wait for the head to advance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlockNumber(cmd, &opt)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opt.rpc, "rpc", "http://127.0.0.1:8545", "RPC URL of the node")
	flags.DurationVar(&opt.timeout, "timeout", 30*time.Second, "Time to wait for the head to advance")
	return cmd
}

func runBlockNumber(cmd *cobra.Command, opt *blockNumberOptions) error {
	ctx := cmd.Context()
	client, err := anvil.Dial(ctx, opt.rpc, anvil.WithClientLogger(log15.Root()))
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	before, err := client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Block number:", before)
	if err := printBlock(ctx, out, client, "Block", before); err != nil {
		return err
	}

	if err := client.Mine(ctx, 1); err != nil {
		return err
	}
	log15.Debug("mined block, waiting for head", "from", before)

	waitCtx, cancel := context.WithTimeout(ctx, opt.timeout)
	defer cancel()
	var after uint64
	poll := func() error {
		n, err := client.BlockNumber(waitCtx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if n <= before {
			return fmt.Errorf("head still at %d", n)
		}
		after = n
		return nil
	}
	if err := backoff.Retry(poll, backoff.WithContext(backoff.NewConstantBackOff(opt.pollInterval), waitCtx)); err != nil {
		return err
	}
	fmt.Fprintln(out, "New block number:", after)
	return printBlock(ctx, out, client, "New block", after)
}

func printBlock(ctx context.Context, out io.Writer, client anvil.Client, label string, number uint64) error {
	block, err := client.Block(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return err
	}
	header, err := json.MarshalIndent(block.Header(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", label, header)
	return nil
}
