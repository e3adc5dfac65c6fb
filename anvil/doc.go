/*
Package anvil runs a disposable Anvil development node in a container and drives it
from Go tests.

A node is described by a Config, launched by a Manager and used through the Client of
the returned Node:

	launcher := anvil.NewTestcontainersLauncher(nil)
	cfg := anvil.NewConfig().WithVerbosity(anvil.VerbosityFive).WithJSONLogs().WithRandomMnemonic()
	m := anvil.NewManager(launcher, cfg)
	node, err := m.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Stop(context.Background())

	client := node.Client()
	addrs, _ := client.Addresses(ctx)
	hash, _ := client.SendValue(ctx, addrs[0], addrs[1], "1")
	client.Mine(ctx, 1)
	receipt, err := client.AwaitReceipt(ctx, hash)

Transactions are never confirmed by submission alone. Mine must be called before a
receipt can be awaited; DeployContract does this on its own.
*/
package anvil
