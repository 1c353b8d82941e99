/*
Package node implements a pKV peer: the gossip protocol between nodes and the
data API used by applications.

A node runs in one of two modes:

  - server: listens for connections, stores and relays every verified entry
    and answers requests on behalf of the peers that ask it.
  - client: connects to servers, stores only what it reads or writes and never
    relays anything.

Every inbound envelope and every local write passes one event loop. Envelopes
are deduplicated by type and id, entries are verified (see lib/verify) before
they are relayed and finally persisted if they win against the stored record:

	put:     newer timestamp wins, namespaced keys stay with their author,
	         frozen keys (==name) are written once
	crdtPut: change sets are always merged, the record is only written if
	         the entry is newer than the stored one

Reads ask all peers and wait for the first answer, queries collect answers
until no new answer arrived for a quiet period and function calls prefer a
real result over "not found" answers.

Users sign up with a username and password. The generated key is published
encrypted under a frozen key, so a user can sign in on any node of the network.

Usage:

	suite := identity.NewSecp256k1Suite(identity.DefaultVaultParams())
	key, _ := suite.Generate()
	network := tcp.NewNetwork(transport.Config{Address: key.Address(), Server: true})
	n, err := node.New(config, key, network, st, suite)
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		return err
	}
	defer n.Close()

	if err := n.SignUp(ctx, "alice", "secret"); err != nil {
		return err
	}
	err = n.PutData(ctx, "greeting", "hello")
*/
package node
