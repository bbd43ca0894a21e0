package key

var (
	_ publicKey = NodePublic{}

	_ privateKey[NodePublic] = NodePrivate{}

	// We need this to send identities out-of-band, inside contact info.
	_ canTextMarshal = &NodePublic{}

	// We need this to persist node keys from the shell.
	_ canTextMarshal = &NodePrivate{}
)
