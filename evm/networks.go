package evm

// networkConfig describes a named Flare-family network and its public RPC
// endpoint. The RPC URL is a default only; operators can override it.
type networkConfig struct {
	ChainID     int64
	DisplayName string
	RPCURL      string
}

// DefaultNetwork is used when neither a network name nor an RPC URL is
// configured.
const DefaultNetwork = "flare-coston"

var networks = map[string]networkConfig{
	"flare": {
		ChainID:     14,
		DisplayName: "Flare",
		RPCURL:      "https://flare-api.flare.network/ext/C/rpc",
	},
	"songbird": {
		ChainID:     19,
		DisplayName: "Songbird",
		RPCURL:      "https://songbird-api.flare.network/ext/C/rpc",
	},
	"flare-coston": {
		ChainID:     16,
		DisplayName: "Flare Coston",
		RPCURL:      "https://coston-api.flare.network/ext/bc/C/rpc",
	},
}

// networkNameForChainID maps a chain id reported by the node back to a
// display name, falling back to "Unknown".
func networkNameForChainID(chainID int64) string {
	for _, cfg := range networks {
		if cfg.ChainID == chainID {
			return cfg.DisplayName
		}
	}
	return "Unknown"
}

// KnownNetworks returns the configured network names.
func KnownNetworks() []string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	return names
}
