package model

// ConstructorArg is a single typed, ordered constructor argument resolved by
// the constructor-argument resolver (spec.md §4.4).
type ConstructorArg struct {
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// ConstructorArgs is the raw, caller-supplied constructor argument input:
// either a positional JSON array or a name/value JSON object, never both
// (spec.md §4.4 steps 3-4). Both fields empty means "no arguments supplied",
// triggering the auto-default path.
type ConstructorArgs struct {
	Positional []string
	Named      map[string]string
}

// NetworkConfig identifies the single target EVM network (Hyperion-only
// posture, spec.md §1).
type NetworkConfig struct {
	Name    string `json:"name" mapstructure:"name"`
	ChainID uint64 `json:"chainId" mapstructure:"chain_id"`
	RPCURL  string `json:"rpcUrl" mapstructure:"rpc_url"`
}

// DeploymentRecord is proof that a deployment transaction was mined and
// produced code at an address (spec.md §3). A DeploymentRecord MUST NOT be
// constructed for a failed or unverified deployment.
type DeploymentRecord struct {
	TransactionHash  string           `json:"transactionHash"`
	ContractAddress  string           `json:"contractAddress"`
	Network          NetworkConfig    `json:"network"`
	GasUsed          uint64           `json:"gasUsed"`
	BlockNumber      uint64           `json:"blockNumber"`
	ConstructorArgs  []ConstructorArg `json:"constructorArgs"`
}
