package pattern

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-agent/contractforge/internal/model"
)

func TestRunner_DetectsReentrancy(t *testing.T) {
	r, err := NewRunner("")
	require.NoError(t, err)

	src := model.NewContractSource(`pragma solidity ^0.8.0;
contract Vault {
    mapping(address => uint) public balances;
    function withdraw(uint amount) external {
        balances[msg.sender] -= amount;
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
    }
}`, model.ProvenanceLocalFile, nil)

	findings, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	var found bool
	for _, f := range findings {
		if f.Kind == model.VulnReentrancy {
			found = true
			assert.Equal(t, "pattern", f.Detector)
			assert.NotNil(t, f.Location)
		}
	}
	assert.True(t, found, "expected a reentrancy finding")
}

func TestRunner_SuppressedByGuard(t *testing.T) {
	r, err := NewRunner("")
	require.NoError(t, err)

	src := model.NewContractSource(`pragma solidity ^0.8.0;
contract Vault {
    bool locked;
    modifier nonReentrant() { require(!locked); locked = true; _; locked = false; }
    function withdraw(uint amount) external nonReentrant {
        msg.sender.call{value: amount}("");
    }
}`, model.ProvenanceLocalFile, nil)

	findings, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	for _, f := range findings {
		assert.NotEqual(t, model.VulnReentrancy, f.Kind, "nonReentrant guard should suppress the rule")
	}
}

func TestRunner_NoFindingsOnCleanSource(t *testing.T) {
	r, err := NewRunner("")
	require.NoError(t, err)

	src := model.NewContractSource(`pragma solidity ^0.8.20;
contract Hello {
    string public greeting = "hi";
}`, model.ProvenanceLocalFile, nil)

	findings, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
