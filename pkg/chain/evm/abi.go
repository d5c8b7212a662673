package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// registryABI is the id-indexed title registry: properties are requested by
// hash, approved on-chain, and addressed by numeric id afterwards.
const registryABI = `[
{"type":"function","name":"hashToPropertyId","stateMutability":"view","inputs":[{"name":"hash","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"propertyCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getProperty","stateMutability":"view","inputs":[{"name":"propertyId","type":"uint256"}],"outputs":[
 {"name":"id","type":"uint256"},{"name":"owner","type":"address"},{"name":"ipfsHash","type":"string"},
 {"name":"registrarApproved","type":"bool"},{"name":"notaryApproved","type":"bool"},{"name":"authorityApproved","type":"bool"},
 {"name":"approvalCount","type":"uint256"},{"name":"status","type":"uint8"},{"name":"bankVerified","type":"bool"}]},
{"type":"function","name":"properties","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
 {"name":"id","type":"uint256"},{"name":"owner","type":"address"},{"name":"ipfsHash","type":"string"},
 {"name":"registrarApproved","type":"bool"},{"name":"notaryApproved","type":"bool"},{"name":"authorityApproved","type":"bool"},
 {"name":"approvalCount","type":"uint256"},{"name":"status","type":"uint8"},{"name":"bankVerified","type":"bool"}]},
{"type":"function","name":"requestRegistration","stateMutability":"nonpayable","inputs":[{"name":"ipfsHash","type":"string"}],"outputs":[]},
{"type":"function","name":"transferProperty","stateMutability":"nonpayable","inputs":[{"name":"propertyId","type":"uint256"},{"name":"newOwner","type":"address"}],"outputs":[]}
]`

// vaultABI is the hash-indexed document vault.
const vaultABI = `[
{"type":"function","name":"registerProperty","stateMutability":"nonpayable","inputs":[{"name":"hash","type":"string"}],"outputs":[]},
{"type":"function","name":"storeHash","stateMutability":"nonpayable","inputs":[{"name":"_hash","type":"string"}],"outputs":[]},
{"type":"function","name":"transferProperty","stateMutability":"nonpayable","inputs":[{"name":"hash","type":"string"},{"name":"newOwner","type":"address"}],"outputs":[]},
{"type":"function","name":"getOwner","stateMutability":"view","inputs":[{"name":"hash","type":"string"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"documentOwner","stateMutability":"view","inputs":[{"name":"hash","type":"string"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"verifyProperty","stateMutability":"view","inputs":[{"name":"hash","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"verifyHash","stateMutability":"view","inputs":[{"name":"_hash","type":"string"}],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	registry = mustParse(registryABI)
	vault    = mustParse(vaultABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// registrationABI maps each registration entrypoint to the contract ABI declaring it.
var registrationABI = map[string]abi.ABI{
	"requestRegistration": registry,
	"registerProperty":    vault,
	"storeHash":           vault,
}
