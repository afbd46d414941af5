package web3

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chain.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint. ChainID, when set, is
// enforced on every transfer. GasCap and NameRegistry override the adapter
// defaults.
type ChainDefinition struct {
	Type         string `yaml:"type"`
	RPCURL       string `yaml:"rpc_url"`
	ChainID      uint64 `yaml:"chain_id"`
	GasCap       uint64 `yaml:"gas_cap"`
	NameRegistry string `yaml:"name_registry"`
	Description  string `yaml:"description"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	return defs, nil
}

// Names returns the configured chain names in sorted order.
func (d ChainDefinitions) Names() []string {
	names := make([]string, 0, len(d.Chains))
	for name := range d.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select picks the named chain, or the first chain by name when name is
// empty. Only one chain is ever active per process.
func (d ChainDefinitions) Select(name string) (string, ChainDefinition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		names := d.Names()
		if len(names) == 0 {
			return "", ChainDefinition{}, fmt.Errorf("链配置为空")
		}
		name = names[0]
	}
	def, ok := d.Chains[name]
	if !ok {
		return "", ChainDefinition{}, fmt.Errorf("默认链 %s 未在配置中找到", name)
	}
	chainType := strings.ToLower(strings.TrimSpace(def.Type))
	if chainType != "" && chainType != "evm" {
		return "", ChainDefinition{}, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, def.Type)
	}
	if strings.TrimSpace(def.RPCURL) == "" {
		return "", ChainDefinition{}, fmt.Errorf("链 %s 缺少 rpc_url", name)
	}
	return name, def, nil
}
