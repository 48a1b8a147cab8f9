package main

import (
	"flag"
	"fmt"
)

type nodesCommand struct {
	filter     string
	configPath string
}

func (cmd *nodesCommand) Name() string {
	return "nodes"
}

func (cmd *nodesCommand) Help() string {
	return "Show nodes which can be programmed with a filter"
}

func (cmd *nodesCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.filter, "filter", "", "filter name (required)")
	fs.StringVar(&cmd.configPath, "config", "", "path to YAML config")
}

func (cmd *nodesCommand) Run() error {
	if cmd.filter == "" {
		return fmt.Errorf("missing -filter required flag")
	}
	env, err := setup(cmd.configPath, false)
	if err != nil {
		return err
	}
	defer env.close()

	ids, err := env.provider.NodeCandidates(cmd.filter)
	if err != nil {
		return err
	}
	fmt.Printf("Nodes for %s:\n %v\n", cmd.filter, ids)
	return nil
}
