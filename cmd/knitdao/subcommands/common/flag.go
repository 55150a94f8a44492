package common

import (
	"errors"

	"github.com/opst/knitdao/pkg/configs"
	"github.com/opst/knitdao/pkg/utils"
)

type CommonFlags struct {
	Config string `flag:"config" alias:"c" metavar:"PATH" help:"path to config file. (default: knitdao.yaml in the working directory or its ancestors)"`
	DotEnv string `flag:"env" metavar:"PATH" help:"path to dotenv file"`
}

// DefaultCommonFlags returns CommonFlags with the config file found from dir.
//
// When no config files are found, Config is empty.
func DefaultCommonFlags(dir string) (CommonFlags, error) {
	found, err := configs.Find(dir)
	if err != nil {
		if errors.Is(err, utils.ErrSearchFile) {
			return CommonFlags{DotEnv: ".env"}, nil
		}
		return CommonFlags{}, err
	}
	return CommonFlags{Config: found, DotEnv: ".env"}, nil
}
