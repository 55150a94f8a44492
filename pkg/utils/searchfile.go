package utils

import (
	"errors"
	"os"
	"path/filepath"
)

var ErrSearchFile = errors.New("could not search file")

// SearchFileUpward looks for fileName in root and its ancestors, nearest first.
//
// It returns the path found, or ErrSearchFile when no directory up to "/" has it.
func SearchFileUpward(root string, fileName string) (string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(root, fileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}

		parent := filepath.Dir(root)
		if parent == root {
			return "", ErrSearchFile
		}
		root = parent
	}
}
