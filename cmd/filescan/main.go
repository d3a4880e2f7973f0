// Copyright © 2024 Genome Research Limited
// Author: Sendu Bala <sb10@sanger.ac.uk>.
//
//  This file is part of wr.
//
//  wr is free software: you can redistribute it and/or modify
//  it under the terms of the GNU Lesser General Public License as published by
//  the Free Software Foundation, either version 3 of the License, or
//  (at your option) any later version.
//
//  wr is distributed in the hope that it will be useful,
//  but WITHOUT ANY WARRANTY; without even the implied warranty of
//  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//  GNU Lesser General Public License for more details.
//
//  You should have received a copy of the GNU Lesser General Public License
//  along with wr. If not, see <http://www.gnu.org/licenses/>.

// Command filescan is the small native program a task's bash wrapper calls
// to record the filesystem state of its staged inputs or outputs before
// or after execution. Usage:
//
//	filescan <short|long> <output_manifest> <local_root> <dir>...
package main

import (
	"fmt"
	"os"

	"github.com/inconshreveable/log15"
)

func main() {
	log := log15.New("cmd", "filescan")

	if err := run(os.Args[1:], log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, log log15.Logger) error {
	const minArgs = 4

	if len(args) < minArgs {
		return fmt.Errorf("%w: usage: filescan <short|long> <output_manifest> <local_root> <dir>...", ErrBadArgs)
	}

	mode, outputPath, localRoot := args[0], args[1], args[2]
	dirs := args[3:]

	short, err := parseMode(mode)
	if err != nil {
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("filescan: creating %s: %w", outputPath, err)
	}
	defer out.Close()

	s, err := NewScanner(localRoot, out, short, log)
	if err != nil {
		return err
	}

	return s.ScanAll(dirs)
}

func parseMode(mode string) (bool, error) {
	switch mode {
	case "short":
		return true, nil
	case "long":
		return false, nil
	default:
		return false, fmt.Errorf("%w: mode must be %q or %q, got %q", ErrBadArgs, "short", "long", mode)
	}
}
