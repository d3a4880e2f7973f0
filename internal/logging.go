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

package internal

import (
	"fmt"
	"path/filepath"

	"github.com/inconshreveable/log15"
	"github.com/sb10/l15h"
)

// AttachFileHandler adds a per-component log file handler to logger, writing
// logfmt lines to <managerDir>/<name>.log.
func AttachFileHandler(logger log15.Logger, managerDir, name string) error {
	logFile := filepath.Join(managerDir, name+".log")

	fh, err := log15.FileHandler(logFile, log15.LogfmtFormat())
	if err != nil {
		return fmt.Errorf("locality: could not log %s to %s: %w", name, logFile, err)
	}

	l15h.AddHandler(logger, fh)

	return nil
}
