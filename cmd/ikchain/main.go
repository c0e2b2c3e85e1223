// ikchain recovers the joint angles of a planar chain from its endpoint
// positions.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"
	"os"

	"ikchain/pkg/errors"
	"ikchain/pkg/log"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) (code int) {
	defer func() {
		if err := errors.RecoverPanic(recover()); err != nil {
			log.GetLogger("ikchain").WithError(err).Error("internal error")
			code = 2
		}
	}()

	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}
