// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command listsync diffs item lists and drives a reconciler over them.
//
//	listsync diff OLD NEW       print the edit script between two item files
//	listsync simulate           stress the reconciler with interleaved updates
//	listsync watch FILE         reconcile FILE on every change
//	listsync serve              expose a reconciler over HTTP
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
