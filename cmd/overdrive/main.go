// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Command overdrive drives a headless graph editing session.
//
// Usage:
//
//	overdrive run examples/chain.yaml
//	overdrive run examples/chain.yaml --store ./data --save
//	overdrive serve --addr :8080 --store ./data
//	overdrive watch examples/chain.yaml
//
// Example requests against serve:
//
//	curl -X POST http://localhost:8080/v1/commands \
//	  -H "Content-Type: application/json" \
//	  -d '{"command": "CreateNode", "args": {"title": "Add"}}'
//
//	curl http://localhost:8080/v1/view | jq
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
