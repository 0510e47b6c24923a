// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Command scanner is an example binary plugin. It pretends to scan
// container images before they start.
//
// Build into the plugin directory:
//
//	go build -o plugins/scanner/scanner ./plugins/scanner
package main

import (
	"log"
	"sync/atomic"

	"github.com/vesselrun/vessel/pkg/sdk"
)

type scanner struct {
	sdk.BaseHooks
	scanned atomic.Int64
}

func (s *scanner) Init(info sdk.PluginInfo) error {
	log.Printf("scanner %s ready, work dir %s, capabilities %v",
		info.Version, info.WorkDir, info.Capabilities)
	return nil
}

func (s *scanner) HandleEvent(evt sdk.Event) error {
	if evt.Name != "container.pre_start" {
		return nil
	}
	s.scanned.Add(1)
	log.Printf("scanning container %s", evt.Payload["container"])
	return nil
}

func (s *scanner) HealthCheck() (string, error) {
	return sdk.HealthHealthy, nil
}

func (s *scanner) Deinit() error {
	log.Printf("scanner shutting down after %d scans", s.scanned.Load())
	return nil
}

func main() {
	sdk.Serve(&scanner{})
}
