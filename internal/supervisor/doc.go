// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

/*
Package supervisor runs Fleetvault's long-lived services under suture v4.

Services are grouped into three layers so a failure in one does not take
the others down:

	RootSupervisor ("fleetvault")
	├── DataSupervisor ("data-layer")
	│   └── history.Store (badger value-log GC)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── SchedulerService (backup loop)
	│   └── websocket.Hub (live progress feed)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (status API)

A crashed service is restarted with suture's backoff. Cancelling the
context passed to Serve shuts the tree down; services that do not stop
within ShutdownTimeout are listed by UnstoppedServiceReport.

Supervisor events are logged through sutureslog, fed by the zerolog slog
adapter:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(store)
	tree.AddMessagingService(services.NewSchedulerService(sched))
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.Addr(), 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
