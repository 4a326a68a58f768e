// Package registry maps page ids to sessions and to live client
// connections.
//
// The two maps are updated by different collaborators on different
// schedules: sessions follow the host UI's page lifecycle, connections
// follow client sockets. A page can exist with no attached client, and a
// client can attach moments before its page registers. Every operation is
// therefore safe when the other half is missing.
//
// One mutex guards both maps and is held only for map access. Socket
// writes, session teardown and UI notifications all happen after release,
// so the inbound and outbound traffic directions can never deadlock on it.
package registry
