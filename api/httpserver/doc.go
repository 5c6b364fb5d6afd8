// Package httpserver provides the HTTP server shared by the registry and
// coordinator binaries.
//
// BaseServer wires standard middleware (request IDs, real IP, panic recovery,
// request metrics), health endpoints (/livez, /readyz) and drain control
// (/drain, /undrain) around the routes of one or more RouteRegistrar
// components, and runs a Prometheus metrics server alongside when a metrics
// address is configured.
//
//	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
//	    ListenAddr: ":8080",
//	    Log:        logger,
//	}, services.NewHTTPRegistry(registry, logger))
//	if err != nil {
//	    return err
//	}
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
