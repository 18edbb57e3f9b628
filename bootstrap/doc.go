// Package bootstrap assembles a runnable WarpTrace instance: configuration,
// logging, storage, the detection engine, the analysis service and the HTTP
// API, with ordered startup and shutdown.
//
// Typical use from main:
//
//	ctx := context.Background()
//	app, err := bootstrap.NewApp(ctx)
//	if err != nil {
//		log.Fatalf("startup failed: %v", err)
//	}
//	if err := app.Start(ctx); err != nil {
//		log.Fatalf("startup failed: %v", err)
//	}
//	app.WaitForShutdown()
//	app.Shutdown()
package bootstrap
