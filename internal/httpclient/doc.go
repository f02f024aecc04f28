// Package httpclient builds the per-worker HTTP clients and the GET requester
// that workers drive.
//
// Every worker owns a client with its own transport, so connection pools are
// not shared between workers. Certificates are not verified, redirects are
// followed up to a configured limit and a response outside the 2xx range
// counts as a failure.
//
//	client := httpclient.NewClient(httpclient.OptionsFromConfig(cfg))
//	builder, err := httpclient.NewRequestBuilder(cfg.TargetURL, workerID)
//	if err != nil {
//		return err
//	}
//	req := httpclient.NewRequester(client, builder,
//		httpclient.WithTracer(provider.Tracer(), provider.ShouldPropagate()))
//	err = req.Do(ctx)
//
// Failed responses are reported as [*HTTPError]:
//
//	var httpErr *httpclient.HTTPError
//	if errors.As(err, &httpErr) {
//		fmt.Printf("Status: %d, Body: %s\n", httpErr.StatusCode, httpErr.Body)
//	}
package httpclient
