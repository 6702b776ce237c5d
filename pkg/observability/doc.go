/*
Package observability provides Prometheus instrumentation for the forge engines.

Metrics are registered on an injected prometheus.Registerer so that tests and
embedding applications control the registry. Every method is safe to call on
a nil *Metrics, which lets engines treat instrumentation as optional.
*/
package observability
