/*
Package observability turns session lifecycle hooks into Prometheus metrics
and structured audit logs.
*/
package observability
