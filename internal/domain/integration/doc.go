// Package integration contains the marketplace synchronization bounded context.
// It owns the records that link a tenant to a marketplace shop and the orders pulled from it.
//
// Key concepts:
//   - Connection: per (tenant, shop) OAuth credentials and sync bookkeeping
//   - RawOrder: the unmodified order detail document as returned by the marketplace
//   - NormalizedOrder: the stable reporting shape derived from a RawOrder
//   - MarketplaceClient: Port for the signed marketplace REST API
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
