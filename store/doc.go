// Package store persists delivery outcomes and scheduled job records.
//
// Two collections are kept: outcomes ("email_logs"), written once per
// delivery attempt, and scheduled records ("scheduled_emails"), written when
// a job is registered and updated only through their status.
//
// Backends are [Memory], [Postgres] and [Mongo]. [Cached] and [Publishing]
// wrap any backend to add a read-through listing cache and outcome events.
package store
