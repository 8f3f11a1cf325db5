// Package svckit ties the service-abstraction packages together: a Config
// struct holding one settings URL per service, factory functions that open
// and optionally instrument each service, and an OpenTelemetry bundle for
// traces, metrics and pprof.
//
// Each service is configured by a single URL whose scheme selects the
// driver:
//
//	cache:  mem://, redis://host:6379/0, memcached://host:11211, dynamodb://table
//	pubsub: mem://, mqtt://broker:1883
//	blob:   mem://, disk:///var/data, s3://bucket/prefix, azure://container
//	email:  log://, smtp://user@host:587, ses://?region=eu-north-1
//	sms:    log://, twilio://sid:token@, sns://?region=eu-north-1
//	notify: log://, fcm://project-id
//	vector: mem://?dimension=768, pinecone://index?namespace=prod
//
// The underlying packages (cache, pubsub, blob, email, sms, notify, vector)
// can also be used directly without this package.
package svckit
