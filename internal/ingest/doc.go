// Package ingest orchestrates the reading pipeline: normalize, register,
// validate, store, mirror.
//
// Service is transport-agnostic; collectors running in-process call
// Ingest directly, while remote collectors reach it through the MQTT
// Bridge. Either way a payload takes the same path and is acknowledged
// with the same outcome: inserted or duplicate_skipped.
//
// Each ingested payload gets a correlation id so its log lines and its
// ack can be tied together across processes.
package ingest
