// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the typed payloads that flow over the
// dispatcher, mirroring the frames the chat backend delivers on the
// persistent connection.
//
// The transport layer decodes each inbound frame into one of these
// types and republishes it under the matching event name constant
// (NewMessage, Ack, Read, and so on). Engine components subscribe by
// name and type-assert the payload. The JSON tags match the backend's
// wire field names; timestamps travel as ISO 8601 strings and decode
// into time.Time.
package event
